package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/service"
)

// PresenceSweepHandler 处理周期性的在线状态清扫任务。
type PresenceSweepHandler struct {
	presenceService *service.PresenceService
}

// NewPresenceSweepHandler 创建 PresenceSweepHandler 实例
func NewPresenceSweepHandler(presenceService *service.PresenceService) *PresenceSweepHandler {
	if presenceService == nil {
		panic("PresenceService cannot be nil for PresenceSweepHandler")
	}
	return &PresenceSweepHandler{presenceService: presenceService}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	swept, err := h.presenceService.SweepStale(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Presence sweep failed, will retry on next schedule")
		return err
	}
	if swept > 0 {
		logrus.WithField("swept", swept).Info("Presence sweep completed")
	}
	return nil
}
