package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/repository"
	"campus-chat/internal/tasks"
)

// SearchIndexHandler 是变更流的消费端：把消息的 create/update/delete
// 事件应用到搜索索引。投递是至少一次，索引写入幂等，重复处理同一事件
// 不改变索引终态。失败策略：瞬时错误返回给 asynq 退避重试；
// 负载损坏记录后跳过（SkipRetry），一条坏消息不能堵塞后续事件。
type SearchIndexHandler struct {
	searchRepo repository.SearchRepository
}

// NewSearchIndexHandler 创建 SearchIndexHandler 实例
func NewSearchIndexHandler(searchRepo repository.SearchRepository) *SearchIndexHandler {
	if searchRepo == nil {
		panic("SearchRepository cannot be nil for SearchIndexHandler")
	}
	return &SearchIndexHandler{searchRepo: searchRepo}
}

// ProcessIndex 处理索引写入任务
func (h *SearchIndexHandler) ProcessIndex(ctx context.Context, t *asynq.Task) error {
	var payload tasks.MessageIndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Malformed index task payload, skipping")
		return fmt.Errorf("failed to unmarshal index payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"event_id":   payload.EventID,
		"message_id": payload.Document.MessageID,
		"room_id":    payload.Document.RoomID,
	})

	if err := h.searchRepo.Index(ctx, &payload.Document); err != nil {
		logCtx.WithError(err).Warn("Failed to apply index write, will retry")
		return fmt.Errorf("failed to index message %d: %w", payload.Document.MessageID, err)
	}
	logCtx.Debug("Message indexed")
	return nil
}

// ProcessRemove 处理索引移除任务
func (h *SearchIndexHandler) ProcessRemove(ctx context.Context, t *asynq.Task) error {
	var payload tasks.MessageRemovePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Malformed index removal payload, skipping")
		return fmt.Errorf("failed to unmarshal removal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"event_id":   payload.EventID,
		"message_id": payload.MessageID,
		"room_id":    payload.RoomID,
	})

	if err := h.searchRepo.Remove(ctx, payload.RoomID, payload.MessageID); err != nil {
		logCtx.WithError(err).Warn("Failed to apply index removal, will retry")
		return fmt.Errorf("failed to remove message %d from index: %w", payload.MessageID, err)
	}
	logCtx.Debug("Message removed from index")
	return nil
}
