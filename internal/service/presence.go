package service

import (
	"context"
	"errors"
	"time"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"

	"github.com/sirupsen/logrus"
)

// PresencePolicy 是注入 PresenceService 的显式配置。
type PresencePolicy struct {
	TTL time.Duration // 不活跃超时，超过后状态自动过期为 offline
}

// PresenceService 维护用户的瞬时在线状态。
// 状态机：offline →(心跳)→ online/away →(超时)→ offline。
// 转换由客户端显式心跳驱动，后台清扫任务负责把超时用户标记下线并广播。
// 在线状态从不参与成员资格或权限判断。
type PresenceService struct {
	presenceRepo repository.PresenceRepository
	events       repository.EventPublisher
	policy       PresencePolicy
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(presenceRepo repository.PresenceRepository, events repository.EventPublisher, policy PresencePolicy) *PresenceService {
	if presenceRepo == nil || events == nil {
		panic("all dependencies must be non-nil for PresenceService")
	}
	if policy.TTL <= 0 {
		policy.TTL = 2 * time.Minute
	}
	return &PresenceService{
		presenceRepo: presenceRepo,
		events:       events,
		policy:       policy,
	}
}

// Heartbeat 处理客户端心跳：刷新状态与过期时间。
// 状态或所在房间发生变化时向相关房间广播 presence_changed。
func (s *PresenceService) Heartbeat(ctx context.Context, userID uint, status domain.PresenceStatus, roomID *uint) (*domain.Presence, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "status": status})

	if status != domain.PresenceOnline && status != domain.PresenceAway {
		// 下线走 Offline，不通过心跳表达
		return nil, ErrValidation
	}

	prev, err := s.presenceRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logCtx.WithError(err).Error("Failed to load previous presence")
		return nil, ErrInternalServer
	}

	presence := &domain.Presence{
		UserID:     userID,
		Status:     status,
		RoomID:     roomID,
		LastActive: time.Now().UTC(),
	}
	if err := s.presenceRepo.Set(ctx, presence, s.policy.TTL); err != nil {
		logCtx.WithError(err).Error("Failed to store presence")
		return nil, ErrInternalServer
	}

	if changed(prev, presence) {
		// 旧房间和新房间的订阅者都需要知道变化
		if prev != nil && prev.RoomID != nil && (roomID == nil || *prev.RoomID != *roomID) {
			s.publish(ctx, logCtx, *prev.RoomID, presence)
		}
		if roomID != nil {
			s.publish(ctx, logCtx, *roomID, presence)
		}
	}
	return presence, nil
}

// Offline 显式下线：删除状态并向原房间广播。
func (s *PresenceService) Offline(ctx context.Context, userID uint) error {
	logCtx := logrus.WithField("user_id", userID)

	prev, err := s.presenceRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // 已经下线
		}
		logCtx.WithError(err).Error("Failed to load presence for offline")
		return ErrInternalServer
	}
	if err := s.presenceRepo.Remove(ctx, userID); err != nil {
		logCtx.WithError(err).Error("Failed to remove presence")
		return ErrInternalServer
	}
	if prev.RoomID != nil {
		s.publish(ctx, logCtx, *prev.RoomID, &domain.Presence{
			UserID:     userID,
			Status:     domain.PresenceOffline,
			LastActive: time.Now().UTC(),
		})
	}
	logCtx.Info("User went offline")
	return nil
}

// GetBatch 批量读取一组用户的在线状态；已过期的用户返回为 offline。
func (s *PresenceService) GetBatch(ctx context.Context, userIDs []uint) (map[uint]*domain.Presence, error) {
	found, err := s.presenceRepo.GetBatch(ctx, userIDs)
	if err != nil {
		logrus.WithError(err).Error("Failed to batch-load presence")
		return nil, ErrInternalServer
	}
	result := make(map[uint]*domain.Presence, len(userIDs))
	for _, id := range userIDs {
		if p, ok := found[id]; ok {
			result[id] = p
		} else {
			result[id] = &domain.Presence{UserID: id, Status: domain.PresenceOffline}
		}
	}
	return result, nil
}

// SweepStale 由后台周期任务调用：把 last_active 超过 TTL 的用户标记
// 下线并广播。其他组件不需要轮询，超时下线全部由这里驱动。
func (s *PresenceService) SweepStale(ctx context.Context) (int, error) {
	logCtx := logrus.WithField("component", "presence_sweep")

	cutoff := time.Now().UTC().Add(-s.policy.TTL)
	stale, err := s.presenceRepo.ListStale(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list stale presence entries")
		return 0, err
	}

	swept := 0
	for _, userID := range stale {
		prev, err := s.presenceRepo.Get(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).WithField("user_id", userID).Warn("Failed to load stale presence, skipping")
			continue
		}
		if err := s.presenceRepo.Remove(ctx, userID); err != nil {
			logCtx.WithError(err).WithField("user_id", userID).Warn("Failed to remove stale presence, skipping")
			continue
		}
		if prev != nil && prev.RoomID != nil {
			s.publish(ctx, logCtx, *prev.RoomID, &domain.Presence{
				UserID:     userID,
				Status:     domain.PresenceOffline,
				LastActive: time.Now().UTC(),
			})
		}
		swept++
	}
	if swept > 0 {
		logCtx.Infof("Swept %d stale presence entries", swept)
	}
	return swept, nil
}

// --- 私有辅助函数 ---

func changed(prev, next *domain.Presence) bool {
	if prev == nil {
		return true
	}
	if prev.Status != next.Status {
		return true
	}
	switch {
	case prev.RoomID == nil && next.RoomID == nil:
		return false
	case prev.RoomID == nil || next.RoomID == nil:
		return true
	default:
		return *prev.RoomID != *next.RoomID
	}
}

func (s *PresenceService) publish(ctx context.Context, logCtx *logrus.Entry, roomID uint, presence *domain.Presence) {
	event, err := domain.NewRoomEvent(domain.EventPresenceChanged, roomID, presence)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build presence event")
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logCtx.WithError(err).Warn("Failed to publish presence event")
	}
}
