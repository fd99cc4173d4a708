package repository

import (
	"context"
	"time"

	"campus-chat/internal/domain"
)

// PresenceRepository 维护用户的瞬时在线状态，通常由 Redis 实现。
// 记录随不活跃超时自动过期；过期即视为 offline。
type PresenceRepository interface {
	// Set 写入（或刷新）用户的在线状态，并重置过期时间。
	Set(ctx context.Context, p *domain.Presence, ttl time.Duration) error

	// Get 读取用户当前的在线状态。
	// 记录不存在（已过期）时返回 ErrNotFound，调用方应视为 offline。
	Get(ctx context.Context, userID uint) (*domain.Presence, error)

	// GetBatch 批量读取一组用户的在线状态；已过期的用户不出现在结果中。
	GetBatch(ctx context.Context, userIDs []uint) (map[uint]*domain.Presence, error)

	// Remove 删除用户的在线状态（显式下线）。
	Remove(ctx context.Context, userID uint) error

	// ListStale 返回已登记但 last_active 早于 cutoff 的用户 ID，
	// 供后台清扫任务标记下线并广播。
	ListStale(ctx context.Context, cutoff time.Time) ([]uint, error)
}
