package domain

import "time"

// PresenceStatus 表示用户的在线状态。
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Presence 是单个用户的瞬时在线状态，只存在于 Redis 中并随不活跃超时过期。
// 它与 Membership 是两个概念：用户可以在线但不属于任何房间，
// 在线状态也从不用于权限判断。
type Presence struct {
	UserID     uint           `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	RoomID     *uint          `json:"room_id,omitempty"` // 当前正在查看的房间，可为空
	LastActive time.Time      `json:"last_active"`
}
