package domain

import "time"

// Role 表示成员在房间内的角色。
type Role string

const (
	RoleOwner     Role = "owner"     // 房主，每个非空房间必须恰好有至少一个
	RoleModerator Role = "moderator" // 管理员，可删除他人消息
	RoleMember    Role = "member"    // 普通成员
)

// CanModerate 判断该角色是否具有管理权限（删除他人消息等）。
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleModerator
}

// Membership 表示 "用户属于房间" 这一多对多关系中的一行。
// (RoomID, UserID) 上的唯一索引保证同一用户在同一房间内不会出现重复行，
// 并发 JoinRoom 依赖该约束实现 "insert if absent"。
// user_id 与 room_id 各自独立建索引：按用户查房间与按房间查成员同等高效，
// 这正是把成员关系从 Room 记录里拆出来的原因。
type Membership struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	RoomID   uint      `gorm:"uniqueIndex:idx_room_user;index:idx_room;not null" json:"room_id"`
	UserID   uint      `gorm:"uniqueIndex:idx_room_user;index:idx_user;not null" json:"user_id"`
	Role     Role      `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// RoomWithMembership 是 GetUserRooms 返回的连接视图：
// 房间信息加上调用者自己的成员属性。
type RoomWithMembership struct {
	Room       Room       `json:"room"`
	Membership Membership `json:"membership"`
}
