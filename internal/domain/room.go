package domain

import "time"

// RoomType 表示房间的类型。
type RoomType string

const (
	RoomTypeDirect     RoomType = "direct"      // 一对一私聊
	RoomTypeGroup      RoomType = "group"       // 普通群聊
	RoomTypeCourse     RoomType = "course"      // 课程房间
	RoomTypeStudyGroup RoomType = "study-group" // 学习小组
)

// IsValid 检查房间类型是否为已知类型。
func (t RoomType) IsValid() bool {
	switch t {
	case RoomTypeDirect, RoomTypeGroup, RoomTypeCourse, RoomTypeStudyGroup:
		return true
	}
	return false
}

// Room 表示一个聊天房间。
// 注意：Room 本身不嵌入成员列表。成员关系由独立的 Membership 实体维护，
// 这样 "某用户的所有房间" 和 "某房间的所有成员" 两个方向的查询才都能走索引。
type Room struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(191);not null" json:"name"`       // 房间显示名称
	Type          RoomType  `gorm:"type:varchar(32);not null;index" json:"type"`  // 房间类型
	CreatorID     uint      `gorm:"index;not null" json:"creator_id"`             // 创建者用户 ID
	MaxMembers    int       `gorm:"not null;default:100" json:"max_members"`      // 成员数量上限
	HistoryPublic bool      `gorm:"not null;default:true" json:"history_public"`  // 新成员是否可见历史消息
	Disabled      bool      `gorm:"not null;default:false;index" json:"disabled"` // 软禁用标记，房间从不物理删除
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoomSettings 是创建房间时由调用方提供的可配置项。
type RoomSettings struct {
	MaxMembers    int  `json:"max_members"`
	HistoryPublic bool `json:"history_public"`
}
