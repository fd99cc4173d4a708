package domain

import "time"

// SearchDocument 是 Message 在搜索索引中的非规范化投影。
// 索引是派生的、可丢弃的视图：与消息库之间允许有界的传播延迟，
// 并且任何时候都可以从消息库整体重建。
type SearchDocument struct {
	MessageID uint      `json:"message_id"`
	RoomID    uint      `json:"room_id"`
	AuthorID  uint      `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
