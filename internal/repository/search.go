package repository

import (
	"context"

	"campus-chat/internal/domain"
)

// SearchRepository 是消息的全文搜索索引。
// 索引是派生视图：写入允许滞后于消息库（有界的传播窗口），
// Index/Remove 必须幂等（同一文档重复应用结果不变），因为
// 变更流按至少一次投递。索引整体可丢弃并通过重建恢复。
type SearchRepository interface {
	// Index 将一份搜索文档写入（或覆盖）索引。
	Index(ctx context.Context, doc *domain.SearchDocument) error

	// Remove 将指定消息从索引中移除。消息本就不在索引中时不报错。
	Remove(ctx context.Context, roomID, messageID uint) error

	// Query 在房间范围内做全文查询，返回匹配的消息 ID（按时间倒序）。
	Query(ctx context.Context, roomID uint, query string, limit int) ([]uint, error)

	// DropRoom 丢弃指定房间的整个索引分片，重建前调用。
	DropRoom(ctx context.Context, roomID uint) error
}

// EventPublisher 将房间事件发布到通知频道。
// 连接管理与向客户端的实时推送是订阅方（Hub、外部分发器）的职责。
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.RoomEvent) error
}
