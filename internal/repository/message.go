package repository

import (
	"context"

	"campus-chat/internal/domain"
)

// MessageRepository 定义了消息的持久化存储。
type MessageRepository interface {
	// Save 保存一条新消息。调用前 Seq 必须已分配；
	// (RoomID, Seq) 冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, msg *domain.Message) error

	// FindByID 根据消息 ID 查找消息。不存在时返回 ErrMessageNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Message, error)

	// ListByRoom 按 Seq 升序返回房间内 Seq > afterSeq 的消息。
	// 软删除的消息保留在原位（Deleted 置位），分页游标因此保持稳定。
	ListByRoom(ctx context.Context, roomID uint, afterSeq uint64, limit int) ([]domain.Message, error)

	// Update 保存对已有消息的修改（编辑正文、软删除标记）。
	Update(ctx context.Context, msg *domain.Message) error

	// ListAll 按主键升序分批遍历全部消息，用于搜索索引重建。
	ListAll(ctx context.Context, afterID uint, limit int) ([]domain.Message, error)
}

// SequenceAllocator 为房间分配单调递增的消息序号。
// 分配必须原子：两个并发写入者拿到的序号一定不同，
// 墙钟时间戳可能相同因此不能用作排序键。
type SequenceAllocator interface {
	NextSeq(ctx context.Context, roomID uint) (uint64, error)
}
