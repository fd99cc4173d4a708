package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Save 实现保存新消息。(room_id, seq) 唯一索引兜底序号分配的正确性：
// 同一序号被写两次只可能来自缺陷，映射为 ErrDuplicateEntry 暴露出来。
func (r *GormMessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return mapWriteError(err, fmt.Sprintf("save message (room %d, seq %d)", msg.RoomID, msg.Seq))
	}
	return nil
}

// FindByID 实现按消息 ID 查找
func (r *GormMessageRepository) FindByID(ctx context.Context, id uint) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).First(&msg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: find message by id %d: %w", id, err)
	}
	return &msg, nil
}

// ListByRoom 实现按 Seq 升序分页。软删除的行不过滤，
// 由调用方原位展示（Deleted 置位、正文为空），分页位置因此稳定。
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID uint, afterSeq uint64, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND seq > ?", roomID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list messages by room %d after seq %d: %w", roomID, afterSeq, err)
	}
	return msgs, nil
}

// Update 实现保存消息修改（编辑、软删除）
func (r *GormMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	// Select 指定列以便把 Body 更新为空字符串、Deleted 更新为 false 也能生效
	err := r.db.WithContext(ctx).Model(msg).
		Select("body", "edited_at", "deleted").
		Updates(msg).Error
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("update message %d", msg.ID))
	}
	return nil
}

// ListAll 实现按主键升序分批遍历全部消息（索引重建用）
func (r *GormMessageRepository) ListAll(ctx context.Context, afterID uint, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list all messages after id %d: %w", afterID, err)
	}
	return msgs, nil
}
