package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Save(room).Error; err != nil {
		return mapWriteError(err, fmt.Sprintf("save room %d", room.ID))
	}
	return nil
}

// FindByIDs 实现根据 ID 列表批量获取房间信息
func (r *GormRoomRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Room, error) {
	var rooms []domain.Room
	if len(ids) == 0 {
		return rooms, nil // 避免空的 IN 查询
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rooms).Error
	if err != nil {
		// 批量查询不区分部分缺失，缺失的 ID 由调用方处理
		return nil, fmt.Errorf("gorm: find rooms by ids: %w", err)
	}
	return rooms, nil
}

// SetDisabled 实现更新房间的软禁用标记
func (r *GormRoomRepository) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		Update("disabled", disabled)
	if result.Error != nil {
		return mapWriteError(result.Error, fmt.Sprintf("set room %d disabled", id))
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}
