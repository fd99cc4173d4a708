package repository

import (
	"context"

	"campus-chat/internal/domain"
)

// RoomRepository 定义了房间元数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// Save 保存房间信息。ID 已存在则更新，否则创建。
	Save(ctx context.Context, room *domain.Room) error

	// FindByIDs 根据一组房间 ID 批量查询房间。
	// 用于 GetUserRooms 的 "先查成员关系再取房间" 两步连接。
	FindByIDs(ctx context.Context, ids []uint) ([]domain.Room, error)

	// SetDisabled 更新房间的软禁用标记。
	SetDisabled(ctx context.Context, id uint, disabled bool) error
}
