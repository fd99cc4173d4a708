package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
)

// GormMembershipRepository 是 MembershipRepository 接口的 GORM 实现。
// 两个查询方向分别由 idx_user 和 idx_room 两条索引支撑，
// (room_id, user_id) 唯一索引同时承担并发加入时的 "insert if absent"。
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository 创建 GormMembershipRepository 实例
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

// Insert 实现条件插入。唯一约束冲突映射为 ErrDuplicateEntry，
// 并发写入者中只有一个会成功，其余拿到冲突错误后读回既有行。
func (r *GormMembershipRepository) Insert(ctx context.Context, m *domain.Membership) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return mapWriteError(err, fmt.Sprintf("insert membership (room %d, user %d)", m.RoomID, m.UserID))
	}
	return nil
}

// InsertWithinCapacity 实现带容量上限的条件插入。
// 在事务内对房间行加排他锁，把并发加入串行化：计数与插入之间
// 不会有其他加入者挤进来，容量检查因此是权威的。
func (r *GormMembershipRepository) InsertWithinCapacity(ctx context.Context, m *domain.Membership, maxMembers int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&room, m.RoomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&domain.Membership{}).
			Where("room_id = ?", m.RoomID).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(maxMembers) {
			return repository.ErrCapacityExceeded
		}
		return tx.Create(m).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) || errors.Is(err, repository.ErrRoomNotFound) {
			return err
		}
		return mapWriteError(err, fmt.Sprintf("insert membership within capacity (room %d, user %d)", m.RoomID, m.UserID))
	}
	return nil
}

// Find 实现按 (roomID, userID) 查找成员关系
func (r *GormMembershipRepository) Find(ctx context.Context, roomID, userID uint) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership (room %d, user %d): %w", roomID, userID, err)
	}
	return &m, nil
}

// Delete 实现删除成员关系
func (r *GormMembershipRepository) Delete(ctx context.Context, roomID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.Membership{})
	if result.Error != nil {
		return mapWriteError(result.Error, fmt.Sprintf("delete membership (room %d, user %d)", roomID, userID))
	}
	if result.RowsAffected == 0 {
		return repository.ErrMembershipNotFound
	}
	return nil
}

// ListByUser 实现按用户查询成员关系（走 idx_user）
func (r *GormMembershipRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships by user %d: %w", userID, err)
	}
	return memberships, nil
}

// ListByRoom 实现按房间查询成员关系（走 idx_room）
func (r *GormMembershipRepository) ListByRoom(ctx context.Context, roomID uint, offset, limit int) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships by room %d: %w", roomID, err)
	}
	return memberships, nil
}

// CountByRoom 实现统计房间成员数
func (r *GormMembershipRepository) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count memberships by room %d: %w", roomID, err)
	}
	return count, nil
}

// CountOwners 实现统计房间内 role=owner 的成员数
func (r *GormMembershipRepository) CountOwners(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("room_id = ? AND role = ?", roomID, domain.RoleOwner).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count owners by room %d: %w", roomID, err)
	}
	return count, nil
}

// UpdateRole 实现更新成员角色
func (r *GormMembershipRepository) UpdateRole(ctx context.Context, roomID, userID uint, role domain.Role) error {
	result := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("role", role)
	if result.Error != nil {
		return mapWriteError(result.Error, fmt.Sprintf("update role (room %d, user %d)", roomID, userID))
	}
	if result.RowsAffected == 0 {
		return repository.ErrMembershipNotFound
	}
	return nil
}
