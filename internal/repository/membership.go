package repository

import (
	"context"

	"campus-chat/internal/domain"
)

// MembershipRepository 维护用户与房间的多对多关系。
// 接口要求两个查询方向（按房间、按用户）代价相同：实现必须在
// room_id 和 user_id 上各自建立独立的查找路径，绝不能只按房间键存储
// 再试图反向扫描。
type MembershipRepository interface {
	// Insert 条件插入一行成员关系："insert if absent"。
	// (RoomID, UserID) 已存在时返回 ErrDuplicateEntry，不产生第二行；
	// 并发调用同样只会有一个成功，唯一约束在存储层兜底。
	Insert(ctx context.Context, m *domain.Membership) error

	// InsertWithinCapacity 在同一个存储层事务内完成容量检查与插入：
	// 锁定房间行、统计现有成员数，仅当 count < maxMembers 时写入。
	// 容量已满返回 ErrCapacityExceeded，已是成员返回 ErrDuplicateEntry。
	// 并发加入由锁串行化，满房间绝不会超员。
	InsertWithinCapacity(ctx context.Context, m *domain.Membership, maxMembers int) error

	// Find 查找指定 (roomID, userID) 的成员关系。
	// 不存在时返回 ErrMembershipNotFound。
	Find(ctx context.Context, roomID, userID uint) (*domain.Membership, error)

	// Delete 删除指定 (roomID, userID) 的成员关系。
	// 不存在时返回 ErrMembershipNotFound。
	Delete(ctx context.Context, roomID, userID uint) error

	// ListByUser 按用户查询其全部成员关系（分页，按加入时间排序）。
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]domain.Membership, error)

	// ListByRoom 按房间查询全部成员关系（分页，按加入时间排序）。
	ListByRoom(ctx context.Context, roomID uint, offset, limit int) ([]domain.Membership, error)

	// CountByRoom 统计房间当前成员数，用于容量检查。
	CountByRoom(ctx context.Context, roomID uint) (int64, error)

	// CountOwners 统计房间内 role=owner 的成员数。
	// 非空房间该值必须 >= 1，LeaveRoom 依赖它阻止房间变成无主状态。
	CountOwners(ctx context.Context, roomID uint) (int64, error)

	// UpdateRole 更新指定成员的角色，用于所有权转移。
	UpdateRole(ctx context.Context, roomID, userID uint, role domain.Role) error
}
