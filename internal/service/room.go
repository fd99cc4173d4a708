package service

import (
	"context"
	"errors"
	"strings"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"

	"github.com/sirupsen/logrus"
)

// RoomPolicy 是注入 RoomService 的显式配置，不走环境变量等环境全局状态。
type RoomPolicy struct {
	DefaultMaxMembers int // settings 未指定上限时的默认值
	MaxMembersLimit   int // 房间可配置的成员上限的上限
	OwnerWriteRetries int // 创建房间后写入房主成员行的重试次数
	DefaultPageSize   int
	MaxPageSize       int
	Retry             RetryPolicy
}

// RoomService 负责房间与成员关系的业务逻辑。
type RoomService struct {
	roomRepo   repository.RoomRepository
	memberRepo repository.MembershipRepository
	events     repository.EventPublisher
	policy     RoomPolicy
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(
	roomRepo repository.RoomRepository,
	memberRepo repository.MembershipRepository,
	events repository.EventPublisher,
	policy RoomPolicy,
) *RoomService {
	if roomRepo == nil || memberRepo == nil || events == nil {
		panic("all dependencies must be non-nil for RoomService")
	}
	if policy.DefaultMaxMembers <= 0 {
		policy.DefaultMaxMembers = 100
	}
	if policy.MaxMembersLimit <= 0 {
		policy.MaxMembersLimit = 1000
	}
	if policy.OwnerWriteRetries <= 0 {
		policy.OwnerWriteRetries = 3
	}
	if policy.DefaultPageSize <= 0 {
		policy.DefaultPageSize = 50
	}
	if policy.MaxPageSize <= 0 {
		policy.MaxPageSize = 200
	}
	return &RoomService{
		roomRepo:   roomRepo,
		memberRepo: memberRepo,
		events:     events,
		policy:     policy,
	}
}

// CreateRoom 创建一个新房间，并在同一工作单元内写入创建者的房主成员行。
// 不变式：房间记录与 role=owner 的成员行一起出现。成员行写入失败时
// 先重试；重试耗尽则把刚写入的房间软禁用（回滚），绝不留下无主房间。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name string, roomType domain.RoomType, settings domain.RoomSettings) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "room_type": roomType})

	// 1. 输入校验
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrValidation
	}
	if !roomType.IsValid() {
		return nil, ErrValidation
	}
	if settings.MaxMembers == 0 {
		settings.MaxMembers = s.policy.DefaultMaxMembers
	}
	if settings.MaxMembers < 1 || settings.MaxMembers > s.policy.MaxMembersLimit {
		return nil, ErrValidation
	}

	// 2. 写入房间记录
	room := &domain.Room{
		Name:          name,
		Type:          roomType,
		CreatorID:     creatorID,
		MaxMembers:    settings.MaxMembers,
		HistoryPublic: settings.HistoryPublic,
	}
	err := withRetry(ctx, logCtx, s.policy.Retry, func() error {
		return s.roomRepo.Save(ctx, room)
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to save new room")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 3. 写入房主成员行，与房间写入视为一个工作单元
	membership := &domain.Membership{
		RoomID: room.ID,
		UserID: creatorID,
		Role:   domain.RoleOwner,
	}
	var memberErr error
	for attempt := 1; attempt <= s.policy.OwnerWriteRetries; attempt++ {
		memberErr = s.memberRepo.Insert(ctx, membership)
		if memberErr == nil || errors.Is(memberErr, repository.ErrDuplicateEntry) {
			// 重复键说明之前某次尝试实际已写成功
			memberErr = nil
			break
		}
		logCtx.WithError(memberErr).Warnf("Owner membership write failed (attempt %d/%d)", attempt, s.policy.OwnerWriteRetries)
	}
	if memberErr != nil {
		// 回滚：软禁用房间，避免留下无主房间
		logCtx.WithError(memberErr).Error("Owner membership write exhausted retries, disabling room")
		if disableErr := s.roomRepo.SetDisabled(ctx, room.ID, true); disableErr != nil {
			logCtx.WithError(disableErr).Error("Failed to disable ownerless room, repair required")
		}
		return nil, ErrInternalServer
	}

	logCtx.Info("Room created successfully")
	return room, nil
}

// JoinRoom 处理用户加入房间。幂等：已是成员时返回既有成员行。
// 并发加入依赖存储层 (room_id, user_id) 唯一约束，不会产生第二行。
func (s *RoomService) JoinRoom(ctx context.Context, userID, roomID uint) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	// 1. 房间必须存在且未被禁用
	room, err := s.findActiveRoom(ctx, logCtx, roomID)
	if err != nil {
		return nil, err
	}

	// 2. 幂等检查：已是成员则直接返回既有行
	existing, err := s.memberRepo.Find(ctx, roomID, userID)
	if err == nil {
		logCtx.Debug("JoinRoom is a no-op, user already a member")
		return existing, nil
	}
	if !errors.Is(err, repository.ErrMembershipNotFound) {
		logCtx.WithError(err).Error("Failed to check existing membership")
		return nil, ErrInternalServer
	}

	// 3. 条件插入：容量检查与写入在存储层同一个事务内完成，
	// 并发加入被串行化，满房间不会超员。竞争输掉时读回赢家写入的那一行
	membership := &domain.Membership{
		RoomID: roomID,
		UserID: userID,
		Role:   domain.RoleMember,
	}
	err = s.memberRepo.InsertWithinCapacity(ctx, membership, room.MaxMembers)
	if errors.Is(err, repository.ErrCapacityExceeded) {
		logCtx.Warn("Join rejected, room at capacity")
		return nil, ErrRoomFull
	}
	if errors.Is(err, repository.ErrDuplicateEntry) {
		logCtx.Debug("Concurrent join detected, returning existing membership")
		return s.memberRepo.Find(ctx, roomID, userID)
	}
	if err != nil {
		logCtx.WithError(err).Error("Failed to insert membership")
		return nil, ErrInternalServer
	}

	s.publishEvent(ctx, logCtx, domain.EventUserJoined, roomID, membership)
	logCtx.Info("User joined room")
	return membership, nil
}

// LeaveRoom 删除调用者在房间内的成员行。
// 策略（见 DESIGN.md）：唯一房主在还有其他成员时离开会被拒绝（ErrConflict），
// 必须先转移所有权；房主是最后一个成员时允许离开，房间随之软禁用（解散）。
func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	membership, err := s.memberRepo.Find(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return ErrMembershipNotFound
		}
		logCtx.WithError(err).Error("Failed to load membership")
		return ErrInternalServer
	}

	disband := false
	if membership.Role == domain.RoleOwner {
		owners, err := s.memberRepo.CountOwners(ctx, roomID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to count room owners")
			return ErrInternalServer
		}
		if owners <= 1 {
			members, err := s.memberRepo.CountByRoom(ctx, roomID)
			if err != nil {
				logCtx.WithError(err).Error("Failed to count room members")
				return ErrInternalServer
			}
			if members > 1 {
				// 非空房间必须始终有房主
				logCtx.Warn("Sole owner attempted to leave a non-empty room")
				return ErrConflict
			}
			disband = true
		}
	}

	if err := s.memberRepo.Delete(ctx, roomID, userID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			// 并发离开，行已不在
			return nil
		}
		logCtx.WithError(err).Error("Failed to delete membership")
		return ErrInternalServer
	}

	if disband {
		if err := s.roomRepo.SetDisabled(ctx, roomID, true); err != nil {
			logCtx.WithError(err).Error("Failed to disable emptied room")
			// 成员行已删，房间为空，禁用失败只影响清理，不影响不变式
		} else {
			logCtx.Info("Room disbanded after last member left")
		}
	}

	s.publishEvent(ctx, logCtx, domain.EventUserLeft, roomID, membership)
	logCtx.Info("User left room")
	return nil
}

// GetUserRooms 返回用户所属的房间及其自己的成员属性。
// 先按 user_id 查成员关系，再按房间 ID 批量取房间记录做连接——
// 成员数据不在 Room 记录上，单表反范式查询在这里是错误的设计。
func (s *RoomService) GetUserRooms(ctx context.Context, userID uint, offset, limit int) ([]domain.RoomWithMembership, error) {
	logCtx := logrus.WithField("user_id", userID)

	limit = s.clampLimit(limit)
	memberships, err := s.memberRepo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list memberships by user")
		return nil, ErrInternalServer
	}
	if len(memberships) == 0 {
		return []domain.RoomWithMembership{}, nil
	}

	roomIDs := make([]uint, 0, len(memberships))
	for _, m := range memberships {
		roomIDs = append(roomIDs, m.RoomID)
	}
	rooms, err := s.roomRepo.FindByIDs(ctx, roomIDs)
	if err != nil {
		logCtx.WithError(err).Error("Failed to batch-load rooms")
		return nil, ErrInternalServer
	}
	byID := make(map[uint]domain.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}

	result := make([]domain.RoomWithMembership, 0, len(memberships))
	for _, m := range memberships {
		room, ok := byID[m.RoomID]
		if !ok {
			// 成员行存在但房间缺失只可能来自缺陷，记录下来便于修复
			logCtx.WithField("room_id", m.RoomID).Error("Membership references missing room")
			continue
		}
		result = append(result, domain.RoomWithMembership{Room: room, Membership: m})
	}
	return result, nil
}

// GetRoomMembers 返回房间的成员列表（互补的查询方向），仅成员可见。
func (s *RoomService) GetRoomMembers(ctx context.Context, callerID, roomID uint, offset, limit int) ([]domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": callerID, "room_id": roomID})

	if _, err := s.findActiveRoom(ctx, logCtx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.RequireMembership(ctx, callerID, roomID); err != nil {
		return nil, err
	}

	limit = s.clampLimit(limit)
	members, err := s.memberRepo.ListByRoom(ctx, roomID, offset, limit)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list memberships by room")
		return nil, ErrInternalServer
	}
	return members, nil
}

// TransferOwnership 把房主角色转移给另一名成员。
// 先提升再降级：任一时刻房间都至少有一个房主。
func (s *RoomService) TransferOwnership(ctx context.Context, ownerID, roomID, newOwnerID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": ownerID, "room_id": roomID, "new_owner_id": newOwnerID})

	caller, err := s.memberRepo.Find(ctx, roomID, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return ErrForbidden
		}
		logCtx.WithError(err).Error("Failed to load caller membership")
		return ErrInternalServer
	}
	if caller.Role != domain.RoleOwner {
		return ErrForbidden
	}
	if _, err := s.memberRepo.Find(ctx, roomID, newOwnerID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return ErrMembershipNotFound
		}
		logCtx.WithError(err).Error("Failed to load target membership")
		return ErrInternalServer
	}

	if err := s.memberRepo.UpdateRole(ctx, roomID, newOwnerID, domain.RoleOwner); err != nil {
		logCtx.WithError(err).Error("Failed to promote new owner")
		return ErrInternalServer
	}
	if err := s.memberRepo.UpdateRole(ctx, roomID, ownerID, domain.RoleMember); err != nil {
		// 此刻房间有两个房主，不变式未被破坏，记录后由调用方重试
		logCtx.WithError(err).Error("Failed to demote previous owner after promotion")
		return ErrInternalServer
	}
	logCtx.Info("Room ownership transferred")
	return nil
}

// RequireMembership 返回调用者在房间内的成员行，非成员返回 ErrForbidden。
// 供消息发送、搜索、WebSocket 接入等处做访问检查。
func (s *RoomService) RequireMembership(ctx context.Context, userID, roomID uint) (*domain.Membership, error) {
	membership, err := s.memberRepo.Find(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return nil, ErrForbidden
		}
		logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).
			WithError(err).Error("Failed to check membership")
		return nil, ErrInternalServer
	}
	return membership, nil
}

// --- 私有辅助函数 ---

// clampLimit 把调用方传入的分页大小收敛到策略范围内。
// 未指定（<=0）时回落到默认页大小，列表操作永远不会发出 LIMIT 0 查询。
func (s *RoomService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.policy.DefaultPageSize
	}
	if limit > s.policy.MaxPageSize {
		return s.policy.MaxPageSize
	}
	return limit
}

func (s *RoomService) findActiveRoom(ctx context.Context, logCtx *logrus.Entry, roomID uint) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to load room")
		return nil, ErrInternalServer
	}
	if room.Disabled {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomService) publishEvent(ctx context.Context, logCtx *logrus.Entry, kind domain.EventKind, roomID uint, payload interface{}) {
	event, err := domain.NewRoomEvent(kind, roomID, payload)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build room event")
		return
	}
	// 通知只尽力而为，发布失败不影响已落库的写入
	if err := s.events.Publish(ctx, event); err != nil {
		logCtx.WithError(err).WithField("event", kind).Warn("Failed to publish room event")
	}
}
