// Package mocks 提供 repository 接口的 testify Mock 实现，供 service 层单元测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"campus-chat/internal/domain"
)

// RoomRepository 是 repository.RoomRepository 的 Mock 实现
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	args := m.Called(ctx, id)
	var room *domain.Room
	if args.Get(0) != nil {
		room = args.Get(0).(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Room, error) {
	args := m.Called(ctx, ids)
	var rooms []domain.Room
	if args.Get(0) != nil {
		rooms = args.Get(0).([]domain.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepository) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	args := m.Called(ctx, id, disabled)
	return args.Error(0)
}

// MembershipRepository 是 repository.MembershipRepository 的 Mock 实现
type MembershipRepository struct {
	mock.Mock
}

func (m *MembershipRepository) Insert(ctx context.Context, membership *domain.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MembershipRepository) InsertWithinCapacity(ctx context.Context, membership *domain.Membership, maxMembers int) error {
	args := m.Called(ctx, membership, maxMembers)
	return args.Error(0)
}

func (m *MembershipRepository) Find(ctx context.Context, roomID, userID uint) (*domain.Membership, error) {
	args := m.Called(ctx, roomID, userID)
	var membership *domain.Membership
	if args.Get(0) != nil {
		membership = args.Get(0).(*domain.Membership)
	}
	return membership, args.Error(1)
}

func (m *MembershipRepository) Delete(ctx context.Context, roomID, userID uint) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MembershipRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]domain.Membership, error) {
	args := m.Called(ctx, userID, offset, limit)
	var memberships []domain.Membership
	if args.Get(0) != nil {
		memberships = args.Get(0).([]domain.Membership)
	}
	return memberships, args.Error(1)
}

func (m *MembershipRepository) ListByRoom(ctx context.Context, roomID uint, offset, limit int) ([]domain.Membership, error) {
	args := m.Called(ctx, roomID, offset, limit)
	var memberships []domain.Membership
	if args.Get(0) != nil {
		memberships = args.Get(0).([]domain.Membership)
	}
	return memberships, args.Error(1)
}

func (m *MembershipRepository) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MembershipRepository) CountOwners(ctx context.Context, roomID uint) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MembershipRepository) UpdateRole(ctx context.Context, roomID, userID uint, role domain.Role) error {
	args := m.Called(ctx, roomID, userID, role)
	return args.Error(0)
}

// MessageRepository 是 repository.MessageRepository 的 Mock 实现
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepository) FindByID(ctx context.Context, id uint) (*domain.Message, error) {
	args := m.Called(ctx, id)
	var msg *domain.Message
	if args.Get(0) != nil {
		msg = args.Get(0).(*domain.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepository) ListByRoom(ctx context.Context, roomID uint, afterSeq uint64, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, afterSeq, limit)
	var msgs []domain.Message
	if args.Get(0) != nil {
		msgs = args.Get(0).([]domain.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepository) ListAll(ctx context.Context, afterID uint, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, afterID, limit)
	var msgs []domain.Message
	if args.Get(0) != nil {
		msgs = args.Get(0).([]domain.Message)
	}
	return msgs, args.Error(1)
}

// SequenceAllocator 是 repository.SequenceAllocator 的 Mock 实现
type SequenceAllocator struct {
	mock.Mock
}

func (m *SequenceAllocator) NextSeq(ctx context.Context, roomID uint) (uint64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(uint64), args.Error(1)
}

// PresenceRepository 是 repository.PresenceRepository 的 Mock 实现
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) Set(ctx context.Context, p *domain.Presence, ttl time.Duration) error {
	args := m.Called(ctx, p, ttl)
	return args.Error(0)
}

func (m *PresenceRepository) Get(ctx context.Context, userID uint) (*domain.Presence, error) {
	args := m.Called(ctx, userID)
	var p *domain.Presence
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.Presence)
	}
	return p, args.Error(1)
}

func (m *PresenceRepository) GetBatch(ctx context.Context, userIDs []uint) (map[uint]*domain.Presence, error) {
	args := m.Called(ctx, userIDs)
	var result map[uint]*domain.Presence
	if args.Get(0) != nil {
		result = args.Get(0).(map[uint]*domain.Presence)
	}
	return result, args.Error(1)
}

func (m *PresenceRepository) Remove(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceRepository) ListStale(ctx context.Context, cutoff time.Time) ([]uint, error) {
	args := m.Called(ctx, cutoff)
	var ids []uint
	if args.Get(0) != nil {
		ids = args.Get(0).([]uint)
	}
	return ids, args.Error(1)
}

// SearchRepository 是 repository.SearchRepository 的 Mock 实现
type SearchRepository struct {
	mock.Mock
}

func (m *SearchRepository) Index(ctx context.Context, doc *domain.SearchDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *SearchRepository) Remove(ctx context.Context, roomID, messageID uint) error {
	args := m.Called(ctx, roomID, messageID)
	return args.Error(0)
}

func (m *SearchRepository) Query(ctx context.Context, roomID uint, query string, limit int) ([]uint, error) {
	args := m.Called(ctx, roomID, query, limit)
	var ids []uint
	if args.Get(0) != nil {
		ids = args.Get(0).([]uint)
	}
	return ids, args.Error(1)
}

func (m *SearchRepository) DropRoom(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// EventPublisher 是 repository.EventPublisher 的 Mock 实现
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, event *domain.RoomEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// UserRepository 是 repository.UserRepository 的 Mock 实现
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	var user *domain.User
	if args.Get(0) != nil {
		user = args.Get(0).(*domain.User)
	}
	return user, args.Error(1)
}

func (m *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	var user *domain.User
	if args.Get(0) != nil {
		user = args.Get(0).(*domain.User)
	}
	return user, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// Enqueuer 是 service.Enqueuer 的 Mock 实现
type Enqueuer struct {
	mock.Mock
}

func (m *Enqueuer) Enqueue(ctx context.Context, taskType string, payload []byte, queue string) error {
	args := m.Called(ctx, taskType, payload, queue)
	return args.Error(0)
}
