package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
	"campus-chat/internal/repository/mocks"
	"campus-chat/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newPresenceService(repo *mocks.PresenceRepository, events *mocks.EventPublisher) *service.PresenceService {
	return service.NewPresenceService(repo, events, service.PresencePolicy{TTL: 2 * time.Minute})
}

// --- 测试 Heartbeat ---

func TestPresenceService_Heartbeat_FirstBeatPublishes(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()
	roomID := uint(3)

	// 之前没有记录（首次上线）
	mockRepo.On("Get", ctx, uint(5)).Return(nil, repository.ErrNotFound).Once()
	mockRepo.On("Set", ctx, mock.MatchedBy(func(p *domain.Presence) bool {
		return p.UserID == 5 && p.Status == domain.PresenceOnline
	}), 2*time.Minute).Return(nil).Once()
	mockEvents.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.Kind == domain.EventPresenceChanged && e.RoomID == 3
	})).Return(nil).Once()

	presence, err := svc.Heartbeat(ctx, 5, domain.PresenceOnline, &roomID)

	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, presence.Status)
	mockRepo.AssertExpectations(t)
	mockEvents.AssertExpectations(t)
}

func TestPresenceService_Heartbeat_UnchangedDoesNotPublish(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()
	roomID := uint(3)

	prev := &domain.Presence{UserID: 5, Status: domain.PresenceOnline, RoomID: &roomID}
	mockRepo.On("Get", ctx, uint(5)).Return(prev, nil).Once()
	mockRepo.On("Set", ctx, mock.AnythingOfType("*domain.Presence"), 2*time.Minute).Return(nil).Once()

	_, err := svc.Heartbeat(ctx, 5, domain.PresenceOnline, &roomID)

	// 状态和房间都没变，只刷新 TTL，不广播
	require.NoError(t, err)
	mockEvents.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPresenceService_Heartbeat_RoomSwitchNotifiesBothRooms(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()
	oldRoom, newRoom := uint(3), uint(7)

	prev := &domain.Presence{UserID: 5, Status: domain.PresenceOnline, RoomID: &oldRoom}
	mockRepo.On("Get", ctx, uint(5)).Return(prev, nil).Once()
	mockRepo.On("Set", ctx, mock.AnythingOfType("*domain.Presence"), 2*time.Minute).Return(nil).Once()
	// 旧房间和新房间的订阅者都应收到变化
	mockEvents.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool { return e.RoomID == oldRoom })).Return(nil).Once()
	mockEvents.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool { return e.RoomID == newRoom })).Return(nil).Once()

	_, err := svc.Heartbeat(ctx, 5, domain.PresenceOnline, &newRoom)

	require.NoError(t, err)
	mockEvents.AssertExpectations(t)
}

func TestPresenceService_Heartbeat_RejectsOfflineStatus(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)

	// 下线必须走 Offline，不通过心跳表达
	_, err := svc.Heartbeat(context.Background(), 5, domain.PresenceOffline, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
	mockRepo.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

// --- 测试 Offline ---

func TestPresenceService_Offline_RemovesAndNotifies(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()
	roomID := uint(3)

	mockRepo.On("Get", ctx, uint(5)).Return(&domain.Presence{UserID: 5, Status: domain.PresenceOnline, RoomID: &roomID}, nil).Once()
	mockRepo.On("Remove", ctx, uint(5)).Return(nil).Once()
	mockEvents.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.Kind == domain.EventPresenceChanged && e.RoomID == 3
	})).Return(nil).Once()

	err := svc.Offline(ctx, 5)

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockEvents.AssertExpectations(t)
}

func TestPresenceService_Offline_AlreadyGoneIsNoop(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()

	mockRepo.On("Get", ctx, uint(5)).Return(nil, repository.ErrNotFound).Once()

	err := svc.Offline(ctx, 5)

	require.NoError(t, err)
	mockRepo.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

// --- 测试 GetBatch ---

func TestPresenceService_GetBatch_FillsAbsentAsOffline(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()

	found := map[uint]*domain.Presence{
		1: {UserID: 1, Status: domain.PresenceOnline},
	}
	mockRepo.On("GetBatch", ctx, []uint{1, 2}).Return(found, nil).Once()

	result, err := svc.GetBatch(ctx, []uint{1, 2})

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, domain.PresenceOnline, result[1].Status)
	// 已过期（缺失）的用户补为 offline，调用方无需区分
	assert.Equal(t, domain.PresenceOffline, result[2].Status)
}

// --- 测试 SweepStale ---

func TestPresenceService_SweepStale_RemovesAndNotifies(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()
	roomID := uint(3)

	mockRepo.On("ListStale", ctx, mock.AnythingOfType("time.Time")).Return([]uint{5, 6}, nil).Once()
	mockRepo.On("Get", ctx, uint(5)).Return(&domain.Presence{UserID: 5, Status: domain.PresenceOnline, RoomID: &roomID}, nil).Once()
	mockRepo.On("Remove", ctx, uint(5)).Return(nil).Once()
	// 6 号用户不在任何房间，删除后无需广播
	mockRepo.On("Get", ctx, uint(6)).Return(&domain.Presence{UserID: 6, Status: domain.PresenceAway}, nil).Once()
	mockRepo.On("Remove", ctx, uint(6)).Return(nil).Once()
	mockEvents.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.Kind == domain.EventPresenceChanged && e.RoomID == 3
	})).Return(nil).Once()

	swept, err := svc.SweepStale(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	mockRepo.AssertExpectations(t)
	mockEvents.AssertExpectations(t)
}

func TestPresenceService_SweepStale_SkipsFailedRemovals(t *testing.T) {
	mockRepo := new(mocks.PresenceRepository)
	mockEvents := new(mocks.EventPublisher)
	svc := newPresenceService(mockRepo, mockEvents)
	ctx := context.Background()

	mockRepo.On("ListStale", ctx, mock.AnythingOfType("time.Time")).Return([]uint{5}, nil).Once()
	mockRepo.On("Get", ctx, uint(5)).Return(&domain.Presence{UserID: 5}, nil).Once()
	mockRepo.On("Remove", ctx, uint(5)).Return(errors.New("redis down")).Once()

	swept, err := svc.SweepStale(ctx)

	// 单个条目失败只跳过，不中断整轮清扫
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}
