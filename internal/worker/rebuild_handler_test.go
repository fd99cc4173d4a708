package worker_test

import (
	"context"
	"testing"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository/mocks"
	"campus-chat/internal/tasks"
	"campus-chat/internal/worker"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSearchRebuildHandler_SingleRoom(t *testing.T) {
	// Arrange: 重建 3 号房间，其他房间的消息应被跳过
	mockSearchRepo := new(mocks.SearchRepository)
	mockMsgRepo := new(mocks.MessageRepository)
	handler := worker.NewSearchRebuildHandler(mockSearchRepo, mockMsgRepo)
	ctx := context.Background()

	batch := []domain.Message{
		{ID: 1, RoomID: 3, AuthorID: 5, Type: domain.MessageTypeText, Body: "exam friday"},
		{ID: 2, RoomID: 9, AuthorID: 5, Type: domain.MessageTypeText, Body: "other room"},
		{ID: 3, RoomID: 3, AuthorID: 5, Type: domain.MessageTypeSystem, Body: "user joined"}, // system 不进索引
		{ID: 4, RoomID: 3, AuthorID: 6, Type: domain.MessageTypeText, Body: "see you there", Deleted: true},
	}
	mockSearchRepo.On("DropRoom", ctx, uint(3)).Return(nil).Once()
	mockMsgRepo.On("ListAll", ctx, uint(0), 500).Return(batch, nil).Once()
	mockMsgRepo.On("ListAll", ctx, uint(4), 500).Return([]domain.Message{}, nil).Once()
	mockSearchRepo.On("Index", ctx, mock.MatchedBy(func(d *domain.SearchDocument) bool {
		return d.MessageID == 1 && d.Body == "exam friday"
	})).Return(nil).Once()

	payload, err := tasks.NewSearchRebuildTask(3)
	require.NoError(t, err)

	// Act
	err = handler.ProcessTask(ctx, asynq.NewTask(tasks.TypeSearchRebuild, payload))

	// Assert: 只有 1 号消息进入索引
	require.NoError(t, err)
	mockSearchRepo.AssertExpectations(t)
	mockMsgRepo.AssertExpectations(t)
}

func TestSearchRebuildHandler_AllRoomsDropsEachOnce(t *testing.T) {
	// Arrange: 全量重建，每个房间的旧分片在首次遇到时丢弃一次
	mockSearchRepo := new(mocks.SearchRepository)
	mockMsgRepo := new(mocks.MessageRepository)
	handler := worker.NewSearchRebuildHandler(mockSearchRepo, mockMsgRepo)
	ctx := context.Background()

	batch := []domain.Message{
		{ID: 1, RoomID: 3, Type: domain.MessageTypeText, Body: "a"},
		{ID: 2, RoomID: 7, Type: domain.MessageTypeText, Body: "b"},
		{ID: 3, RoomID: 3, Type: domain.MessageTypeText, Body: "c"},
	}
	mockMsgRepo.On("ListAll", ctx, uint(0), 500).Return(batch, nil).Once()
	mockMsgRepo.On("ListAll", ctx, uint(3), 500).Return([]domain.Message{}, nil).Once()
	mockSearchRepo.On("DropRoom", ctx, uint(3)).Return(nil).Once()
	mockSearchRepo.On("DropRoom", ctx, uint(7)).Return(nil).Once()
	mockSearchRepo.On("Index", ctx, mock.Anything).Return(nil).Times(3)

	payload, err := tasks.NewSearchRebuildTask(0)
	require.NoError(t, err)

	err = handler.ProcessTask(ctx, asynq.NewTask(tasks.TypeSearchRebuild, payload))

	require.NoError(t, err)
	mockSearchRepo.AssertExpectations(t)
}

func TestSearchRebuildHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	mockSearchRepo := new(mocks.SearchRepository)
	mockMsgRepo := new(mocks.MessageRepository)
	handler := worker.NewSearchRebuildHandler(mockSearchRepo, mockMsgRepo)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeSearchRebuild, []byte("?")))

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
