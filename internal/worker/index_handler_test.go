package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository/mocks"
	"campus-chat/internal/tasks"
	"campus-chat/internal/worker"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSearchIndexHandler_ProcessIndex_Success(t *testing.T) {
	// Arrange
	mockSearchRepo := new(mocks.SearchRepository)
	handler := worker.NewSearchIndexHandler(mockSearchRepo)
	ctx := context.Background()

	doc := &domain.SearchDocument{
		MessageID: 101,
		RoomID:    3,
		AuthorID:  5,
		Body:      "midterm schedule posted",
		CreatedAt: time.Now().UTC(),
	}
	payload, err := tasks.NewMessageIndexTask(doc)
	require.NoError(t, err)

	mockSearchRepo.On("Index", ctx, mock.MatchedBy(func(d *domain.SearchDocument) bool {
		return d.MessageID == 101 && d.RoomID == 3 && d.Body == "midterm schedule posted"
	})).Return(nil).Once()

	// Act
	err = handler.ProcessIndex(ctx, asynq.NewTask(tasks.TypeMessageIndex, payload))

	// Assert
	require.NoError(t, err)
	mockSearchRepo.AssertExpectations(t)
}

func TestSearchIndexHandler_ProcessIndex_MalformedPayloadSkipsRetry(t *testing.T) {
	// Arrange: 损坏的负载必须跳过重试，一条坏消息不能堵塞队列
	mockSearchRepo := new(mocks.SearchRepository)
	handler := worker.NewSearchIndexHandler(mockSearchRepo)

	err := handler.ProcessIndex(context.Background(), asynq.NewTask(tasks.TypeMessageIndex, []byte("{not json")))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "损坏负载应标记 SkipRetry")
	mockSearchRepo.AssertNotCalled(t, "Index", mock.Anything, mock.Anything)
}

func TestSearchIndexHandler_ProcessIndex_StoreErrorRetries(t *testing.T) {
	// Arrange: 索引存储瞬时故障应交给 asynq 退避重试
	mockSearchRepo := new(mocks.SearchRepository)
	handler := worker.NewSearchIndexHandler(mockSearchRepo)
	ctx := context.Background()

	payload, err := tasks.NewMessageIndexTask(&domain.SearchDocument{MessageID: 101, RoomID: 3})
	require.NoError(t, err)
	mockSearchRepo.On("Index", ctx, mock.Anything).Return(errors.New("redis connection refused")).Once()

	err = handler.ProcessIndex(ctx, asynq.NewTask(tasks.TypeMessageIndex, payload))

	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "瞬时存储故障不应跳过重试")
}

func TestSearchIndexHandler_ProcessRemove_Success(t *testing.T) {
	mockSearchRepo := new(mocks.SearchRepository)
	handler := worker.NewSearchIndexHandler(mockSearchRepo)
	ctx := context.Background()

	payload, err := tasks.NewMessageRemoveTask(3, 101)
	require.NoError(t, err)
	mockSearchRepo.On("Remove", ctx, uint(3), uint(101)).Return(nil).Once()

	err = handler.ProcessRemove(ctx, asynq.NewTask(tasks.TypeMessageRemove, payload))

	require.NoError(t, err)
	mockSearchRepo.AssertExpectations(t)
}

func TestSearchIndexHandler_ProcessRemove_MalformedPayloadSkipsRetry(t *testing.T) {
	mockSearchRepo := new(mocks.SearchRepository)
	handler := worker.NewSearchIndexHandler(mockSearchRepo)

	err := handler.ProcessRemove(context.Background(), asynq.NewTask(tasks.TypeMessageRemove, []byte("\x00")))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
