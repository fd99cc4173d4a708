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
	"campus-chat/internal/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type messageServiceMocks struct {
	msgRepo    *mocks.MessageRepository
	memberRepo *mocks.MembershipRepository
	roomRepo   *mocks.RoomRepository
	seq        *mocks.SequenceAllocator
	search     *mocks.SearchRepository
	events     *mocks.EventPublisher
	enqueuer   *mocks.Enqueuer
}

func newMessageService(t *testing.T) (*service.MessageService, *messageServiceMocks) {
	t.Helper()
	m := &messageServiceMocks{
		msgRepo:    new(mocks.MessageRepository),
		memberRepo: new(mocks.MembershipRepository),
		roomRepo:   new(mocks.RoomRepository),
		seq:        new(mocks.SequenceAllocator),
		search:     new(mocks.SearchRepository),
		events:     new(mocks.EventPublisher),
		enqueuer:   new(mocks.Enqueuer),
	}
	svc := service.NewMessageService(m.msgRepo, m.memberRepo, m.roomRepo, m.seq, m.search, m.events, m.enqueuer, service.MessagePolicy{})
	return svc, m
}

// --- 测试 SendMessage ---

func TestMessageService_SendMessage_AllocatesSeqAndEnqueuesIndex(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5, Role: domain.RoleMember}, nil).Once()
	m.seq.On("NextSeq", ctx, uint(3)).Return(uint64(17), nil).Once()
	m.msgRepo.On("Save", ctx, mock.MatchedBy(func(msg *domain.Message) bool {
		assert.Equal(t, uint64(17), msg.Seq)
		assert.Equal(t, uint(5), msg.AuthorID)
		assert.Equal(t, domain.MessageTypeText, msg.Type)
		return true
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Message).ID = 101
	}).Return(nil).Once()
	m.events.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.Kind == domain.EventMessageSent && e.RoomID == 3
	})).Return(nil).Once()
	m.enqueuer.On("Enqueue", ctx, tasks.TypeMessageIndex, mock.Anything, "default").Return(nil).Once()

	msg, err := svc.SendMessage(ctx, 5, 3, "hello world", domain.MessageTypeText, nil)

	require.NoError(t, err)
	assert.Equal(t, uint(101), msg.ID)
	assert.Equal(t, uint64(17), msg.Seq)
	m.seq.AssertExpectations(t)
	m.enqueuer.AssertExpectations(t)
	m.events.AssertExpectations(t)
}

func TestMessageService_SendMessage_NonMemberForbidden(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(nil, repository.ErrMembershipNotFound).Once()

	_, err := svc.SendMessage(ctx, 5, 3, "hello", domain.MessageTypeText, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrForbidden))
	m.seq.AssertNotCalled(t, "NextSeq", mock.Anything, mock.Anything)
	m.msgRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestMessageService_SendMessage_EnqueueFailureDoesNotFailSend(t *testing.T) {
	// Arrange: 索引任务投递失败，消息发送本身仍应成功
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5}, nil).Once()
	m.seq.On("NextSeq", ctx, uint(3)).Return(uint64(1), nil).Once()
	m.msgRepo.On("Save", ctx, mock.AnythingOfType("*domain.Message")).Return(nil).Once()
	m.events.On("Publish", ctx, mock.Anything).Return(nil).Once()
	m.enqueuer.On("Enqueue", ctx, tasks.TypeMessageIndex, mock.Anything, "default").Return(errors.New("queue unavailable")).Once()

	msg, err := svc.SendMessage(ctx, 5, 3, "hello", domain.MessageTypeText, nil)

	require.NoError(t, err)
	require.NotNil(t, msg)
}

func TestMessageService_SendMessage_ReplyToMustBeSameRoom(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()
	replyTo := uint(77)

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5}, nil).Once()
	// 被回复的消息在另一个房间
	m.msgRepo.On("FindByID", ctx, uint(77)).Return(&domain.Message{ID: 77, RoomID: 9}, nil).Once()

	_, err := svc.SendMessage(ctx, 5, 3, "hello", domain.MessageTypeText, &replyTo)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
	m.seq.AssertNotCalled(t, "NextSeq", mock.Anything, mock.Anything)
}

func TestMessageService_SendMessage_InvalidAttachment(t *testing.T) {
	svc, _ := newMessageService(t)
	ctx := context.Background()

	// 附件类消息的 Body 必须是合法的 AttachmentData JSON
	_, err := svc.SendMessage(ctx, 5, 3, "not-json", domain.MessageTypeImage, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
}

// --- 测试 ListMessages ---

func TestMessageService_ListMessages_HistoryHiddenBeforeJoin(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()
	joined := time.Now().UTC()

	msgs := []domain.Message{
		{ID: 1, RoomID: 3, Seq: 1, CreatedAt: joined.Add(-time.Hour)},
		{ID: 2, RoomID: 3, Seq: 2, CreatedAt: joined.Add(time.Minute)},
	}
	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3, HistoryPublic: false}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5, JoinedAt: joined}, nil).Once()
	m.msgRepo.On("ListByRoom", ctx, uint(3), uint64(0), 50).Return(msgs, nil).Once()

	result, err := svc.ListMessages(ctx, 5, 3, 0, 0)

	require.NoError(t, err)
	// 加入之前的消息对该成员不可见
	require.Len(t, result, 1)
	assert.Equal(t, uint(2), result[0].ID)
}

func TestMessageService_ListMessages_PublicHistory(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	msgs := []domain.Message{{ID: 1, RoomID: 3, Seq: 1}, {ID: 2, RoomID: 3, Seq: 2}}
	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3, HistoryPublic: true}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5}, nil).Once()
	m.msgRepo.On("ListByRoom", ctx, uint(3), uint64(0), 50).Return(msgs, nil).Once()

	result, err := svc.ListMessages(ctx, 5, 3, 0, 0)

	require.NoError(t, err)
	assert.Len(t, result, 2)
}

// --- 测试 EditMessage ---

func TestMessageService_EditMessage_AuthorOnly(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.msgRepo.On("FindByID", ctx, uint(101)).Return(&domain.Message{ID: 101, RoomID: 3, AuthorID: 8, Body: "original"}, nil).Once()

	_, err := svc.EditMessage(ctx, 5, 101, "tampered")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrForbidden), "非作者编辑应被拒绝")
	m.msgRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestMessageService_EditMessage_Success(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.msgRepo.On("FindByID", ctx, uint(101)).Return(&domain.Message{ID: 101, RoomID: 3, AuthorID: 5, Type: domain.MessageTypeText, Body: "original"}, nil).Once()
	m.msgRepo.On("Update", ctx, mock.MatchedBy(func(msg *domain.Message) bool {
		assert.Equal(t, "updated", msg.Body)
		assert.NotNil(t, msg.EditedAt)
		return true
	})).Return(nil).Once()
	m.events.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.Kind == domain.EventMessageEdited
	})).Return(nil).Once()
	m.enqueuer.On("Enqueue", ctx, tasks.TypeMessageIndex, mock.Anything, "default").Return(nil).Once()

	msg, err := svc.EditMessage(ctx, 5, 101, "updated")

	require.NoError(t, err)
	assert.Equal(t, "updated", msg.Body)
	m.msgRepo.AssertExpectations(t)
}

func TestMessageService_EditMessage_AttachmentBodyMustStayParsable(t *testing.T) {
	// Arrange: 附件类消息的正文承载 JSON，编辑成自由文本会让
	// 已存库的消息无法再解析附件
	svc, m := newMessageService(t)
	ctx := context.Background()

	stored := &domain.Message{ID: 101, RoomID: 3, AuthorID: 5, Type: domain.MessageTypeImage}
	require.NoError(t, stored.SetAttachment(domain.AttachmentData{URL: "https://cdn.example.com/a.png", FileName: "a.png"}))
	m.msgRepo.On("FindByID", ctx, uint(101)).Return(stored, nil).Times(2)

	// Act: 自由文本被拒绝
	_, err := svc.EditMessage(ctx, 5, 101, "just some text")
	assert.True(t, errors.Is(err, service.ErrValidation), "附件消息的正文必须仍是可解析的附件 JSON")
	m.msgRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)

	// Act: 合法的附件 JSON 可以通过
	m.msgRepo.On("Update", ctx, mock.AnythingOfType("*domain.Message")).Return(nil).Once()
	m.events.On("Publish", ctx, mock.Anything).Return(nil).Once()
	m.enqueuer.On("Enqueue", ctx, tasks.TypeMessageIndex, mock.Anything, "default").Return(nil).Once()

	replacement := domain.Message{Type: domain.MessageTypeImage}
	require.NoError(t, replacement.SetAttachment(domain.AttachmentData{URL: "https://cdn.example.com/b.png", FileName: "b.png"}))
	edited, err := svc.EditMessage(ctx, 5, 101, replacement.Body)

	require.NoError(t, err)
	att, err := edited.ParseAttachment()
	require.NoError(t, err)
	assert.Equal(t, "b.png", att.FileName)
}

// --- 测试 DeleteMessage ---

func TestMessageService_DeleteMessage_ModeratorCanDeleteOthers(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.msgRepo.On("FindByID", ctx, uint(101)).Return(&domain.Message{ID: 101, RoomID: 3, AuthorID: 8, Type: domain.MessageTypeText, Body: "spam"}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5, Role: domain.RoleModerator}, nil).Once()
	m.msgRepo.On("Update", ctx, mock.MatchedBy(func(msg *domain.Message) bool {
		// 软删除：置位并清空正文，位置保留
		return msg.Deleted && msg.Body == ""
	})).Return(nil).Once()
	m.events.On("Publish", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.Kind == domain.EventMessageDeleted
	})).Return(nil).Once()
	m.enqueuer.On("Enqueue", ctx, tasks.TypeMessageRemove, mock.Anything, "default").Return(nil).Once()

	err := svc.DeleteMessage(ctx, 5, 101)

	require.NoError(t, err)
	m.msgRepo.AssertExpectations(t)
	m.enqueuer.AssertExpectations(t)
}

func TestMessageService_DeleteMessage_PlainMemberForbidden(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.msgRepo.On("FindByID", ctx, uint(101)).Return(&domain.Message{ID: 101, RoomID: 3, AuthorID: 8}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5, Role: domain.RoleMember}, nil).Once()

	err := svc.DeleteMessage(ctx, 5, 101)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrForbidden))
}

func TestMessageService_DeleteMessage_AlreadyDeletedIdempotent(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.msgRepo.On("FindByID", ctx, uint(101)).Return(&domain.Message{ID: 101, RoomID: 3, AuthorID: 5, Deleted: true}, nil).Once()

	err := svc.DeleteMessage(ctx, 5, 101)

	require.NoError(t, err)
	m.msgRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

// --- 测试 SearchMessages ---

func TestMessageService_SearchMessages_Success(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5}, nil).Once()
	m.search.On("Query", ctx, uint(3), "deadline", 50).Return([]uint{101, 102}, nil).Once()
	m.msgRepo.On("FindByID", ctx, uint(101)).Return(&domain.Message{ID: 101, RoomID: 3, Body: "deadline tomorrow"}, nil).Once()
	// 索引滞后：102 已被删除，跳过而不是报错
	m.msgRepo.On("FindByID", ctx, uint(102)).Return(&domain.Message{ID: 102, RoomID: 3, Deleted: true}, nil).Once()

	result, err := svc.SearchMessages(ctx, 5, 3, "deadline", 0)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, uint(101), result[0].ID)
}

func TestMessageService_SearchMessages_IndexFailureDegradesToEmpty(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(&domain.Membership{RoomID: 3, UserID: 5}, nil).Once()
	m.search.On("Query", ctx, uint(3), "deadline", 50).Return(nil, errors.New("redis down")).Once()

	result, err := svc.SearchMessages(ctx, 5, 3, "deadline", 0)

	// 索引故障降级为空结果，不透出给用户
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestMessageService_SearchMessages_NonMemberForbidden(t *testing.T) {
	svc, m := newMessageService(t)
	ctx := context.Background()

	m.roomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	m.memberRepo.On("Find", ctx, uint(3), uint(5)).Return(nil, repository.ErrMembershipNotFound).Once()

	_, err := svc.SearchMessages(ctx, 5, 3, "deadline", 0)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrForbidden))
	m.search.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
