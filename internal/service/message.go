package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
	"campus-chat/internal/tasks"

	"github.com/sirupsen/logrus"
)

// Enqueuer 抽象后台任务队列客户端，便于在测试中替换。
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload []byte, queue string) error
}

// MessagePolicy 是注入 MessageService 的显式配置。
type MessagePolicy struct {
	MaxBodyBytes    int // 消息正文的最大字节数
	DefaultPageSize int
	MaxPageSize     int
	Retry           RetryPolicy
}

// MessageService 负责消息的写入、读取与搜索。
// 搜索索引的更新走异步变更流（asynq 任务），永远不在发送消息的
// 关键路径上：入队失败只记日志，消息照常落库。
type MessageService struct {
	msgRepo    repository.MessageRepository
	memberRepo repository.MembershipRepository
	roomRepo   repository.RoomRepository
	seq        repository.SequenceAllocator
	search     repository.SearchRepository
	events     repository.EventPublisher
	enqueuer   Enqueuer
	policy     MessagePolicy
}

// NewMessageService 创建 MessageService 实例。
func NewMessageService(
	msgRepo repository.MessageRepository,
	memberRepo repository.MembershipRepository,
	roomRepo repository.RoomRepository,
	seq repository.SequenceAllocator,
	search repository.SearchRepository,
	events repository.EventPublisher,
	enqueuer Enqueuer,
	policy MessagePolicy,
) *MessageService {
	if msgRepo == nil || memberRepo == nil || roomRepo == nil || seq == nil || search == nil || events == nil || enqueuer == nil {
		panic("all dependencies must be non-nil for MessageService")
	}
	if policy.MaxBodyBytes <= 0 {
		policy.MaxBodyBytes = 4096
	}
	if policy.DefaultPageSize <= 0 {
		policy.DefaultPageSize = 50
	}
	if policy.MaxPageSize <= 0 {
		policy.MaxPageSize = 200
	}
	return &MessageService{
		msgRepo:    msgRepo,
		memberRepo: memberRepo,
		roomRepo:   roomRepo,
		seq:        seq,
		search:     search,
		events:     events,
		enqueuer:   enqueuer,
		policy:     policy,
	}
}

// SendMessage 在房间内发送一条消息。
// 非成员发送返回 ErrForbidden。序号由 Redis INCR 原子分配，
// 并发写入者各自拿到不同的 Seq，房间内顺序由 Seq 决定。
func (s *MessageService) SendMessage(ctx context.Context, authorID, roomID uint, body string, msgType domain.MessageType, replyTo *uint) (*domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": authorID, "room_id": roomID, "msg_type": msgType})

	// 1. 输入校验：按消息类型穷举
	if !msgType.IsValid() {
		return nil, ErrValidation
	}
	if err := s.validateBody(msgType, body); err != nil {
		return nil, err
	}

	// 2. 房间存在性与成员检查
	if err := s.requireActiveRoom(ctx, logCtx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.requireMembership(ctx, logCtx, authorID, roomID); err != nil {
		return nil, err
	}

	// 3. reply_to 必须指向同房间的既有消息
	if replyTo != nil {
		parent, err := s.msgRepo.FindByID(ctx, *replyTo)
		if err != nil || parent.RoomID != roomID {
			return nil, ErrValidation
		}
	}

	// 4. 分配房间内单调序号并落库
	seq, err := s.seq.NextSeq(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to allocate message sequence")
		return nil, ErrInternalServer
	}
	msg := &domain.Message{
		RoomID:    roomID,
		Seq:       seq,
		AuthorID:  authorID,
		Type:      msgType,
		Body:      body,
		ReplyToID: replyTo,
		CreatedAt: time.Now().UTC(),
	}
	err = withRetry(ctx, logCtx, s.policy.Retry, func() error {
		return s.msgRepo.Save(ctx, msg)
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to save message")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithFields(logrus.Fields{"message_id": msg.ID, "seq": msg.Seq})

	// 5. 发布房间事件 + 异步索引，均不在响应关键路径上
	s.publishEvent(ctx, logCtx, domain.EventMessageSent, roomID, msg)
	s.enqueueIndex(ctx, logCtx, msg)

	logCtx.Info("Message sent")
	return msg, nil
}

// ListMessages 按 Seq 升序分页返回房间消息。
// 软删除的消息保留在原位（正文已清空、Deleted 置位），翻页游标稳定。
// 房间关闭历史时（history_public=false），加入时间之前的消息对该成员隐藏。
func (s *MessageService) ListMessages(ctx context.Context, callerID, roomID uint, afterSeq uint64, limit int) ([]domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": callerID, "room_id": roomID})

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to load room")
		return nil, ErrInternalServer
	}
	membership, err := s.requireMembership(ctx, logCtx, callerID, roomID)
	if err != nil {
		return nil, err
	}

	limit = s.clampLimit(limit)
	msgs, err := s.msgRepo.ListByRoom(ctx, roomID, afterSeq, limit)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list messages")
		return nil, ErrInternalServer
	}

	if !room.HistoryPublic {
		visible := msgs[:0]
		for _, m := range msgs {
			if !m.CreatedAt.Before(membership.JoinedAt) {
				visible = append(visible, m)
			}
		}
		msgs = visible
	}
	return msgs, nil
}

// EditMessage 修改消息正文，仅原作者可编辑。
// 新正文必须对消息的既有类型仍然合法：附件消息的正文仍须是
// 可解析的附件 JSON，否则已存库的消息会从索引与展示路径上坏掉。
func (s *MessageService) EditMessage(ctx context.Context, actorID, messageID uint, newBody string) (*domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": actorID, "message_id": messageID})

	msg, err := s.loadMessage(ctx, logCtx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actorID {
		return nil, ErrForbidden
	}
	if msg.Deleted {
		return nil, ErrMessageNotFound
	}
	if err := s.validateBody(msg.Type, newBody); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg.Body = newBody
	msg.EditedAt = &now
	if err := s.msgRepo.Update(ctx, msg); err != nil {
		logCtx.WithError(err).Error("Failed to update message")
		return nil, ErrInternalServer
	}

	s.publishEvent(ctx, logCtx, domain.EventMessageEdited, msg.RoomID, msg)
	s.enqueueIndex(ctx, logCtx, msg)
	logCtx.Info("Message edited")
	return msg, nil
}

// DeleteMessage 软删除消息：置 Deleted、清空正文，位置保留。
// 作者可删除自己的消息，moderator/owner 可删除房间内任意消息。
func (s *MessageService) DeleteMessage(ctx context.Context, actorID, messageID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": actorID, "message_id": messageID})

	msg, err := s.loadMessage(ctx, logCtx, messageID)
	if err != nil {
		return err
	}
	if msg.Deleted {
		return nil // 幂等
	}
	if msg.AuthorID != actorID {
		membership, err := s.requireMembership(ctx, logCtx, actorID, msg.RoomID)
		if err != nil {
			return err
		}
		if !membership.Role.CanModerate() {
			return ErrForbidden
		}
	}

	msg.Deleted = true
	msg.Body = ""
	if err := s.msgRepo.Update(ctx, msg); err != nil {
		logCtx.WithError(err).Error("Failed to mark message deleted")
		return ErrInternalServer
	}

	s.publishEvent(ctx, logCtx, domain.EventMessageDeleted, msg.RoomID, msg)
	s.enqueueRemove(ctx, logCtx, msg.RoomID, msg.ID)
	logCtx.Info("Message deleted")
	return nil
}

// SearchMessages 在房间内做全文搜索，仅成员可用。
// 索引是非权威的派生视图：索引层出错时降级为空结果并告警，
// 不把索引故障作为用户可见错误透出。
func (s *MessageService) SearchMessages(ctx context.Context, callerID, roomID uint, query string, limit int) ([]domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": callerID, "room_id": roomID})

	if strings.TrimSpace(query) == "" {
		return nil, ErrValidation
	}
	if err := s.requireActiveRoom(ctx, logCtx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.requireMembership(ctx, logCtx, callerID, roomID); err != nil {
		return nil, err
	}

	limit = s.clampLimit(limit)
	ids, err := s.search.Query(ctx, roomID, query, limit)
	if err != nil {
		logCtx.WithError(err).Warn("Search index query failed, degrading to empty result")
		return []domain.Message{}, nil
	}

	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.msgRepo.FindByID(ctx, id)
		if err != nil {
			// 索引允许滞后：已删或尚未同步的条目直接跳过
			continue
		}
		if msg.Deleted || msg.RoomID != roomID {
			continue
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

// --- 私有辅助函数 ---

func (s *MessageService) requireActiveRoom(ctx context.Context, logCtx *logrus.Entry, roomID uint) error {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to load room")
		return ErrInternalServer
	}
	if room.Disabled {
		return ErrRoomNotFound
	}
	return nil
}

func (s *MessageService) requireMembership(ctx context.Context, logCtx *logrus.Entry, userID, roomID uint) (*domain.Membership, error) {
	membership, err := s.memberRepo.Find(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return nil, ErrForbidden
		}
		logCtx.WithError(err).Error("Failed to check membership")
		return nil, ErrInternalServer
	}
	return membership, nil
}

func (s *MessageService) loadMessage(ctx context.Context, logCtx *logrus.Entry, messageID uint) (*domain.Message, error) {
	msg, err := s.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		logCtx.WithError(err).Error("Failed to load message")
		return nil, ErrInternalServer
	}
	return msg, nil
}

// validateBody 按消息类型校验正文。文本与系统消息要求非空；
// 图片与文件消息的正文承载附件 JSON，必须能解析出附件结构。
func (s *MessageService) validateBody(msgType domain.MessageType, body string) error {
	switch msgType {
	case domain.MessageTypeText, domain.MessageTypeSystem:
		if strings.TrimSpace(body) == "" {
			return ErrValidation
		}
	case domain.MessageTypeImage, domain.MessageTypeFile:
		candidate := domain.Message{Type: msgType, Body: body}
		if _, err := candidate.ParseAttachment(); err != nil {
			return ErrValidation
		}
	}
	if len(body) > s.policy.MaxBodyBytes {
		return ErrValidation
	}
	return nil
}

func (s *MessageService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.policy.DefaultPageSize
	}
	if limit > s.policy.MaxPageSize {
		return s.policy.MaxPageSize
	}
	return limit
}

func (s *MessageService) enqueueIndex(ctx context.Context, logCtx *logrus.Entry, msg *domain.Message) {
	text, ok := msg.SearchableText()
	if !ok {
		return
	}
	payload, err := tasks.NewMessageIndexTask(&domain.SearchDocument{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		AuthorID:  msg.AuthorID,
		Body:      text,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to build index task payload")
		return
	}
	if err := s.enqueuer.Enqueue(ctx, tasks.TypeMessageIndex, payload, "default"); err != nil {
		// fire-and-forget：索引滞后可接受，不影响发送结果
		logCtx.WithError(err).Warn("Failed to enqueue index task")
	}
}

func (s *MessageService) enqueueRemove(ctx context.Context, logCtx *logrus.Entry, roomID, messageID uint) {
	payload, err := tasks.NewMessageRemoveTask(roomID, messageID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build index removal payload")
		return
	}
	if err := s.enqueuer.Enqueue(ctx, tasks.TypeMessageRemove, payload, "default"); err != nil {
		logCtx.WithError(err).Warn("Failed to enqueue index removal task")
	}
}

func (s *MessageService) publishEvent(ctx context.Context, logCtx *logrus.Entry, kind domain.EventKind, roomID uint, payload interface{}) {
	event, err := domain.NewRoomEvent(kind, roomID, payload)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build room event")
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logCtx.WithError(err).WithField("event", kind).Warn("Failed to publish room event")
	}
}
