package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
	"campus-chat/internal/tasks"
)

const rebuildBatchSize = 500

// SearchRebuildHandler 从消息库整体重建搜索索引。
// 索引是派生的可丢弃视图，这是它的灾备恢复路径：
// 先丢弃现有分片，再按主键分批扫描消息库重放索引写入。
type SearchRebuildHandler struct {
	searchRepo repository.SearchRepository
	msgRepo    repository.MessageRepository
}

// NewSearchRebuildHandler 创建 SearchRebuildHandler 实例
func NewSearchRebuildHandler(searchRepo repository.SearchRepository, msgRepo repository.MessageRepository) *SearchRebuildHandler {
	if searchRepo == nil || msgRepo == nil {
		panic("all dependencies must be non-nil for SearchRebuildHandler")
	}
	return &SearchRebuildHandler{searchRepo: searchRepo, msgRepo: msgRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *SearchRebuildHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SearchRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Malformed rebuild task payload, skipping")
		return fmt.Errorf("failed to unmarshal rebuild payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx := logrus.WithFields(logrus.Fields{"event_id": payload.EventID, "room_id": payload.RoomID})
	logCtx.Info("Search index rebuild started")

	dropped := make(map[uint]bool)
	if payload.RoomID != 0 {
		if err := h.searchRepo.DropRoom(ctx, payload.RoomID); err != nil {
			return fmt.Errorf("failed to drop room %d index: %w", payload.RoomID, err)
		}
		dropped[payload.RoomID] = true
	}

	var afterID uint
	indexed := 0
	for {
		batch, err := h.msgRepo.ListAll(ctx, afterID, rebuildBatchSize)
		if err != nil {
			return fmt.Errorf("failed to scan messages after id %d: %w", afterID, err)
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			msg := &batch[i]
			afterID = msg.ID
			if payload.RoomID != 0 && msg.RoomID != payload.RoomID {
				continue
			}
			// 全量重建时首次遇到的房间先丢弃旧分片
			if payload.RoomID == 0 && !dropped[msg.RoomID] {
				if err := h.searchRepo.DropRoom(ctx, msg.RoomID); err != nil {
					return fmt.Errorf("failed to drop room %d index: %w", msg.RoomID, err)
				}
				dropped[msg.RoomID] = true
			}
			text, ok := msg.SearchableText()
			if !ok {
				continue
			}
			doc := &domain.SearchDocument{
				MessageID: msg.ID,
				RoomID:    msg.RoomID,
				AuthorID:  msg.AuthorID,
				Body:      text,
				CreatedAt: msg.CreatedAt,
			}
			if err := h.searchRepo.Index(ctx, doc); err != nil {
				return fmt.Errorf("failed to reindex message %d: %w", msg.ID, err)
			}
			indexed++
		}
	}

	logCtx.Infof("Search index rebuild completed, %d messages indexed", indexed)
	return nil
}
