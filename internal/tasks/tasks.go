// Package tasks 定义后台任务的类型常量与负载结构。
// 消息写入产生的变更流（索引/移除）以及周期性维护任务都经由 asynq 投递，
// 投递语义是至少一次，处理端必须幂等。
package tasks

import (
	"encoding/json"
	"time"

	"campus-chat/internal/domain"

	"github.com/google/uuid"
)

// 任务类型常量
const (
	TypeMessageIndex  = "search:index"   // 将消息写入搜索索引
	TypeMessageRemove = "search:remove"  // 将消息从搜索索引移除
	TypeSearchRebuild = "search:rebuild" // 从消息库整体重建索引
	TypePresenceSweep = "presence:sweep" // 清扫超时的在线状态
)

// MessageIndexPayload 是索引任务的负载。
// EventID 标识变更流中的这一个事件，用于日志关联；
// 幂等性由索引写入本身保证（同一文档重复应用结果相同）。
type MessageIndexPayload struct {
	EventID  string                `json:"event_id"`
	Document domain.SearchDocument `json:"document"`
	EmitTime time.Time             `json:"emit_time"`
}

// MessageRemovePayload 是索引移除任务的负载。
type MessageRemovePayload struct {
	EventID   string `json:"event_id"`
	RoomID    uint   `json:"room_id"`
	MessageID uint   `json:"message_id"`
}

// SearchRebuildPayload 是索引重建任务的负载。
// RoomID 为 0 时重建所有房间的索引。
type SearchRebuildPayload struct {
	EventID string `json:"event_id"`
	RoomID  uint   `json:"room_id"`
}

// NewMessageIndexTask 构造索引任务的序列化负载。
func NewMessageIndexTask(doc *domain.SearchDocument) ([]byte, error) {
	return json.Marshal(MessageIndexPayload{
		EventID:  uuid.NewString(),
		Document: *doc,
		EmitTime: time.Now().UTC(),
	})
}

// NewMessageRemoveTask 构造索引移除任务的序列化负载。
func NewMessageRemoveTask(roomID, messageID uint) ([]byte, error) {
	return json.Marshal(MessageRemovePayload{
		EventID:   uuid.NewString(),
		RoomID:    roomID,
		MessageID: messageID,
	})
}

// NewSearchRebuildTask 构造索引重建任务的序列化负载。
func NewSearchRebuildTask(roomID uint) ([]byte, error) {
	return json.Marshal(SearchRebuildPayload{
		EventID: uuid.NewString(),
		RoomID:  roomID,
	})
}

// NewPresenceSweepTask 构造在线状态清扫任务的序列化负载（无内容）。
func NewPresenceSweepTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
