package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType 表示消息的内容类型。
type MessageType string

const (
	MessageTypeText   MessageType = "text"   // 纯文本
	MessageTypeImage  MessageType = "image"  // 图片，Body 为 AttachmentData JSON
	MessageTypeFile   MessageType = "file"   // 文件，Body 为 AttachmentData JSON
	MessageTypeSystem MessageType = "system" // 系统消息（成员加入/离开等）
)

// IsValid 检查消息类型是否为已知类型。
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Message 表示房间内的一条消息。
// Seq 是房间内单调递增的序号（由 Redis INCR 分配），(room_id, seq) 唯一。
// 排序只依赖 Seq：两条并发写入的墙钟时间可以相同，Seq 不会。
// 删除是软删除（Deleted 置位、正文清空），保证已取到分页游标的客户端
// 后续翻页时位置不漂移。
type Message struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	RoomID    uint        `gorm:"uniqueIndex:idx_room_seq;index;not null" json:"room_id"`
	Seq       uint64      `gorm:"uniqueIndex:idx_room_seq;not null" json:"seq"`
	AuthorID  uint        `gorm:"index;not null" json:"author_id"`
	Type      MessageType `gorm:"type:varchar(16);not null" json:"type"`
	Body      string      `gorm:"type:text;not null" json:"body"`
	ReplyToID *uint       `gorm:"index" json:"reply_to_id,omitempty"` // 被回复消息的 ID，可为空
	CreatedAt time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	EditedAt  *time.Time  `json:"edited_at,omitempty"`
	Deleted   bool        `gorm:"not null;default:false" json:"deleted"`
}

// AttachmentData 是 image/file 类型消息 Body 中承载的结构化负载。
type AttachmentData struct {
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// SearchableText 返回该消息参与全文索引的文本。
// 按消息类型穷举处理，而不是按字段是否存在猜测：
// text 直接索引正文，附件类索引文件名，system 与已删除消息不进索引。
func (m *Message) SearchableText() (string, bool) {
	if m.Deleted {
		return "", false
	}
	switch m.Type {
	case MessageTypeText:
		return m.Body, true
	case MessageTypeImage, MessageTypeFile:
		att, err := m.ParseAttachment()
		if err != nil || att.FileName == "" {
			return "", false
		}
		return att.FileName, true
	case MessageTypeSystem:
		return "", false
	default:
		return "", false
	}
}

// ParseAttachment 将附件类消息的 Body 解析为 AttachmentData。
func (m *Message) ParseAttachment() (AttachmentData, error) {
	var data AttachmentData
	if m.Type != MessageTypeImage && m.Type != MessageTypeFile {
		return data, fmt.Errorf("message type %s has no attachment payload", m.Type)
	}
	if m.Body == "" {
		return data, fmt.Errorf("attachment body is empty for message %d", m.ID)
	}
	if err := json.Unmarshal([]byte(m.Body), &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal attachment data: %w", err)
	}
	return data, nil
}

// SetAttachment 将 AttachmentData 序列化后写入 Body。
func (m *Message) SetAttachment(data AttachmentData) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal attachment data: %w", err)
	}
	m.Body = string(bytes)
	return nil
}
