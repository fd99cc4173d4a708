package domain

import (
	"encoding/json"
	"time"
)

// EventKind 表示房间事件流中的事件种类。
type EventKind string

const (
	EventMessageSent     EventKind = "message_sent"
	EventMessageEdited   EventKind = "message_edited"
	EventMessageDeleted  EventKind = "message_deleted"
	EventUserJoined      EventKind = "user_joined"
	EventUserLeft        EventKind = "user_left"
	EventPresenceChanged EventKind = "presence_changed"
)

// RoomEvent 是发布到房间通知频道的状态变更事件。
// 投递与扇出由订阅方（Hub / 外部通知分发器）负责，服务层只负责发布。
type RoomEvent struct {
	Kind    EventKind       `json:"kind"`
	RoomID  uint            `json:"room_id"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRoomEvent 构造一个携带 JSON 负载的房间事件。
func NewRoomEvent(kind EventKind, roomID uint, payload interface{}) (*RoomEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = bytes
	}
	return &RoomEvent{
		Kind:    kind,
		RoomID:  roomID,
		Time:    time.Now().UTC(),
		Payload: raw,
	}, nil
}
