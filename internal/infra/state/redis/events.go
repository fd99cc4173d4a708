package redisstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/domain"
)

// RoomEventChannel 返回指定房间事件的 Pub/Sub 频道名。
// Hub 与外部通知分发器都按这个名字订阅。
func RoomEventChannel(keyPrefix string, roomID uint) string {
	return fmt.Sprintf("%sroom:%d:events", keyPrefix, roomID)
}

// RedisEventPublisher 把房间事件发布到 Redis Pub/Sub 频道。
// 事件投递与扇出是订阅方的职责；发布方不追踪订阅者。
type RedisEventPublisher struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisEventPublisher 创建 RedisEventPublisher 实例
func NewRedisEventPublisher(client *redis.Client, keyPrefix string) *RedisEventPublisher {
	if client == nil {
		panic("redis client cannot be nil for RedisEventPublisher")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisEventPublisher{client: client, keyPrefix: keyPrefix}
}

// Publish 将事件序列化后发布到对应房间的频道。
func (p *RedisEventPublisher) Publish(ctx context.Context, event *domain.RoomEvent) error {
	channel := RoomEventChannel(p.keyPrefix, event.RoomID)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room event (%s): %w", event.Kind, err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"event":        event.Kind,
			"room_id":      event.RoomID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish event to channel %s: %w", channel, err)
	}
	return nil
}
