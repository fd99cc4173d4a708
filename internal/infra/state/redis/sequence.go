package redisstate

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisSequenceAllocator 用 INCR 为每个房间分配单调递增的消息序号。
// INCR 是原子的：并发写入者各自拿到不同的值，序号即房间内的全序。
type RedisSequenceAllocator struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSequenceAllocator 创建 RedisSequenceAllocator 实例
func NewRedisSequenceAllocator(client *redis.Client, keyPrefix string) *RedisSequenceAllocator {
	if client == nil {
		panic("redis client cannot be nil for RedisSequenceAllocator")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisSequenceAllocator{client: client, keyPrefix: keyPrefix}
}

func (a *RedisSequenceAllocator) seqKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:seq", a.keyPrefix, roomID)
}

// NextSeq 原子地递增并返回房间的下一个消息序号。
func (a *RedisSequenceAllocator) NextSeq(ctx context.Context, roomID uint) (uint64, error) {
	seq, err := a.client.Incr(ctx, a.seqKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to allocate seq for room %d: %w", roomID, err)
	}
	return uint64(seq), nil
}
