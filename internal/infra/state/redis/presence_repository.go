package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
)

// RedisPresenceRepository 是 PresenceRepository 接口的 Redis 实现。
// 每个用户一个带 TTL 的 JSON key，key 过期即视为 offline；
// 另维护一个 last_active 的 ZSET 作为清扫任务的登记表。
type RedisPresenceRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPresenceRepository 创建 RedisPresenceRepository 实例
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:" // 默认前缀 "cc:" (campus-chat)
	}
	return &RedisPresenceRepository{client: client, keyPrefix: keyPrefix}
}

// --- Key Generation Helpers ---

func (r *RedisPresenceRepository) userKey(userID uint) string {
	return fmt.Sprintf("%spresence:user:%d", r.keyPrefix, userID)
}

func (r *RedisPresenceRepository) registryKey() string {
	return r.keyPrefix + "presence:active"
}

// Set 写入用户在线状态：JSON key 带 TTL，ZSET 登记 last_active。
func (r *RedisPresenceRepository) Set(ctx context.Context, p *domain.Presence, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal presence for user %d: %w", p.UserID, err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.userKey(p.UserID), data, ttl)
	pipe.ZAdd(ctx, r.registryKey(), &redis.Z{
		Score:  float64(p.LastActive.UnixMilli()),
		Member: strconv.FormatUint(uint64(p.UserID), 10),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to set presence for user %d: %w", p.UserID, err)
	}
	return nil
}

// Get 读取用户在线状态，key 已过期时返回 ErrNotFound。
func (r *RedisPresenceRepository) Get(ctx context.Context, userID uint) (*domain.Presence, error) {
	data, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get presence for user %d: %w", userID, err)
	}
	var p domain.Presence
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal presence for user %d: %w", userID, err)
	}
	return &p, nil
}

// GetBatch 用 MGET 批量读取，已过期的用户不出现在结果中。
func (r *RedisPresenceRepository) GetBatch(ctx context.Context, userIDs []uint) (map[uint]*domain.Presence, error) {
	result := make(map[uint]*domain.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, r.userKey(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to mget presence batch: %w", err)
	}
	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			continue // key 不存在
		}
		var p domain.Presence
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			logrus.Warnf("redis: failed to unmarshal presence for user %d: %v", userIDs[i], err)
			continue
		}
		result[userIDs[i]] = &p
	}
	return result, nil
}

// Remove 删除用户在线状态并从登记表摘除。
func (r *RedisPresenceRepository) Remove(ctx context.Context, userID uint) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.userKey(userID))
	pipe.ZRem(ctx, r.registryKey(), strconv.FormatUint(uint64(userID), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to remove presence for user %d: %w", userID, err)
	}
	return nil
}

// ListStale 返回登记表中 last_active 早于 cutoff 的用户 ID。
func (r *RedisPresenceRepository) ListStale(ctx context.Context, cutoff time.Time) ([]uint, error) {
	members, err := r.client.ZRangeByScore(ctx, r.registryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list stale presence entries: %w", err)
	}
	ids := make([]uint, 0, len(members))
	for _, member := range members {
		id, parseErr := strconv.ParseUint(member, 10, 64)
		if parseErr != nil {
			logrus.Warnf("redis: malformed presence registry member '%s': %v", member, parseErr)
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
