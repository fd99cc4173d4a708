package redisstate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/domain"
	"campus-chat/internal/repository"
)

// RedisSearchRepository 是 SearchRepository 接口的 Redis 实现：
// 按房间分片的倒排索引。每个词项一个消息 ID 集合，每个文档一个 Hash
// （正文、作者、时间戳、词项清单）。写入是确定性的覆盖操作，
// 同一文档重复应用结果不变，满足变更流至少一次投递所要求的幂等性。
type RedisSearchRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSearchRepository 创建 RedisSearchRepository 实例
func NewRedisSearchRepository(client *redis.Client, keyPrefix string) *RedisSearchRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisSearchRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisSearchRepository{client: client, keyPrefix: keyPrefix}
}

// --- Key Generation Helpers ---

func (r *RedisSearchRepository) tokenKey(roomID uint, token string) string {
	return fmt.Sprintf("%ssearch:room:%d:token:%s", r.keyPrefix, roomID, token)
}

func (r *RedisSearchRepository) docKey(roomID, messageID uint) string {
	return fmt.Sprintf("%ssearch:room:%d:doc:%d", r.keyPrefix, roomID, messageID)
}

func (r *RedisSearchRepository) roomPattern(roomID uint) string {
	return fmt.Sprintf("%ssearch:room:%d:*", r.keyPrefix, roomID)
}

// Index 将搜索文档写入索引。文档已存在时先摘掉旧词项再登记新词项，
// 因此编辑消息后的重复索引也收敛到同一终态。
func (r *RedisSearchRepository) Index(ctx context.Context, doc *domain.SearchDocument) error {
	tokens := tokenize(doc.Body)
	docKey := r.docKey(doc.RoomID, doc.MessageID)

	// 旧词项清单（首次索引时为空）
	oldField, err := r.client.HGet(ctx, docKey, "tokens").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis: failed to read old token list for doc %d: %w", doc.MessageID, err)
	}
	oldTokens := splitTokenField(oldField)

	member := strconv.FormatUint(uint64(doc.MessageID), 10)
	pipe := r.client.Pipeline()
	for _, tok := range diff(oldTokens, tokens) {
		pipe.SRem(ctx, r.tokenKey(doc.RoomID, tok), member)
	}
	for _, tok := range tokens {
		pipe.SAdd(ctx, r.tokenKey(doc.RoomID, tok), member)
	}
	pipe.HSet(ctx, docKey, map[string]interface{}{
		"body":       doc.Body,
		"author_id":  doc.AuthorID,
		"created_at": doc.CreatedAt.UnixMilli(),
		"tokens":     strings.Join(tokens, " "),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to index doc %d in room %d: %w", doc.MessageID, doc.RoomID, err)
	}
	return nil
}

// Remove 将消息从索引中摘除。文档本就不在时是 no-op。
func (r *RedisSearchRepository) Remove(ctx context.Context, roomID, messageID uint) error {
	docKey := r.docKey(roomID, messageID)
	oldField, err := r.client.HGet(ctx, docKey, "tokens").Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("redis: failed to read token list for doc %d: %w", messageID, err)
	}
	member := strconv.FormatUint(uint64(messageID), 10)
	pipe := r.client.Pipeline()
	for _, tok := range splitTokenField(oldField) {
		pipe.SRem(ctx, r.tokenKey(roomID, tok), member)
	}
	pipe.Del(ctx, docKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to remove doc %d from room %d index: %w", messageID, roomID, err)
	}
	return nil
}

// Query 对查询词做 AND 语义的倒排求交，按时间倒序返回消息 ID。
func (r *RedisSearchRepository) Query(ctx context.Context, roomID uint, query string, limit int) ([]uint, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		keys = append(keys, r.tokenKey(roomID, tok))
	}
	members, err := r.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: search query failed for room %d: %w", roomID, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	// 取每个命中文档的时间戳用于排序
	type hit struct {
		id        uint
		createdAt int64
	}
	hits := make([]hit, 0, len(members))
	for _, member := range members {
		id, parseErr := strconv.ParseUint(member, 10, 64)
		if parseErr != nil {
			logrus.Warnf("redis: malformed search index member '%s' in room %d", member, roomID)
			continue
		}
		tsStr, tsErr := r.client.HGet(ctx, r.docKey(roomID, uint(id)), "created_at").Result()
		if tsErr != nil {
			continue // 文档刚被移除，跳过
		}
		ts, _ := strconv.ParseInt(tsStr, 10, 64)
		hits = append(hits, hit{id: uint(id), createdAt: ts})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].createdAt > hits[j].createdAt })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]uint, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.id)
	}
	return ids, nil
}

// DropRoom 用 SCAN 丢弃房间的整个索引分片（重建前调用）。
func (r *RedisSearchRepository) DropRoom(ctx context.Context, roomID uint) error {
	iter := r.client.Scan(ctx, 0, r.roomPattern(roomID), 0).Iterator()
	batch := make([]string, 0, 128)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 128 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis: failed to drop index keys for room %d: %w", roomID, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan failed while dropping room %d index: %w", roomID, err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis: failed to drop index keys for room %d: %w", roomID, err)
		}
	}
	return nil
}

// 编译期断言实现满足接口
var _ repository.SearchRepository = (*RedisSearchRepository)(nil)

// --- 词法辅助函数 ---

// tokenize 把文本切成小写词项：字母数字为词，其余为分隔符，去重。
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

func splitTokenField(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Fields(field)
}

// diff 返回在 old 中但不在 next 中的词项。
func diff(old, next []string) []string {
	keep := make(map[string]struct{}, len(next))
	for _, tok := range next {
		keep[tok] = struct{}{}
	}
	var removed []string
	for _, tok := range old {
		if _, ok := keep[tok]; !ok {
			removed = append(removed, tok)
		}
	}
	return removed
}
