package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"parts_search_v1_202610/internal/model"
)

const redisCacheKeyPrefix = "parts:search_cache:"

// 命中时原子地 hit_count+1 并返回整条记录；过期或不存在返回 nil
var redisHitScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then
	return false
end
if tonumber(exp) <= tonumber(ARGV[1]) then
	return false
end
redis.call('HINCRBY', KEYS[1], 'hit_count', 1)
return redis.call('HGETALL', KEYS[1])
`)

type redisSearchCacheRepo struct {
	rdb *redis.Client
	// 过期后物理保留多久 (Redis TTL = expires_at + keepAfterExpiry)
	keepAfterExpiry time.Duration
}

// NewRedisSearchCacheRepository 创建 Redis 缓存仓储 (多实例共享)
func NewRedisSearchCacheRepository(rdb *redis.Client, keepAfterExpiry time.Duration) SearchCacheRepository {
	return &redisSearchCacheRepo{rdb: rdb, keepAfterExpiry: keepAfterExpiry}
}

func (r *redisSearchCacheRepo) key(fingerprint string) string {
	return redisCacheKeyPrefix + fingerprint
}

func (r *redisSearchCacheRepo) Get(ctx context.Context, fingerprint string, now time.Time) (*model.SearchCache, error) {
	res, err := redisHitScript.Run(ctx, r.rdb, []string{r.key(fingerprint)}, now.UnixMilli()).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	return decodeRedisEntry(fingerprint, fields), nil
}

func (r *redisSearchCacheRepo) Upsert(ctx context.Context, entry *model.SearchCache) error {
	key := r.key(entry.Fingerprint)

	// MULTI/EXEC: 不会读到只写了一半的条目
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"query_type":  entry.QueryType,
			"supplier_id": entry.SupplierID,
			"params":      string(entry.Params),
			"payload":     string(entry.Payload),
			"created_at":  entry.CreatedAt.UnixMilli(),
			"expires_at":  entry.ExpiresAt.UnixMilli(),
			"hit_count":   entry.HitCount,
		})
		pipe.ExpireAt(ctx, key, entry.ExpiresAt.Add(r.keepAfterExpiry))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// DeleteExpiredBefore 过期清理交给 Redis TTL
func (r *redisSearchCacheRepo) DeleteExpiredBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *redisSearchCacheRepo) Count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, redisCacheKeyPrefix+"*", 500).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func decodeRedisEntry(fingerprint string, fields map[string]string) *model.SearchCache {
	supplierID, _ := strconv.ParseInt(fields["supplier_id"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	hitCount, _ := strconv.ParseInt(fields["hit_count"], 10, 64)

	return &model.SearchCache{
		Fingerprint: fingerprint,
		QueryType:   fields["query_type"],
		SupplierID:  supplierID,
		Params:      []byte(fields["params"]),
		Payload:     []byte(fields["payload"]),
		CreatedAt:   time.UnixMilli(createdAt),
		UpdatedAt:   time.UnixMilli(createdAt),
		ExpiresAt:   time.UnixMilli(expiresAt),
		HitCount:    hitCount,
	}
}
