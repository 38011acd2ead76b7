package repository

import (
	"context"
	"time"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/pkg/utils"
)

type memorySearchCacheRepo struct {
	cache *utils.MemoryCache[model.SearchCache]
}

// NewMemorySearchCacheRepository 创建进程内缓存仓储 (单实例部署 / 本地调试)
func NewMemorySearchCacheRepository() SearchCacheRepository {
	return &memorySearchCacheRepo{cache: utils.NewMemoryCache[model.SearchCache]()}
}

func (r *memorySearchCacheRepo) Get(_ context.Context, fingerprint string, now time.Time) (*model.SearchCache, error) {
	entry, ok := r.cache.Modify(fingerprint, now, func(e *model.SearchCache) {
		e.HitCount++
	})
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (r *memorySearchCacheRepo) Upsert(_ context.Context, entry *model.SearchCache) error {
	r.cache.Set(entry.Fingerprint, *entry, entry.ExpiresAt)
	return nil
}

func (r *memorySearchCacheRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return int64(r.cache.DeleteExpired(cutoff)), nil
}

func (r *memorySearchCacheRepo) Count(_ context.Context) (int64, error) {
	return int64(r.cache.Len()), nil
}
