package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parts_search_v1_202610/internal/model"
)

// SearchCacheRepository 查询缓存存储接口
// 实现：数据库 (gorm) / Redis / 进程内内存
type SearchCacheRepository interface {
	// Get 读取 now 时刻未过期的条目并原子地 hit_count+1，未命中返回 nil, nil
	Get(ctx context.Context, fingerprint string, now time.Time) (*model.SearchCache, error)
	// Upsert 按指纹整条覆盖
	Upsert(ctx context.Context, entry *model.SearchCache) error
	// DeleteExpiredBefore 删除在 cutoff 之前已过期的条目
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Count 条目总数 (含已过期)
	Count(ctx context.Context) (int64, error)
}

type searchCacheRepo struct {
	db *gorm.DB
}

// NewSearchCacheRepository 创建数据库缓存仓储
func NewSearchCacheRepository(db *gorm.DB) SearchCacheRepository {
	return &searchCacheRepo{db: db}
}

func (r *searchCacheRepo) Get(ctx context.Context, fingerprint string, now time.Time) (*model.SearchCache, error) {
	var entry model.SearchCache
	found := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 先自增，顺带判断是否命中
		res := tx.Model(&model.SearchCache{}).
			Where("fingerprint = ? AND expires_at > ?", fingerprint, now).
			UpdateColumn("hit_count", gorm.Expr("hit_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		// 2. 读取最新内容
		if err := tx.Where("fingerprint = ?", fingerprint).First(&entry).Error; err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &entry, nil
}

func (r *searchCacheRepo) Upsert(ctx context.Context, entry *model.SearchCache) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fingerprint"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"query_type", "supplier_id", "params", "payload",
			"created_at", "updated_at", "expires_at", "hit_count",
		}),
	}).Create(entry).Error
}

func (r *searchCacheRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&model.SearchCache{})
	return result.RowsAffected, result.Error
}

func (r *searchCacheRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.SearchCache{}).Count(&total).Error
	return total, err
}
