package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parts_search_v1_202610/internal/model"
)

// ==================== 仓储接口 ====================

// SupplierCallLogRepository 供应商调用日志仓储接口
type SupplierCallLogRepository interface {
	Create(ctx context.Context, log *model.SupplierCallLog) error
	GetByID(ctx context.Context, id int64) (*model.SupplierCallLog, error)

	// 统计查询
	GetUsageBySupplier(ctx context.Context, supplierID int64, startTime, endTime time.Time) (*SupplierCallStats, error)
	GetDailyUsage(ctx context.Context, supplierID int64, startDate, endDate time.Time) ([]DailyCallStats, error)

	// 清理
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ==================== 统计结构 ====================

// SupplierCallStats 供应商调用统计
type SupplierCallStats struct {
	TotalCalls    int64   `json:"total_calls"`
	BrandCalls    int64   `json:"brand_calls"`
	ArticleCalls  int64   `json:"article_calls"`
	AnalogCalls   int64   `json:"analog_calls"`
	SuccessCount  int64   `json:"success_count"`
	FailedCount   int64   `json:"failed_count"`
	AuthFailures  int64   `json:"auth_failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// DailyCallStats 每日调用统计
type DailyCallStats struct {
	Date          string  `json:"date"`
	TotalCalls    int64   `json:"total_calls"`
	FailedCount   int64   `json:"failed_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// ==================== 仓储实现 ====================

type supplierCallLogRepo struct {
	db *gorm.DB
}

// NewSupplierCallLogRepository 创建供应商调用日志仓储
func NewSupplierCallLogRepository(db *gorm.DB) SupplierCallLogRepository {
	return &supplierCallLogRepo{db: db}
}

func (r *supplierCallLogRepo) Create(ctx context.Context, log *model.SupplierCallLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *supplierCallLogRepo) GetByID(ctx context.Context, id int64) (*model.SupplierCallLog, error) {
	var log model.SupplierCallLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *supplierCallLogRepo) GetUsageBySupplier(ctx context.Context, supplierID int64, startTime, endTime time.Time) (*SupplierCallStats, error) {
	var stats SupplierCallStats

	query := r.db.WithContext(ctx).Model(&model.SupplierCallLog{}).Where("supplier_id = ?", supplierID)
	if !startTime.IsZero() {
		query = query.Where("created_at >= ?", startTime)
	}
	if !endTime.IsZero() {
		query = query.Where("created_at <= ?", endTime)
	}

	err := query.Select(`
		COUNT(*) as total_calls,
		COALESCE(SUM(CASE WHEN method = 'brands' THEN 1 ELSE 0 END), 0) as brand_calls,
		COALESCE(SUM(CASE WHEN method = 'articles' THEN 1 ELSE 0 END), 0) as article_calls,
		COALESCE(SUM(CASE WHEN method = 'analogs' THEN 1 ELSE 0 END), 0) as analog_calls,
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as success_count,
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed_count,
		COALESCE(SUM(CASE WHEN error_kind = 'authentication' THEN 1 ELSE 0 END), 0) as auth_failures,
		COALESCE(AVG(duration_ms), 0) as avg_duration_ms
	`).Scan(&stats).Error

	return &stats, err
}

func (r *supplierCallLogRepo) GetDailyUsage(ctx context.Context, supplierID int64, startDate, endDate time.Time) ([]DailyCallStats, error) {
	var stats []DailyCallStats

	err := r.db.WithContext(ctx).Model(&model.SupplierCallLog{}).
		Where("supplier_id = ? AND created_at >= ? AND created_at <= ?", supplierID, startDate, endDate).
		Select(`
			DATE(created_at) as date,
			COUNT(*) as total_calls,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed_count,
			COALESCE(AVG(duration_ms), 0) as avg_duration_ms
		`).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&stats).Error

	return stats, err
}

// DeleteBefore 物理删除 cutoff 之前的日志
func (r *supplierCallLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.SupplierCallLog{})
	return result.RowsAffected, result.Error
}
