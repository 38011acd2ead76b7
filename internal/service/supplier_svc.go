package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/internal/repository"
	"parts_search_v1_202610/pkg/net"
)

// ErrSupplierNotFound 供应商不存在
var ErrSupplierNotFound = errors.New("supplier not found")

// SupplierUsage 供应商调用统计 (汇总 + 按天)
type SupplierUsage struct {
	Supplier *model.Supplier               `json:"supplier"`
	From     time.Time                     `json:"from"`
	To       time.Time                     `json:"to"`
	Summary  *repository.SupplierCallStats `json:"summary"`
	Daily    []repository.DailyCallStats   `json:"daily"`
}

// SupplierService 供应商配置导入与调用统计
type SupplierService struct {
	supplierRepo repository.SupplierRepository
	callLogRepo  repository.SupplierCallLogRepository
	dispatcher   net.Dispatcher
	logger       *zap.Logger
}

func NewSupplierService(
	supplierRepo repository.SupplierRepository,
	callLogRepo repository.SupplierCallLogRepository,
	dispatcher net.Dispatcher,
	logger *zap.Logger,
) *SupplierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupplierService{
		supplierRepo: supplierRepo,
		callLogRepo:  callLogRepo,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Seed 按名称写入供应商配置，已存在则覆盖
// 覆盖后丢弃旧的 HTTP 客户端，使新地址 / 限流立即生效
func (s *SupplierService) Seed(ctx context.Context, suppliers []model.Supplier) error {
	for i := range suppliers {
		sup := &suppliers[i]
		if sup.APIType == "" {
			sup.APIType = model.SupplierAPITypeAutoparts
		}
		if err := s.supplierRepo.UpsertByName(ctx, sup); err != nil {
			return fmt.Errorf("seed supplier %q failed: %w", sup.Name, err)
		}
		if s.dispatcher != nil {
			s.dispatcher.Invalidate(dispatchKey(sup.ID))
		}
		if problem := sup.ConfigProblem(); problem != "" && sup.IsActive {
			s.logger.Warn("[Supplier] 配置不完整，搜索时将被跳过",
				zap.String("supplier", sup.Name), zap.String("problem", problem))
		}
	}
	s.logger.Info("[Supplier] 供应商配置已导入", zap.Int("count", len(suppliers)))
	return nil
}

// Usage 最近 days 天的调用统计
func (s *SupplierService) Usage(ctx context.Context, supplierID int64, days int) (*SupplierUsage, error) {
	if days <= 0 {
		days = 7
	}

	sup, err := s.supplierRepo.GetByID(ctx, supplierID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSupplierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load supplier failed: %w", err)
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)

	summary, err := s.callLogRepo.GetUsageBySupplier(ctx, supplierID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load call stats failed: %w", err)
	}
	daily, err := s.callLogRepo.GetDailyUsage(ctx, supplierID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily call stats failed: %w", err)
	}
	if daily == nil {
		daily = []repository.DailyCallStats{}
	}

	return &SupplierUsage{
		Supplier: sup,
		From:     from,
		To:       to,
		Summary:  summary,
		Daily:    daily,
	}, nil
}

// PurgeCallLogs 删除早于 retention 的调用日志
func (s *SupplierService) PurgeCallLogs(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.callLogRepo.DeleteBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge call logs failed: %w", err)
	}
	return n, nil
}
