package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/internal/repository"
)

// ==================== 调用日志仓储替身 ====================

type fakeCallLogRepo struct {
	mu      sync.Mutex
	logs    []model.SupplierCallLog
	failing bool
}

func (r *fakeCallLogRepo) Create(_ context.Context, log *model.SupplierCallLog) error {
	if r.failing {
		return errors.New("db down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *fakeCallLogRepo) GetByID(context.Context, int64) (*model.SupplierCallLog, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeCallLogRepo) GetUsageBySupplier(context.Context, int64, time.Time, time.Time) (*repository.SupplierCallStats, error) {
	return &repository.SupplierCallStats{}, nil
}

func (r *fakeCallLogRepo) GetDailyUsage(context.Context, int64, time.Time, time.Time) ([]repository.DailyCallStats, error) {
	return nil, nil
}

func (r *fakeCallLogRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeCallLogRepo) snapshot() []model.SupplierCallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SupplierCallLog(nil), r.logs...)
}

// ==================== 供应商仓储替身 ====================

type fakeSupplierRepo struct {
	suppliers []model.Supplier
	err       error
}

func (r *fakeSupplierRepo) Create(context.Context, *model.Supplier) error { return nil }
func (r *fakeSupplierRepo) Update(context.Context, *model.Supplier) error { return nil }

func (r *fakeSupplierRepo) GetByID(_ context.Context, id int64) (*model.Supplier, error) {
	for i := range r.suppliers {
		if r.suppliers[i].ID == id {
			return &r.suppliers[i], nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *fakeSupplierRepo) GetByName(context.Context, string) (*model.Supplier, error) {
	return nil, nil
}

func (r *fakeSupplierRepo) ListActiveByAPIType(_ context.Context, apiType string) ([]model.Supplier, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []model.Supplier
	for _, s := range r.suppliers {
		if s.IsActive && s.APIType == apiType {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSupplierRepo) UpsertByName(context.Context, *model.Supplier) error { return nil }
