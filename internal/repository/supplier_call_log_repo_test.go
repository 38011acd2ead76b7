package repository

import (
	"context"
	"testing"
	"time"

	"parts_search_v1_202610/internal/model"
)

func TestSupplierCallLogRepo_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSupplierCallLogRepository(db)
	ctx := context.Background()

	log := &model.SupplierCallLog{
		RequestID:  "req-1",
		SupplierID: 1,
		Method:     model.SupplierMethodBrands,
		Params:     "number=C15300&userpsw=%2A%2A%2A",
		StatusCode: 200,
		DurationMs: 120,
		Status:     model.SupplierCallStatusSuccess,
	}

	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == 0 {
		t.Error("ID 应该被自动分配")
	}

	found, err := repo.GetByID(ctx, log.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Method != model.SupplierMethodBrands {
		t.Errorf("Method = %s, want brands", found.Method)
	}
}

func TestSupplierCallLogRepo_GetUsageBySupplier(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSupplierCallLogRepository(db)
	ctx := context.Background()

	logs := []*model.SupplierCallLog{
		{SupplierID: 1, Method: model.SupplierMethodBrands, DurationMs: 100, Status: model.SupplierCallStatusSuccess},
		{SupplierID: 1, Method: model.SupplierMethodArticles, DurationMs: 200, Status: model.SupplierCallStatusSuccess},
		{SupplierID: 1, Method: model.SupplierMethodArticles, DurationMs: 300, Status: model.SupplierCallStatusFailed, ErrorKind: "authentication"},
		{SupplierID: 1, Method: model.SupplierMethodAnalogs, DurationMs: 400, Status: model.SupplierCallStatusFailed, ErrorKind: "http"},
		{SupplierID: 2, Method: model.SupplierMethodBrands, DurationMs: 999, Status: model.SupplierCallStatusSuccess},
	}
	for _, l := range logs {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	stats, err := repo.GetUsageBySupplier(ctx, 1, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetUsageBySupplier() error = %v", err)
	}

	if stats.TotalCalls != 4 {
		t.Errorf("TotalCalls = %d, want 4", stats.TotalCalls)
	}
	if stats.BrandCalls != 1 || stats.ArticleCalls != 2 || stats.AnalogCalls != 1 {
		t.Errorf("按方法统计错误: %+v", stats)
	}
	if stats.SuccessCount != 2 || stats.FailedCount != 2 {
		t.Errorf("成功/失败统计错误: %+v", stats)
	}
	if stats.AuthFailures != 1 {
		t.Errorf("AuthFailures = %d, want 1", stats.AuthFailures)
	}
	if stats.AvgDurationMs != 250 {
		t.Errorf("AvgDurationMs = %v, want 250", stats.AvgDurationMs)
	}
}

func TestSupplierCallLogRepo_GetDailyUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSupplierCallLogRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		repo.Create(ctx, &model.SupplierCallLog{SupplierID: 7, Method: model.SupplierMethodBrands, Status: model.SupplierCallStatusSuccess})
	}

	now := time.Now()
	daily, err := repo.GetDailyUsage(ctx, 7, now.Add(-24*time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetDailyUsage() error = %v", err)
	}

	var total int64
	for _, d := range daily {
		total += d.TotalCalls
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestSupplierCallLogRepo_DeleteBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSupplierCallLogRepository(db)
	ctx := context.Background()

	old := &model.SupplierCallLog{SupplierID: 1, Method: model.SupplierMethodBrands, Status: model.SupplierCallStatusSuccess}
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	repo.Create(ctx, old)
	repo.Create(ctx, &model.SupplierCallLog{SupplierID: 1, Method: model.SupplierMethodBrands, Status: model.SupplierCallStatusSuccess})

	deleted, err := repo.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	// 物理删除
	var count int64
	db.Unscoped().Model(&model.SupplierCallLog{}).Count(&count)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
