package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"parts_search_v1_202610/internal/model"
)

// SupplierRepository 供应商仓储接口
type SupplierRepository interface {
	Create(ctx context.Context, supplier *model.Supplier) error
	Update(ctx context.Context, supplier *model.Supplier) error
	GetByID(ctx context.Context, id int64) (*model.Supplier, error)
	GetByName(ctx context.Context, name string) (*model.Supplier, error)
	ListActiveByAPIType(ctx context.Context, apiType string) ([]model.Supplier, error)
	UpsertByName(ctx context.Context, supplier *model.Supplier) error
}

type supplierRepo struct {
	db *gorm.DB
}

// NewSupplierRepository 创建供应商仓储
func NewSupplierRepository(db *gorm.DB) SupplierRepository {
	return &supplierRepo{db: db}
}

func (r *supplierRepo) Create(ctx context.Context, supplier *model.Supplier) error {
	return r.db.WithContext(ctx).Create(supplier).Error
}

func (r *supplierRepo) Update(ctx context.Context, supplier *model.Supplier) error {
	return r.db.WithContext(ctx).Save(supplier).Error
}

func (r *supplierRepo) GetByID(ctx context.Context, id int64) (*model.Supplier, error) {
	var supplier model.Supplier
	if err := r.db.WithContext(ctx).First(&supplier, id).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

// GetByName 按名称查询，不存在时返回 nil, nil
func (r *supplierRepo) GetByName(ctx context.Context, name string) (*model.Supplier, error) {
	var supplier model.Supplier
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&supplier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

// ListActiveByAPIType 按 ID 升序返回启用的指定类型供应商 (顺序稳定)
func (r *supplierRepo) ListActiveByAPIType(ctx context.Context, apiType string) ([]model.Supplier, error) {
	var list []model.Supplier
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND api_type = ?", true, apiType).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// UpsertByName 按名称新建或覆盖配置 (启动时从配置文件导入)
func (r *supplierRepo) UpsertByName(ctx context.Context, supplier *model.Supplier) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exist model.Supplier
		err := tx.Where("name = ?", supplier.Name).First(&exist).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(supplier).Error
		}
		if err != nil {
			return err
		}

		supplier.ID = exist.ID
		supplier.CreatedAt = exist.CreatedAt
		// 整行覆盖，Save 会写入零值字段
		return tx.Save(supplier).Error
	})
}
