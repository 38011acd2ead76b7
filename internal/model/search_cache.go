package model

import (
	"time"

	"gorm.io/datatypes"
)

// 查询类型
const (
	QueryTypeBrands   = "brands"
	QueryTypeProducts = "products"
	QueryTypeAnalogs  = "analogs"
)

// SearchCache 供应商查询结果缓存
// Fingerprint 唯一；过期后行仍保留，下次写入同指纹时覆盖
type SearchCache struct {
	ID          int64          `gorm:"primaryKey" json:"id"`
	Fingerprint string         `gorm:"uniqueIndex;size:64;not null" json:"fingerprint"`
	QueryType   string         `gorm:"size:32;index;not null" json:"query_type"`
	SupplierID  int64          `gorm:"index" json:"supplier_id"`
	Params      datatypes.JSON `gorm:"comment:查询参数(审计用)" json:"params"`
	Payload     datatypes.JSON `gorm:"comment:缓存结果" json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExpiresAt   time.Time      `gorm:"index;not null" json:"expires_at"`
	HitCount    int64          `gorm:"default:0" json:"hit_count"`
}

func (SearchCache) TableName() string {
	return "search_caches"
}
