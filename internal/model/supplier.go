package model

import "strings"

// 供应商接口类型
const (
	SupplierAPITypeAutoparts = "autoparts" // ABCP 协议
	SupplierAPITypePriceFile = "price_file"
)

// Supplier 上游供应商 (身份 + 凭证)
// 搜索核心只读，不会回写任何字段
type Supplier struct {
	BaseModel

	// 1. 基础信息
	Name     string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	IsActive bool   `gorm:"not null;index" json:"is_active"`

	// 2. API 接入 (核心资产)
	APIType  string `gorm:"size:32;index;default:autoparts;comment:接口类型" json:"api_type"`
	APIURL   string `gorm:"size:255;comment:API 根地址" json:"api_url"`
	Login    string `gorm:"size:100" json:"login"`
	Password string `gorm:"size:255" json:"-"`

	// 3. 仓库 / 功能开关
	OfficeID        string `gorm:"size:50;comment:办公室/仓库ID" json:"office_id"`
	UseOnlineStocks bool   `gorm:"default:false;comment:是否查询在线库存" json:"use_online_stocks"`

	// 4. 定价
	MarkupPercent float64 `gorm:"type:decimal(6,2);default:0;comment:加价百分比" json:"markup_percent"`
}

func (Supplier) TableName() string {
	return "suppliers"
}

// IsAutoparts 是否为 ABCP 类型接口
func (s *Supplier) IsAutoparts() bool {
	return s.APIType == SupplierAPITypeAutoparts
}

// ConfigProblem 返回配置缺陷描述，配置完整时返回空串
func (s *Supplier) ConfigProblem() string {
	switch {
	case !s.IsActive:
		return "supplier is inactive"
	case !s.IsAutoparts():
		return "api type is not " + SupplierAPITypeAutoparts
	case strings.TrimSpace(s.APIURL) == "":
		return "api url is empty"
	case s.Login == "" || s.Password == "":
		return "login or password is empty"
	}
	return ""
}
