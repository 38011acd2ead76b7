package model

// SupplierCallLog 供应商接口调用日志
type SupplierCallLog struct {
	BaseModel

	// 关联
	RequestID  string `gorm:"size:36;index;comment:请求ID" json:"request_id"`
	SupplierID int64  `gorm:"index;comment:供应商ID" json:"supplier_id"`

	// 调用信息
	Method string `gorm:"size:32;index;comment:调用方法(brands/articles/analogs)" json:"method"`
	Params string `gorm:"size:512;comment:请求参数(已脱敏)" json:"params"`

	// 结果
	StatusCode int    `gorm:"default:0;comment:HTTP状态码" json:"status_code"`
	DurationMs int64  `gorm:"comment:耗时(毫秒)" json:"duration_ms"`
	Status     string `gorm:"size:32;index;default:success;comment:状态(success/failed)" json:"status"`
	ErrorKind  string `gorm:"size:32;comment:错误类型" json:"error_kind"`
	ErrorMsg   string `gorm:"size:1024;comment:错误信息" json:"error_msg"`
}

func (SupplierCallLog) TableName() string {
	return "supplier_call_logs"
}

// ==================== 调用方法常量 ====================

const (
	SupplierMethodBrands   = "brands"
	SupplierMethodArticles = "articles"
	SupplierMethodAnalogs  = "analogs"
)

// ==================== 状态常量 ====================

const (
	SupplierCallStatusSuccess = "success"
	SupplierCallStatusFailed  = "failed"
)
