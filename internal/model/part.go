package model

// PartRecord 各组件之间流转的标准化配件记录 (不落库)
// Article / Brand 永远是字符串，数值字段缺省为 0
type PartRecord struct {
	Article           string  `json:"article"`
	ArticleNormalized string  `json:"article_normalized"`
	Brand             string  `json:"brand"`
	Description       string  `json:"description"`
	Price             float64 `json:"price"`
	PriceWithMarkup   float64 `json:"price_with_markup"`
	Availability      int     `json:"availability"`
	DeliveryPeriod    int     `json:"delivery_period"`
	Weight            float64 `json:"weight"`
	ArticleID         string  `json:"article_id"`
	IsOriginal        bool    `json:"is_original"`

	// 来源
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
}
