package service

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"parts_search_v1_202610/internal/model"
)

// ==================== 载荷形态 ====================

// PayloadShape 供应商原始 JSON 的顶层形态
type PayloadShape int

const (
	ShapeInvalid PayloadShape = iota // 非法 JSON
	ShapeList                        // [...]
	ShapeMap                         // {...}
	ShapeScalar                      // 字符串 / 数字 / bool / null
)

func (s PayloadShape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeMap:
		return "map"
	case ShapeScalar:
		return "scalar"
	default:
		return "invalid"
	}
}

// Payload 解码结果
// Elements 是待逐个检查的候选元素，标量与非法载荷恒为空
type Payload struct {
	Shape    PayloadShape
	Elements []any
}

// 字段候选键 (按优先级)
var (
	articleKeys      = []string{"number", "articleCode", "article", "code"}
	brandKeys        = []string{"brand", "brandName", "manufacturer"}
	descriptionKeys  = []string{"description", "name"}
	priceKeys        = []string{"price", "cost"}
	availabilityKeys = []string{"availability", "quantity", "stock"}
	deliveryKeys     = []string{"deliveryPeriod", "deliveryTime"}
	weightKeys       = []string{"weight"}
	articleIDKeys    = []string{"articleId", "itemKey", "id"}
)

// DecodePayload 将原始 JSON 解码为形态变体，任何输入都不会失败
func DecodePayload(raw []byte) Payload {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{Shape: ShapeInvalid}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Payload{Shape: ShapeInvalid}
	}
	// 尾部还有内容视为非法
	if dec.More() {
		return Payload{Shape: ShapeInvalid}
	}

	switch val := v.(type) {
	case []any:
		return Payload{Shape: ShapeList, Elements: val}
	case map[string]any:
		return Payload{Shape: ShapeMap, Elements: mapElements(val)}
	default:
		return Payload{Shape: ShapeScalar}
	}
}

// mapElements dict-of-dicts 转列表
// 值为记录的键保留，其他键丢弃；本身就是单条记录时视为单元素列表
func mapElements(m map[string]any) []any {
	// 同时带品牌和编号的对象本身就是一条记录，嵌套的子对象只是它的字段
	if hasAnyKey(m, brandKeys) && hasAnyKey(m, articleKeys) {
		return []any{m}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys)

	elements := make([]any, 0, len(m))
	for _, k := range keys {
		if rec, ok := m[k].(map[string]any); ok && isRecordLike(rec) {
			elements = append(elements, rec)
		}
	}
	if len(elements) == 0 && isRecordLike(m) {
		elements = append(elements, m)
	}
	return elements
}

// sortKeys 数字键按数值排序 ("2" < "10")，其余按字典序
func sortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
}

func isRecordLike(m map[string]any) bool {
	return hasAnyKey(m, brandKeys) || hasAnyKey(m, articleKeys)
}

// looksLikePart 至少包含一个已知字段 (允许只有 articleId 的记录)
func looksLikePart(m map[string]any) bool {
	for _, keys := range [][]string{
		articleKeys, brandKeys, descriptionKeys, priceKeys,
		availabilityKeys, deliveryKeys, weightKeys, articleIDKeys,
	} {
		if hasAnyKey(m, keys) {
			return true
		}
	}
	return false
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// ==================== 记录提取 ====================

// NormalizeParts 原始载荷 -> 配件记录 (未过滤)
// 非映射元素跳过，嵌套列表只展开一层
func NormalizeParts(raw []byte) []model.PartRecord {
	payload := DecodePayload(raw)
	records := make([]model.PartRecord, 0, len(payload.Elements))

	for _, el := range payload.Elements {
		switch v := el.(type) {
		case map[string]any:
			if rec, ok := recordFromMap(v); ok {
				records = append(records, rec)
			}
		case []any:
			for _, inner := range v {
				if m, ok := inner.(map[string]any); ok {
					if rec, ok := recordFromMap(m); ok {
						records = append(records, rec)
					}
				}
			}
		}
	}
	return records
}

func recordFromMap(m map[string]any) (model.PartRecord, bool) {
	if !looksLikePart(m) {
		return model.PartRecord{}, false
	}

	article := stringField(m, articleKeys)
	return model.PartRecord{
		Article:           article,
		ArticleNormalized: NormalizeArticle(article),
		Brand:             stringField(m, brandKeys),
		Description:       stringField(m, descriptionKeys),
		Price:             floatField(m, priceKeys),
		Availability:      intField(m, availabilityKeys),
		DeliveryPeriod:    intField(m, deliveryKeys),
		Weight:            floatField(m, weightKeys),
		ArticleID:         stringField(m, articleIDKeys),
	}, true
}

// stringField 第一个存在且非空的字段
func stringField(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalarString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

func floatField(m map[string]any, keys []string) float64 {
	for _, k := range keys {
		if f, ok := parseNumber(m[k]); ok {
			return f
		}
	}
	return 0
}

// intField 超出 int32 范围的值 (含 NaN / Inf) 视为无效，返回 0
func intField(m map[string]any, keys []string) int {
	f := floatField(m, keys)
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// parseNumber 宽松解析: 123 / "123.5" / "1 234,50" / ">10" / "10+"
func parseNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		s = strings.ReplaceAll(s, " ", "")
		s = normalizeSeparators(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		// 提取第一段数字
		start := strings.IndexFunc(s, unicode.IsDigit)
		if start < 0 {
			return 0, false
		}
		end := start
		for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
			end++
		}
		f, err := strconv.ParseFloat(strings.TrimRight(s[start:end], "."), 64)
		if err != nil {
			return 0, false
		}
		if start > 0 && s[start-1] == '-' {
			f = -f
		}
		return f, true
	}
	return 0, false
}

// normalizeSeparators 统一小数点
// 同时出现 ',' 和 '.' 时靠后的是小数点，另一个是千分位: "1,234.50" / "1.234,50"
func normalizeSeparators(s string) string {
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && dot > comma:
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ".", "")
	}
	return strings.ReplaceAll(s, ",", ".")
}

// ==================== 品牌提取 ====================

// ExtractBrands 从品牌接口载荷中取出去重后的品牌名 (保持顺序)
// 支持 {"brand": ...} / "BOSCH" / {"x": {"brand": ...}}
func ExtractBrands(raw []byte) []string {
	payload := DecodePayload(raw)

	brands := make([]string, 0, len(payload.Elements))
	seen := make(map[string]struct{})
	add := func(b string) {
		key := strings.ToLower(b)
		if b == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		brands = append(brands, b)
	}

	for _, el := range payload.Elements {
		add(brandOf(el))
	}
	return brands
}

func brandOf(el any) string {
	switch v := el.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if b := stringField(v, brandKeys); b != "" {
			return b
		}
		// 嵌套一层
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sortKeys(keys)
		for _, k := range keys {
			if inner, ok := v[k].(map[string]any); ok {
				if b := stringField(inner, brandKeys); b != "" {
					return b
				}
			}
		}
	}
	return ""
}

// ==================== 编号匹配 / 去重 ====================

// NormalizeArticle 只保留字母数字并转小写
func NormalizeArticle(article string) string {
	var b strings.Builder
	b.Grow(len(article))
	for _, r := range article {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ArticlesMatch 宽松匹配：相等或互为子串，任一侧归一化后为空则不匹配
func ArticlesMatch(query, candidate string) bool {
	q := NormalizeArticle(query)
	c := NormalizeArticle(candidate)
	if q == "" || c == "" {
		return false
	}
	return q == c || strings.Contains(q, c) || strings.Contains(c, q)
}

// FilterByArticle 保留编号与查询宽松匹配的记录
func FilterByArticle(records []model.PartRecord, article string) []model.PartRecord {
	filtered := make([]model.PartRecord, 0, len(records))
	for _, rec := range records {
		if ArticlesMatch(article, rec.Article) {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// DedupeParts 按 (归一化编号, 品牌, articleId) 去重，保留首条
func DedupeParts(records []model.PartRecord) []model.PartRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.PartRecord, 0, len(records))
	for _, rec := range records {
		key := rec.ArticleNormalized + "|" + strings.ToLower(rec.Brand) + "|" + rec.ArticleID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}
