package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/internal/repository"
)

// 默认缓存时长：品牌变化慢，价格库存变化快
const (
	DefaultBrandsTTL   = 24 * time.Hour
	DefaultProductsTTL = time.Hour
	DefaultAnalogsTTL  = time.Hour
)

// CacheTTL 各查询类型的缓存时长
type CacheTTL struct {
	Brands   time.Duration
	Products time.Duration
	Analogs  time.Duration
}

// CacheStats 进程内计数 + 存储条目数
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Writes  int64 `json:"writes"`
	Entries int64 `json:"entries"`
}

// CacheService 供应商查询结果缓存
type CacheService struct {
	repo   repository.SearchCacheRepository
	ttl    CacheTTL
	logger *zap.Logger
	now    func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

func NewCacheService(repo repository.SearchCacheRepository, ttl CacheTTL, logger *zap.Logger) *CacheService {
	if ttl.Brands <= 0 {
		ttl.Brands = DefaultBrandsTTL
	}
	if ttl.Products <= 0 {
		ttl.Products = DefaultProductsTTL
	}
	if ttl.Analogs <= 0 {
		ttl.Analogs = DefaultAnalogsTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock 替换时钟 (测试)
func (s *CacheService) SetClock(now func() time.Time) {
	s.now = now
}

// TTLFor 查询类型对应的默认时长
func (s *CacheService) TTLFor(queryType string) time.Duration {
	switch queryType {
	case model.QueryTypeBrands:
		return s.ttl.Brands
	case model.QueryTypeAnalogs:
		return s.ttl.Analogs
	default:
		return s.ttl.Products
	}
}

// ==================== 指纹 ====================

// Fingerprint 查询语义 -> 定长键 (sha256 hex)
// 参数按键排序序列化，不转义 HTML，非 ASCII 原样保留
func Fingerprint(queryType string, supplierID int64, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(queryType))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(supplierID, 10)))
	h.Write([]byte{':'})
	h.Write(canonicalParams(params))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalParams encoding/json 对 map 键天然排序
func canonicalParams(params map[string]any) []byte {
	if params == nil {
		params = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		// 不可序列化的值退化为 fmt 表示，保证纯函数
		return []byte(fmt.Sprintf("%v", params))
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// ==================== 读写 ====================

// Get 读取未过期条目，命中时 hit_count+1
// 第二个返回值区分 "未命中" 与 "缓存了空结果"
func (s *CacheService) Get(ctx context.Context, queryType string, supplierID int64, params map[string]any) (json.RawMessage, bool, error) {
	fp := Fingerprint(queryType, supplierID, params)
	entry, err := s.repo.Get(ctx, fp, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}
	if entry == nil {
		s.misses.Add(1)
		return nil, false, nil
	}
	s.hits.Add(1)
	return json.RawMessage(entry.Payload), true, nil
}

// Set 按指纹覆盖写入，过期时间 = now + ttl，hit_count 重置为 1
func (s *CacheService) Set(ctx context.Context, queryType string, supplierID int64, params map[string]any, payload any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.TTLFor(queryType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache payload failed: %w", err)
	}
	paramsJSON := canonicalParams(params)

	now := s.now()
	entry := &model.SearchCache{
		Fingerprint: Fingerprint(queryType, supplierID, params),
		QueryType:   queryType,
		SupplierID:  supplierID,
		Params:      datatypes.JSON(paramsJSON),
		Payload:     datatypes.JSON(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		HitCount:    1,
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	s.writes.Add(1)
	return nil
}

// GetCached 读取并反序列化为 T
// 载荷无法解析时按未命中处理
func GetCached[T any](ctx context.Context, s *CacheService, queryType string, supplierID int64, params map[string]any) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, queryType, supplierID, params)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("[Cache] 缓存载荷无法解析，按未命中处理",
			zap.String("query_type", queryType),
			zap.Int64("supplier_id", supplierID),
			zap.Error(err))
		var zero T
		return zero, false, nil
	}
	return out, true, nil
}

// ==================== 维护 ====================

// PurgeExpired 删除过期超过 olderThan 的条目
func (s *CacheService) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	n, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired cache failed: %w", err)
	}
	return n, nil
}

// Stats 命中统计
func (s *CacheService) Stats(ctx context.Context) (*CacheStats, error) {
	entries, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count cache entries failed: %w", err)
	}
	return &CacheStats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes.Load(),
		Entries: entries,
	}, nil
}
