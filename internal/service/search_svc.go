package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/internal/repository"
)

const SearchSourceAPI = "api"

// SearchOptions 编排参数
type SearchOptions struct {
	Concurrent  bool // 同时请求所有供应商，取第一个非空成功结果
	AnalogLimit int
}

// SearchResult 搜索结果，切片永不为 nil
type SearchResult struct {
	Original []model.PartRecord `json:"original"`
	Analogs  []model.PartRecord `json:"analogs"`
	Brands   []string           `json:"brands"`
	Cached   bool               `json:"cached"`
	Source   string             `json:"source"`
}

func newSearchResult() *SearchResult {
	return &SearchResult{
		Original: []model.PartRecord{},
		Analogs:  []model.PartRecord{},
		Brands:   []string{},
		Source:   SearchSourceAPI,
	}
}

// SearchService 品牌解析 -> 商品搜索 -> 同义词搜索
// 每个阶段按供应商顺序先查缓存再查接口，第一个非空成功结果胜出
type SearchService struct {
	supplierRepo repository.SupplierRepository
	cache        *CacheService
	newClient    SupplierClientFactory
	opts         SearchOptions
	logger       *zap.Logger
}

func NewSearchService(
	supplierRepo repository.SupplierRepository,
	cache *CacheService,
	newClient SupplierClientFactory,
	opts SearchOptions,
	logger *zap.Logger,
) *SearchService {
	if opts.AnalogLimit <= 0 {
		opts.AnalogLimit = DefaultAnalogLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{
		supplierRepo: supplierRepo,
		cache:        cache,
		newClient:    newClient,
		opts:         opts,
		logger:       logger,
	}
}

// searchState 单次搜索内的可变状态
type searchState struct {
	mu       sync.Mutex
	disabled map[int64]bool // 403 后本次搜索不再使用
	cached   bool
}

func (st *searchState) disable(id int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.disabled[id] = true
}

func (st *searchState) isDisabled(id int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.disabled[id]
}

// Search 供应商侧的任何失败都被吸收，唯一的错误是空 article
func (s *SearchService) Search(ctx context.Context, article, brand string, includeAnalogs bool) (*SearchResult, error) {
	article = strings.TrimSpace(article)
	brand = strings.TrimSpace(brand)
	if article == "" {
		return nil, ErrEmptyArticle
	}

	result := newSearchResult()

	suppliers, err := s.supplierRepo.ListActiveByAPIType(ctx, model.SupplierAPITypeAutoparts)
	if err != nil {
		s.logger.Error("[Search] 加载供应商失败", zap.Error(err))
		suppliers = nil
	}
	if len(suppliers) == 0 {
		s.logger.Warn("[Search] 没有可用的 autoparts 供应商", zap.String("article", article))
		if brand != "" {
			result.Brands = []string{brand}
		}
		return result, nil
	}

	clients := make([]SupplierClient, 0, len(suppliers))
	markups := make(map[int64]float64, len(suppliers))
	for i := range suppliers {
		clients = append(clients, s.newClient(&suppliers[i]))
		markups[suppliers[i].ID] = suppliers[i].MarkupPercent
	}
	st := &searchState{disabled: make(map[int64]bool)}

	// 1. 品牌解析
	if brand != "" {
		result.Brands = []string{brand}
	} else {
		brands, ok := runStage(ctx, s, st, clients, stage[[]string]{
			queryType: model.QueryTypeBrands,
			params:    map[string]any{"article": article},
			fetch: func(ctx context.Context, c SupplierClient) ([]string, error) {
				raw, err := c.ListBrands(ctx, article)
				if err != nil {
					return nil, err
				}
				return ExtractBrands(raw), nil
			},
		})
		if ok {
			result.Brands = brands
			brand = brands[0]
		}
	}

	if brand == "" {
		s.logger.Info("[Search] 未能解析品牌", zap.String("article", article))
		result.Cached = st.cached
		return result, nil
	}

	// 2. 商品搜索
	products, ok := runStage(ctx, s, st, clients, stage[[]model.PartRecord]{
		queryType: model.QueryTypeProducts,
		params:    map[string]any{"article": article, "brand": brand},
		fetch: func(ctx context.Context, c SupplierClient) ([]model.PartRecord, error) {
			raw, err := c.ListArticles(ctx, article, brand)
			if err != nil {
				return nil, err
			}
			records := DedupeParts(FilterByArticle(NormalizeParts(raw), article))
			stampSupplier(records, c.Supplier())
			return records, nil
		},
	})
	if ok {
		result.Original = applyMarkup(products, markups)
	}

	// 3. 同义词搜索
	if includeAnalogs {
		limit := s.opts.AnalogLimit
		analogs, ok := runStage(ctx, s, st, clients, stage[[]model.PartRecord]{
			queryType: model.QueryTypeAnalogs,
			params:    map[string]any{"article": article, "brand": brand, "limit": limit},
			fetch: func(ctx context.Context, c SupplierClient) ([]model.PartRecord, error) {
				return c.ListAnalogs(ctx, article, brand, limit)
			},
		})
		if ok {
			result.Analogs = applyMarkup(analogs, markups)
		}
	}

	result.Cached = st.cached
	s.logger.Info("[Search] 完成",
		zap.String("article", article),
		zap.String("brand", brand),
		zap.Int("original", len(result.Original)),
		zap.Int("analogs", len(result.Analogs)),
		zap.Bool("cached", result.Cached))
	return result, nil
}

// ==================== 阶段执行 ====================

// stage 一个短路阶段：缓存类型 T，非空即胜出
type stage[T any] struct {
	queryType string
	params    map[string]any
	fetch     func(ctx context.Context, c SupplierClient) (T, error)
}

// attempt 单个供应商的一次尝试 (先缓存后接口，不写缓存)
type attempt[T any] struct {
	client    SupplierClient
	value     T
	fromCache bool
	ok        bool
}

func runStage[T any](ctx context.Context, s *SearchService, st *searchState, clients []SupplierClient, sg stage[T]) (T, bool) {
	var win attempt[T]
	if s.opts.Concurrent {
		win = raceSuppliers(ctx, s, st, clients, sg)
	} else {
		for _, c := range clients {
			if ctx.Err() != nil {
				break
			}
			if a := tryOne(ctx, s, st, c, sg); a.ok {
				win = a
				break
			}
		}
	}

	if !win.ok {
		var zero T
		return zero, false
	}

	// 只有协调者写入胜出者的缓存
	if win.fromCache {
		st.mu.Lock()
		st.cached = true
		st.mu.Unlock()
	} else if err := s.cache.Set(ctx, sg.queryType, win.client.Supplier().ID, sg.params, win.value, 0); err != nil {
		s.logger.Warn("[Search] 写缓存失败", zap.String("query_type", sg.queryType), zap.Error(err))
	}
	return win.value, true
}

// raceSuppliers 并发请求，取最先到达的非空成功结果并取消其余请求
func raceSuppliers[T any](ctx context.Context, s *SearchService, st *searchState, clients []SupplierClient, sg stage[T]) attempt[T] {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attempt[T], len(clients))
	for _, c := range clients {
		go func() {
			results <- tryOne(raceCtx, s, st, c, sg)
		}()
	}

	for range clients {
		if a := <-results; a.ok {
			return a
		}
	}
	return attempt[T]{}
}

func tryOne[T any](ctx context.Context, s *SearchService, st *searchState, c SupplierClient, sg stage[T]) attempt[T] {
	sup := c.Supplier()
	a := attempt[T]{client: c}
	if st.isDisabled(sup.ID) {
		return a
	}
	log := s.logger.With(
		zap.String("query_type", sg.queryType),
		zap.Int64("supplier_id", sup.ID),
		zap.String("supplier", sup.Name))

	// 1. 缓存
	cached, hit, err := GetCached[T](ctx, s.cache, sg.queryType, sup.ID, sg.params)
	if err != nil {
		log.Warn("[Search] 读缓存失败，改查接口", zap.Error(err))
	}
	if hit {
		// 缓存的空结果表示该供应商没有数据，直接跳过
		a.value, a.fromCache, a.ok = cached, true, !isEmpty(cached)
		return a
	}

	// 2. 接口
	value, err := sg.fetch(ctx, c)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			st.disable(sup.ID)
			log.Warn("[Search] 认证失败，本次搜索停用该供应商", zap.Error(err))
		} else if !errors.Is(err, context.Canceled) {
			log.Warn("[Search] 供应商调用失败", zap.String("kind", ErrorKindOf(err)), zap.Error(err))
		}
		return a
	}
	a.value, a.ok = value, !isEmpty(value)
	return a
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case []string:
		return len(val) == 0
	case []model.PartRecord:
		return len(val) == 0
	case nil:
		return true
	}
	return false
}

// ==================== 价格 ====================

func stampSupplier(records []model.PartRecord, sup *model.Supplier) {
	for i := range records {
		records[i].SupplierID = sup.ID
		records[i].SupplierName = sup.Name
	}
}

// applyMarkup 按记录来源供应商的加价比例计算售价
func applyMarkup(records []model.PartRecord, markups map[int64]float64) []model.PartRecord {
	out := make([]model.PartRecord, len(records))
	for i, rec := range records {
		rec.PriceWithMarkup = PriceWithMarkup(rec.Price, markups[rec.SupplierID])
		out[i] = rec
	}
	return out
}

// PriceWithMarkup price * (1 + percent/100)，保留两位小数
func PriceWithMarkup(price, percent float64) float64 {
	p := decimal.NewFromFloat(price)
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100)))
	return p.Mul(factor).Round(2).InexactFloat64()
}
