package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/internal/repository"
	"parts_search_v1_202610/pkg/net"
)

const (
	abcpBrandsPath   = "/search/brands/"
	abcpArticlesPath = "/search/articles/"

	DefaultAnalogLimit       = 20
	defaultAnalogConcurrency = 4

	maxLoggedParams = 512
	maxLoggedError  = 1024
	callLogTimeout  = 5 * time.Second
)

// SupplierClient 单个供应商的接口封装
// 原始载荷原样返回，标准化交给 normalizer
type SupplierClient interface {
	Supplier() *model.Supplier
	ListBrands(ctx context.Context, article string) (json.RawMessage, error)
	ListArticles(ctx context.Context, article, brand string) (json.RawMessage, error)
	ListAnalogs(ctx context.Context, article, brand string, limit int) ([]model.PartRecord, error)
}

// SupplierClientFactory 按供应商配置构造客户端
type SupplierClientFactory func(supplier *model.Supplier) SupplierClient

// ClientOptions 客户端公共参数
type ClientOptions struct {
	AnalogConcurrency int // 同义词查询时按品牌并发拉取的上限
}

// AbcpClient ABCP 协议客户端
type AbcpClient struct {
	supplier   *model.Supplier
	dispatcher net.Dispatcher
	logRepo    repository.SupplierCallLogRepository
	logger     *zap.Logger
	opts       ClientOptions
}

var _ SupplierClient = (*AbcpClient)(nil)

func NewAbcpClient(
	supplier *model.Supplier,
	dispatcher net.Dispatcher,
	logRepo repository.SupplierCallLogRepository,
	logger *zap.Logger,
	opts ClientOptions,
) *AbcpClient {
	if opts.AnalogConcurrency <= 0 {
		opts.AnalogConcurrency = defaultAnalogConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbcpClient{
		supplier:   supplier,
		dispatcher: dispatcher,
		logRepo:    logRepo,
		logger:     logger.With(zap.Int64("supplier_id", supplier.ID), zap.String("supplier", supplier.Name)),
		opts:       opts,
	}
}

// NewAbcpClientFactory 共享调度器与日志仓储的工厂
func NewAbcpClientFactory(
	dispatcher net.Dispatcher,
	logRepo repository.SupplierCallLogRepository,
	logger *zap.Logger,
	opts ClientOptions,
) SupplierClientFactory {
	return func(supplier *model.Supplier) SupplierClient {
		return NewAbcpClient(supplier, dispatcher, logRepo, logger, opts)
	}
}

func (c *AbcpClient) Supplier() *model.Supplier {
	return c.supplier
}

// ==================== 接口方法 ====================

// ListBrands 查询编号对应的品牌列表
func (c *AbcpClient) ListBrands(ctx context.Context, article string) (json.RawMessage, error) {
	params := map[string]string{"number": article}
	return c.call(ctx, model.SupplierMethodBrands, abcpBrandsPath, params)
}

// ListArticles 查询编号 + 品牌的商品明细
func (c *AbcpClient) ListArticles(ctx context.Context, article, brand string) (json.RawMessage, error) {
	params := map[string]string{"number": article}
	if brand != "" {
		params["brand"] = brand
	}
	return c.call(ctx, model.SupplierMethodArticles, abcpArticlesPath, params)
}

// ListAnalogs 同义词 (跨品牌替代件) 查询
// 1. 重新查询品牌 2. 按品牌并发拉取明细 3. 合并去重并标记原厂
func (c *AbcpClient) ListAnalogs(ctx context.Context, article, brand string, limit int) ([]model.PartRecord, error) {
	if limit <= 0 {
		limit = DefaultAnalogLimit
	}
	start := time.Now()
	logParams := map[string]string{"number": article, "brand": brand, "limit": fmt.Sprint(limit)}

	records, err := c.listAnalogs(ctx, article, brand, limit)
	c.recordCall(ctx, model.SupplierMethodAnalogs, logParams, 0, time.Since(start), err)
	return records, err
}

func (c *AbcpClient) listAnalogs(ctx context.Context, article, brand string, limit int) ([]model.PartRecord, error) {
	rawBrands, err := c.ListBrands(ctx, article)
	if err != nil {
		return nil, err
	}
	brands := ExtractBrands(rawBrands)
	if len(brands) == 0 {
		return []model.PartRecord{}, nil
	}

	payloads := make([]json.RawMessage, len(brands))
	errs := make([]error, len(brands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.AnalogConcurrency)
	for i, b := range brands {
		g.Go(func() error {
			// 单个品牌失败不影响其他品牌
			payloads[i], errs[i] = c.ListArticles(gctx, article, b)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	merged := make([]model.PartRecord, 0)
	for i := range brands {
		if errs[i] != nil {
			if errors.Is(errs[i], ErrAuthentication) {
				return nil, errs[i]
			}
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		merged = append(merged, NormalizeParts(payloads[i])...)
	}
	// 全部失败才算失败
	if len(merged) == 0 && firstErr != nil {
		return nil, firstErr
	}

	merged = DedupeParts(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	for i := range merged {
		merged[i].IsOriginal = brand != "" && strings.EqualFold(merged[i].Brand, brand)
		merged[i].SupplierID = c.supplier.ID
		merged[i].SupplierName = c.supplier.Name
	}
	return merged, nil
}

// ==================== 请求与分类 ====================

func (c *AbcpClient) call(ctx context.Context, method, path string, opParams map[string]string) (json.RawMessage, error) {
	start := time.Now()

	// 前置检查，不发起任何网络请求
	if problem := c.supplier.ConfigProblem(); problem != "" {
		err := c.fail(ErrConfiguration, method, 0, problem, nil)
		c.recordCall(ctx, method, opParams, 0, time.Since(start), err)
		return nil, err
	}

	params := c.authParams()
	for k, v := range opParams {
		params[k] = v
	}
	endpoint := strings.TrimRight(c.supplier.APIURL, "/") + path

	resp, err := c.dispatcher.Get(ctx, dispatchKey(c.supplier.ID), endpoint, params)
	if err != nil {
		callErr := c.fail(ErrHTTP, method, 0, "request failed", err)
		c.recordCall(ctx, method, params, 0, time.Since(start), callErr)
		return nil, callErr
	}

	status := resp.StatusCode()
	body, callErr := c.classify(method, status, resp.Header().Get("Content-Type"), resp.Body())
	c.recordCall(ctx, method, params, status, time.Since(start), callErr)
	if callErr != nil {
		return nil, callErr
	}
	return body, nil
}

// classify 将 HTTP 结果映射为成功载荷或分类错误
func (c *AbcpClient) classify(method string, status int, contentType string, body []byte) (json.RawMessage, error) {
	switch {
	case status == http.StatusForbidden:
		return nil, c.fail(ErrAuthentication, method, status, snippet(body), nil)
	case status != http.StatusOK:
		return nil, c.fail(ErrHTTP, method, status, snippet(body), nil)
	}

	body, err := toUTF8(contentType, body)
	if err != nil {
		return nil, c.fail(ErrMalformedResponse, method, status, "charset decode failed", err)
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, c.fail(ErrMalformedResponse, method, status, snippet(body), nil)
	}

	if code, msg, ok := apiError(body); ok {
		se := c.fail(ErrSupplierAPI, method, status, msg, nil)
		se.Code = code
		return nil, se
	}
	return json.RawMessage(body), nil
}

// apiError 识别 {"errorCode": ..., "errorMessage": ...}
func apiError(body []byte) (code, msg string, ok bool) {
	if len(body) == 0 || body[0] != '{' {
		return "", "", false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return "", "", false
	}
	code = scalarString(m["errorCode"])
	msg = scalarString(m["errorMessage"])
	if code == "" && msg == "" {
		return "", "", false
	}
	return code, msg, true
}

// toUTF8 按 Content-Type 声明转码 windows-1251
func toUTF8(contentType string, body []byte) ([]byte, error) {
	ct := strings.ToLower(contentType)
	if !strings.Contains(ct, "windows-1251") && !strings.Contains(ct, "cp1251") {
		return body, nil
	}
	reader := transform.NewReader(bytes.NewReader(body), charmap.Windows1251.NewDecoder())
	return io.ReadAll(reader)
}

func (c *AbcpClient) fail(kind error, method string, status int, msg string, cause error) *SupplierError {
	return &SupplierError{
		Kind:       kind,
		SupplierID: c.supplier.ID,
		Method:     method,
		StatusCode: status,
		Message:    msg,
		Err:        cause,
	}
}

// authParams 登录名 + 密码摘要 + 仓库参数
// userpsw 为密码的 md5 hex (ABCP 协议规定)
func (c *AbcpClient) authParams() map[string]string {
	sum := md5.Sum([]byte(c.supplier.Password))
	params := map[string]string{
		"userlogin": c.supplier.Login,
		"userpsw":   hex.EncodeToString(sum[:]),
	}
	if c.supplier.OfficeID != "" {
		params["officeId"] = c.supplier.OfficeID
	}
	if c.supplier.UseOnlineStocks {
		params["useOnlineStocks"] = "1"
	}
	return params
}

// dispatchKey 每个供应商独立的 HTTP 客户端与限流器
func dispatchKey(supplierID int64) string {
	return fmt.Sprintf("supplier:%d", supplierID)
}

// ==================== 调用日志 ====================

// recordCall 写调用日志，失败只打日志不影响结果
func (c *AbcpClient) recordCall(ctx context.Context, method string, params map[string]string, status int, dur time.Duration, callErr error) {
	if c.logRepo == nil {
		return
	}

	entry := &model.SupplierCallLog{
		RequestID:  uuid.NewString(),
		SupplierID: c.supplier.ID,
		Method:     method,
		Params:     redactParams(params),
		StatusCode: status,
		DurationMs: dur.Milliseconds(),
		Status:     model.SupplierCallStatusSuccess,
	}
	if callErr != nil {
		entry.Status = model.SupplierCallStatusFailed
		entry.ErrorKind = ErrorKindOf(callErr)
		entry.ErrorMsg = truncate(callErr.Error(), maxLoggedError)
		c.logger.Warn("[Supplier] 调用失败",
			zap.String("method", method),
			zap.Int("status", status),
			zap.Error(callErr))
	}

	// 并发模式下输家的 ctx 会被取消，日志仍需落库
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callLogTimeout)
	defer cancel()
	if err := c.logRepo.Create(logCtx, entry); err != nil {
		c.logger.Warn("[Supplier] 写调用日志失败", zap.Error(err))
	}
}

// redactParams 脱敏 + 截断
func redactParams(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		switch k {
		case "userpsw", "userlogin":
			v = "***"
		}
		values.Set(k, v)
	}
	return truncate(values.Encode(), maxLoggedParams)
}

// truncate 按字节截断，不切断多字节字符
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func snippet(body []byte) string {
	return truncate(strings.TrimSpace(string(body)), 200)
}
