package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Config 调度器配置
type Config struct {
	Timeout       time.Duration // 单次请求超时
	RatePerSecond float64       // 每个上游每秒请求数，<=0 表示不限流
	Burst         int
	UserAgent     string
	Debug         bool
}

// Dispatcher 网络调度器 (通用组件)
type Dispatcher interface {
	// Get 发送 GET 请求
	// key: 上游唯一标识 (如 "supplier:12")，同一 key 共享连接与限流器
	Get(ctx context.Context, key, url string, params map[string]string) (*resty.Response, error)

	// Invalidate 丢弃 key 对应的客户端 (配置变更后重建)
	Invalidate(key string)
}

// restyDispatcher 是 Dispatcher 接口的具体实现
// 注意：它是私有的，外部只能通过 NewDispatcher 获取接口
type restyDispatcher struct {
	cfg     Config
	clients sync.Map // key -> *upstream
}

type upstream struct {
	client  *resty.Client
	limiter *rate.Limiter
}

var _ Dispatcher = (*restyDispatcher)(nil)

func NewDispatcher(cfg Config) Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Parts-Search/1.0"
	}
	return &restyDispatcher{cfg: cfg}
}

// Get 限流 + 单次请求，不做重试
func (d *restyDispatcher) Get(ctx context.Context, key, url string, params map[string]string) (*resty.Response, error) {
	up := d.getUpstream(key)

	if up.limiter != nil {
		if err := up.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	return up.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
}

func (d *restyDispatcher) Invalidate(key string) {
	d.clients.Delete(key)
}

// getUpstream 内部复用逻辑
func (d *restyDispatcher) getUpstream(key string) *upstream {
	if val, ok := d.clients.Load(key); ok {
		return val.(*upstream)
	}

	// 缓存未命中，创建新 Client
	client := resty.New().
		SetDebug(d.cfg.Debug).
		SetTimeout(d.cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", d.cfg.UserAgent).
		SetHeader("Accept", "application/json")

	up := &upstream{client: client}
	if d.cfg.RatePerSecond > 0 {
		up.limiter = rate.NewLimiter(rate.Limit(d.cfg.RatePerSecond), d.cfg.Burst)
	}

	// LoadOrStore 防止并发重复创建
	actual, _ := d.clients.LoadOrStore(key, up)
	return actual.(*upstream)
}
