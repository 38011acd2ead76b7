package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CachePurger 清理过期缓存
type CachePurger interface {
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CallLogPurger 清理旧的调用日志
type CallLogPurger interface {
	PurgeCallLogs(ctx context.Context, retention time.Duration) (int64, error)
}

// CacheCleanupConfig 清理任务配置
type CacheCleanupConfig struct {
	Spec             string        // cron 表达式 (含秒)
	ExpiredRetention time.Duration // 过期多久后物理删除
	CallLogRetention time.Duration
}

// CacheCleanupTask 缓存 / 调用日志清理任务
type CacheCleanupTask struct {
	cache    CachePurger
	callLogs CallLogPurger
	cfg      CacheCleanupConfig
	logger   *zap.Logger
	Cron     *cron.Cron
}

func NewCacheCleanupTask(cache CachePurger, callLogs CallLogPurger, cfg CacheCleanupConfig, logger *zap.Logger) *CacheCleanupTask {
	if cfg.Spec == "" {
		cfg.Spec = "0 0 * * * *" // 每小时整点
	}
	if cfg.ExpiredRetention <= 0 {
		cfg.ExpiredRetention = 24 * time.Hour
	}
	if cfg.CallLogRetention <= 0 {
		cfg.CallLogRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheCleanupTask{
		cache:    cache,
		callLogs: callLogs,
		cfg:      cfg,
		logger:   logger,
		Cron:     cron.New(cron.WithSeconds()),
	}
}

// Start 启动清理任务，启动时先执行一次
func (t *CacheCleanupTask) Start() error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.logger.Info("[CacheCleanup] 服务启动，正在执行首次清理...")
		t.Execute(ctx)
	}()

	_, err := t.Cron.AddFunc(t.cfg.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.Execute(ctx)
	})
	if err != nil {
		return fmt.Errorf("register cache cleanup task failed: %w", err)
	}

	t.Cron.Start()
	t.logger.Info("[CacheCleanup] 清理任务已启动", zap.String("spec", t.cfg.Spec))
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (t *CacheCleanupTask) Stop() {
	<-t.Cron.Stop().Done()
}

// Execute 执行一次清理，单项失败不影响其他项
func (t *CacheCleanupTask) Execute(ctx context.Context) {
	if t.cache != nil {
		n, err := t.cache.PurgeExpired(ctx, t.cfg.ExpiredRetention)
		if err != nil {
			t.logger.Error("[CacheCleanup] 清理缓存失败", zap.Error(err))
		} else {
			t.logger.Info("[CacheCleanup] 已清理过期缓存", zap.Int64("deleted", n))
		}
	}

	if t.callLogs != nil {
		n, err := t.callLogs.PurgeCallLogs(ctx, t.cfg.CallLogRetention)
		if err != nil {
			t.logger.Error("[CacheCleanup] 清理调用日志失败", zap.Error(err))
		} else {
			t.logger.Info("[CacheCleanup] 已清理调用日志", zap.Int64("deleted", n))
		}
	}
}
