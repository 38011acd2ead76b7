package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"parts_search_v1_202610/internal/config"
	"parts_search_v1_202610/internal/controller"
	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/internal/repository"
	"parts_search_v1_202610/internal/router"
	"parts_search_v1_202610/internal/service"
	"parts_search_v1_202610/internal/task"
	"parts_search_v1_202610/pkg/database"
	"parts_search_v1_202610/pkg/net"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径 (默认 ./config.yaml)")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	// 3. 初始化数据库
	db := initDatabase(cfg, logger)

	// 4. 初始化依赖
	deps := initDependencies(cfg, db, logger)

	// 5. 导入供应商配置
	seedSuppliers(cfg, deps, logger)

	// 6. 启动定时任务
	initTasks(cfg, deps, logger)

	// 7. 初始化路由
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.SetupRouter(deps.Controllers, router.Options{
		Logger:        logger,
		PurgeCooldown: cfg.Server.PurgeCooldown,
	})

	// 8. 启动服务
	startServer(cfg, r, deps, logger)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Repos       *Repositories
	Dispatcher  net.Dispatcher
	Controllers *router.Controllers
	Services    *Services
	Tasks       []*task.CacheCleanupTask
}

// Repositories 仓库集合
type Repositories struct {
	Supplier    repository.SupplierRepository
	CallLog     repository.SupplierCallLogRepository
	SearchCache repository.SearchCacheRepository
}

// Services 服务集合
type Services struct {
	Cache    *service.CacheService
	Search   *service.SearchService
	Supplier *service.SupplierService
}

// ==================== 初始化函数 ====================

// initLogger 生产环境 JSON，开发环境彩色控制台
func initLogger(cfg *config.Config) *zap.Logger {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	return logger.With(zap.String("app", cfg.App.Name))
}

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config, logger *zap.Logger) *gorm.DB {
	db, err := database.InitDB(database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	},
		// Supplier
		&model.Supplier{}, &model.SupplierCallLog{},
		// Cache
		&model.SearchCache{},
	)
	if err != nil {
		logger.Fatal("数据库初始化失败", zap.Error(err))
	}
	return db
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *Dependencies {
	deps := &Dependencies{DB: db}

	// -------- Repo 层 --------
	deps.Repos = initRepositories(cfg, deps, logger)

	// -------- 网络层 --------
	deps.Dispatcher = net.NewDispatcher(net.Config{
		Timeout:       cfg.Supplier.Timeout,
		RatePerSecond: cfg.Supplier.RatePerSecond,
		Burst:         cfg.Supplier.Burst,
		Debug:         cfg.Supplier.Debug,
	})

	// -------- 业务服务 --------
	cacheSvc := service.NewCacheService(deps.Repos.SearchCache, service.CacheTTL{
		Brands:   cfg.Cache.BrandsTTL,
		Products: cfg.Cache.ProductsTTL,
		Analogs:  cfg.Cache.AnalogsTTL,
	}, logger)

	clientFactory := service.NewAbcpClientFactory(deps.Dispatcher, deps.Repos.CallLog, logger, service.ClientOptions{
		AnalogConcurrency: cfg.Supplier.AnalogConcurrency,
	})

	deps.Services = &Services{
		Cache: cacheSvc,
		Search: service.NewSearchService(deps.Repos.Supplier, cacheSvc, clientFactory, service.SearchOptions{
			Concurrent:  cfg.Search.Concurrent,
			AnalogLimit: cfg.Search.AnalogLimit,
		}, logger),
		Supplier: service.NewSupplierService(deps.Repos.Supplier, deps.Repos.CallLog, deps.Dispatcher, logger),
	}

	// -------- Controller 层 --------
	deps.Controllers = &router.Controllers{
		Search:   controller.NewSearchController(deps.Services.Search, cacheSvc, cfg.Cache.ExpiredRetention),
		Supplier: controller.NewSupplierController(deps.Services.Supplier),
		Health:   controller.NewHealthController(db),
	}

	return deps
}

// initRepositories 初始化所有仓库，缓存存储按配置选择
func initRepositories(cfg *config.Config, deps *Dependencies, logger *zap.Logger) *Repositories {
	repos := &Repositories{
		Supplier: repository.NewSupplierRepository(deps.DB),
		CallLog:  repository.NewSupplierCallLogRepository(deps.DB),
	}

	switch cfg.Cache.Driver {
	case "redis":
		opt, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			logger.Fatal("Redis 地址无效", zap.Error(err))
		}
		rdb := redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
		deps.Redis = rdb
		repos.SearchCache = repository.NewRedisSearchCacheRepository(rdb, cfg.Cache.ExpiredRetention)
	case "memory":
		repos.SearchCache = repository.NewMemorySearchCacheRepository()
	default:
		repos.SearchCache = repository.NewSearchCacheRepository(deps.DB)
	}
	logger.Info("缓存存储已初始化", zap.String("driver", cfg.Cache.Driver))
	return repos
}

// seedSuppliers 将配置文件中的供应商写入数据库
func seedSuppliers(cfg *config.Config, deps *Dependencies, logger *zap.Logger) {
	if len(cfg.Suppliers) == 0 {
		return
	}

	suppliers := make([]model.Supplier, 0, len(cfg.Suppliers))
	for _, s := range cfg.Suppliers {
		active := true
		if s.IsActive != nil {
			active = *s.IsActive
		}
		suppliers = append(suppliers, model.Supplier{
			Name:            s.Name,
			IsActive:        active,
			APIType:         s.APIType,
			APIURL:          s.APIURL,
			Login:           s.Login,
			Password:        s.Password,
			OfficeID:        s.OfficeID,
			UseOnlineStocks: s.UseOnlineStocks,
			MarkupPercent:   s.MarkupPercent,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := deps.Services.Supplier.Seed(ctx, suppliers); err != nil {
		logger.Fatal("导入供应商失败", zap.Error(err))
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(cfg *config.Config, deps *Dependencies, logger *zap.Logger) {
	cleanupTask := task.NewCacheCleanupTask(
		deps.Services.Cache,
		deps.Services.Supplier,
		task.CacheCleanupConfig{
			Spec:             cfg.Cache.CleanupSpec,
			ExpiredRetention: cfg.Cache.ExpiredRetention,
			CallLogRetention: cfg.Cache.CallLogRetention,
		},
		logger,
	)
	if err := cleanupTask.Start(); err != nil {
		logger.Fatal("无法启动清理任务", zap.Error(err))
	}
	deps.Tasks = append(deps.Tasks, cleanupTask)

	logger.Info("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(cfg *config.Config, r *gin.Engine, deps *Dependencies, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 异步启动服务
	go func() {
		logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务强制关闭", zap.Error(err))
	}

	for _, t := range deps.Tasks {
		t.Stop()
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
	if sqlDB, err := deps.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("服务已退出")
}
