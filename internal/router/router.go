package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parts_search_v1_202610/internal/controller"
	"parts_search_v1_202610/internal/middleware"
)

// Controllers 控制器集合
type Controllers struct {
	Search   *controller.SearchController
	Supplier *controller.SupplierController
	Health   *controller.HealthController
}

// Options 路由级参数
type Options struct {
	Logger        *zap.Logger
	PurgeCooldown time.Duration
}

// SetupRouter 创建引擎并注册所有路由
func SetupRouter(ctls *Controllers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Logger != nil {
		r.Use(middleware.RequestLogger(opts.Logger))
	}

	InitRoutes(r, ctls, middleware.NewCooldownLimiter(), opts.PurgeCooldown)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctls *Controllers, limiter *middleware.CooldownLimiter, purgeCooldown time.Duration) {
	// 1. 健康检查
	r.GET("/healthz", ctls.Health.Healthz)

	// 2. API 路由组
	api := r.Group("/api")
	{
		// search 配件搜索
		search := api.Group("/search")
		{
			// GET /api/search?article=&brand=&analogs=
			search.GET("", ctls.Search.Search)

			// GET /api/search/cache/stats
			search.GET("/cache/stats", ctls.Search.CacheStats)

			// POST /api/search/cache/purge
			search.POST("/cache/purge",
				middleware.Cooldown(limiter, middleware.ActionCachePurge, purgeCooldown),
				ctls.Search.PurgeCache,
			)
		}
		// supplier 供应商
		suppliers := api.Group("/suppliers")
		{
			// GET /api/suppliers/:id/stats
			suppliers.GET("/:id/stats", ctls.Supplier.Stats)
		}
	}
}
