package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parts_search_v1_202610/internal/service"
)

type SearchController struct {
	searchService *service.SearchService
	cacheService  *service.CacheService
	purgeRetain   time.Duration
}

func NewSearchController(searchService *service.SearchService, cacheService *service.CacheService, purgeRetain time.Duration) *SearchController {
	return &SearchController{
		searchService: searchService,
		cacheService:  cacheService,
		purgeRetain:   purgeRetain,
	}
}

// ==========================================
// 1. 搜索
// ==========================================

// Search 配件搜索
// @Summary 按编号搜索配件
// @Description 品牌解析 -> 商品搜索 -> 同义词搜索，供应商失败不会导致 5xx
// @Tags Search
// @Produce json
// @Param article query string true "配件编号"
// @Param brand query string false "品牌，留空时自动解析"
// @Param analogs query bool false "是否查询同义词"
// @Success 200 {object} service.SearchResult
// @Failure 400 {object} map[string]string "参数错误"
// @Router /api/search [get]
func (h *SearchController) Search(c *gin.Context) {
	article := c.Query("article")
	brand := c.Query("brand")

	includeAnalogs := false
	if raw := c.Query("analogs"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "analogs must be a boolean"})
			return
		}
		includeAnalogs = v
	}

	result, err := h.searchService.Search(c.Request.Context(), article, brand, includeAnalogs)
	if err != nil {
		if errors.Is(err, service.ErrEmptyArticle) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ==========================================
// 2. 缓存维护
// ==========================================

// CacheStats 缓存统计
// @Summary 查询缓存统计
// @Tags Search
// @Produce json
// @Success 200 {object} service.CacheStats
// @Failure 500 {object} map[string]string "服务器内部错误"
// @Router /api/search/cache/stats [get]
func (h *SearchController) CacheStats(c *gin.Context) {
	stats, err := h.cacheService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// PurgeCache 手动清理过期缓存
// @Summary 清理过期缓存
// @Description 受冷却时间限制，冷却中返回 429
// @Tags Search
// @Produce json
// @Success 200 {object} map[string]int64 "{"deleted": 10}"
// @Failure 429 {object} map[string]string "冷却中"
// @Failure 500 {object} map[string]string "服务器内部错误"
// @Router /api/search/cache/purge [post]
func (h *SearchController) PurgeCache(c *gin.Context) {
	deleted, err := h.cacheService.PurgeExpired(c.Request.Context(), h.purgeRetain)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
