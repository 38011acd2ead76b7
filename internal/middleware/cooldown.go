package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 冷却中间件 ====================

// Cooldown 全局冷却中间件
//
// 使用示例:
//
//	router.POST("/api/search/cache/purge",
//	    middleware.Cooldown(limiter, middleware.ActionCachePurge, time.Minute),
//	    searchCtl.PurgeCache,
//	)
func Cooldown(limiter *CooldownLimiter, action Action, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.Check(GlobalKey(action), interval)
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprint(int(result.RetryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": int(result.RetryAfter.Seconds()),
					"action":      action,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds())

	if seconds < 60 {
		return fmt.Sprintf("操作冷却中，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60

	if remainingSeconds == 0 {
		return fmt.Sprintf("操作冷却中，请 %d 分钟后重试", minutes)
	}

	return fmt.Sprintf("操作冷却中，请 %d 分 %d 秒后重试", minutes, remainingSeconds)
}
