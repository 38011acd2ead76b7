package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCooldownLimiter_Check(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewCooldownLimiter()
	limiter.now = func() time.Time { return now }
	key := GlobalKey(ActionCachePurge)

	assert.True(t, limiter.Check(key, time.Minute).Allowed)

	now = now.Add(20 * time.Second)
	res := limiter.Check(key, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)

	// 其他 key 不受影响
	assert.True(t, limiter.Check("global:other", time.Minute).Allowed)

	now = now.Add(40 * time.Second)
	assert.True(t, limiter.Check(key, time.Minute).Allowed)

	limiter.Reset(key)
	assert.True(t, limiter.Check(key, time.Minute).Allowed)
}

func TestCooldown_Middleware(t *testing.T) {
	limiter := NewCooldownLimiter()
	r := gin.New()
	r.POST("/purge", Cooldown(limiter, ActionCachePurge, time.Hour), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/purge", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/purge", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "cache_purge")
}

func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "操作冷却中，请 30 秒后重试", formatRetryMessage(30*time.Second))
	assert.Equal(t, "操作冷却中，请 2 分钟后重试", formatRetryMessage(2*time.Minute))
	assert.Equal(t, "操作冷却中，请 1 分 5 秒后重试", formatRetryMessage(65*time.Second))
}

func TestRequestLogger(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("生成请求ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("透传请求ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	})
}
