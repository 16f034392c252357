package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"nexo/pkg/config"
)

func newLimitedRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false
	router := newLimitedRouter(t, cfg)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200 on request %d, got %d", i, w.Code)
		}
	}
}

// Test basic per-IP rate limiting behaviour.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	router := newLimitedRouter(t, cfg)

	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected status 200 for first request, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 for second request, got %d", w2.Code)
	}
	assert.Contains(t, w2.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestConnLimiter_PerIPBudget(t *testing.T) {
	l := NewConnLimiter(2, 0)
	a := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1000}
	b := &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1000}

	assert.True(t, l.Admit(a))
	assert.True(t, l.Admit(&net.TCPAddr{IP: a.IP, Port: 2000}))
	assert.False(t, l.Admit(a), "third connection within the minute is rejected")
	assert.True(t, l.Admit(b), "other addresses have their own budget")
}

func TestConnLimiter_MaxConcurrent(t *testing.T) {
	l := NewConnLimiter(0, 1)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}

	assert.True(t, l.Admit(addr))
	assert.False(t, l.Admit(addr))
	l.Release()
	assert.True(t, l.Admit(addr))
}

func TestConnLimiter_Disabled(t *testing.T) {
	l := NewConnLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Admit(nil))
		l.Release()
	}
}
