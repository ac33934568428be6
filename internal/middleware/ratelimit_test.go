package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/ratelimit"
)

type fakeLimiter struct {
	keys []string
	err  error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return false, 0, f.err
	}
	return true, 0, nil
}

func limitedRouter(limiter ratelimit.Limiter, scope string) *gin.Engine {
	r := gin.New()
	r.POST("/limited", RateLimit(limiter, scope, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimitEnforcesQuota(t *testing.T) {
	t.Parallel()
	router := limitedRouter(ratelimit.NewLocalLimiter(2, time.Minute), "register")

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "request %d is within quota", i+1)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), "too many requests")
}

func TestRateLimitKeysByScopeAndIP(t *testing.T) {
	t.Parallel()
	limiter := &fakeLimiter{}
	router := limitedRouter(limiter, "login")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	req.RemoteAddr = "203.0.113.7:4567"
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"login:203.0.113.7"}, limiter.keys)
}

func TestRateLimitAllowsOnLimiterError(t *testing.T) {
	t.Parallel()
	limiter := &fakeLimiter{err: fmt.Errorf("redis down")}
	router := limitedRouter(limiter, "register")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "a broken counter must not lock the doors")
}
