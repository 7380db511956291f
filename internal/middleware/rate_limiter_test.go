package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func limitedEngine(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(rl.RateLimit())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func get(engine *gin.Engine, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.001), Burst: 1})
	engine := limitedEngine(rl)

	assert.Equal(t, http.StatusOK, get(engine, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, get(engine, "10.0.0.1:1001"))
	assert.Equal(t, http.StatusOK, get(engine, "10.0.0.2:1000"))
	assert.Equal(t, 2, rl.limiters.ItemCount())
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.001), Burst: 1, IdleTTL: 200 * time.Millisecond})
	engine := limitedEngine(rl)

	for i := 1; i <= 5; i++ {
		assert.Equal(t, http.StatusOK, get(engine, fmt.Sprintf("10.1.0.%d:80", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, get(engine, "10.1.0.1:80"))

	assert.Eventually(t, func() bool {
		return rl.limiters.ItemCount() == 0
	}, 2*time.Second, 20*time.Millisecond)

	// The returning client starts with a full bucket.
	assert.Equal(t, http.StatusOK, get(engine, "10.1.0.1:80"))
}
