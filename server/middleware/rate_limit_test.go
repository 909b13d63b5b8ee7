package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	// Keys are independent.
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 1)
	assert.NoError(t, rl.Wait(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "a"))
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultRate, rl.rate)
	assert.Equal(t, DefaultBurst, rl.burst)
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(rate.Every(time.Hour), 1)
	e.POST("/chat", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, rl.Middleware(nil))

	do := func(ip, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1", "k1"))
	// Rotating the key does not buy a new bucket.
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1", "k2"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2", "k1"))
}
