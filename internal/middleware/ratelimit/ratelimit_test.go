package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestRateLimiterBlocksAfterBudget(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2, Logger: zap.NewNop()})
	defer rl.Stop()
	app := newApp(rl)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimiterKeysBySession(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, Logger: zap.NewNop()})
	defer rl.Stop()
	app := newApp(rl)

	for _, session := range []string{"a", "b"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(SessionHeader, session)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "session %s", session)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(SessionHeader, "a")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, Logger: zap.NewNop()})
	defer rl.Stop()

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("k"))
	assert.False(t, rl.allow("k"))

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("k"))
}

func TestEvictIdle(t *testing.T) {
	rl := New(Config{Logger: zap.NewNop()})
	defer rl.Stop()

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.allow("k")

	now = now.Add(11 * time.Minute)
	rl.evictIdle(10 * time.Minute)
	assert.Empty(t, rl.buckets)
}
