package middleware

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/config"
)

func limitCfg(capacity int) config.RateLimitConfig {
    return config.RateLimitConfig{
        Enabled:        true,
        Capacity:       capacity,
        RefillTokens:   1,
        RefillInterval: time.Minute,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_route",
        Prefix:         "rl:test",
    }
}

func TestLocalLimiterBlocksAfterCapacity(t *testing.T) {
    l := newLocalLimiter(limitCfg(3))
    now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

    for i := 2; i >= 0; i-- {
        ok, remaining, _ := l.take("k", now)
        require.True(t, ok)
        assert.EqualValues(t, i, remaining)
    }
    ok, _, retry := l.take("k", now)
    assert.False(t, ok)
    assert.InDelta(t, time.Minute.Milliseconds(), retry, 1000)

    // A different key has its own bucket.
    ok, _, _ = l.take("other", now)
    assert.True(t, ok)

    // One refill interval later a single request fits again.
    ok, _, _ = l.take("k", now.Add(time.Minute))
    assert.True(t, ok)
    ok, _, _ = l.take("k", now.Add(time.Minute))
    assert.False(t, ok)
}

func TestLocalLimiterSweepsIdleBuckets(t *testing.T) {
    l := newLocalLimiter(limitCfg(1))
    now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
    l.take("a", now)
    l.take("b", now)
    require.Len(t, l.buckets, 2)

    l.take("c", now.Add(11*time.Minute))
    assert.Len(t, l.buckets, 1)
}

func TestTokenBucketMiddlewareWithoutRedis(t *testing.T) {
    e := echo.New()
    e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
        NewTokenBucket(limitCfg(2), nil, nil))

    call := func() *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodPost, "/login", nil)
        req.RemoteAddr = "192.0.2.10:5555"
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    assert.Equal(t, http.StatusNoContent, call().Code)
    rec := call()
    assert.Equal(t, http.StatusNoContent, rec.Code)
    assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

    rec = call()
    require.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))
    var env apierr.Envelope
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
    assert.Equal(t, "RATE_LIMITED", env.Error.Code)
    assert.Positive(t, env.Error.RetryAfter)
}

func TestTokenBucketDisabled(t *testing.T) {
    cfg := limitCfg(1)
    cfg.Enabled = false
    e := echo.New()
    e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
        NewTokenBucket(cfg, nil, nil))
    for i := 0; i < 5; i++ {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
        assert.Equal(t, http.StatusNoContent, rec.Code)
    }
}

func TestBuildRateKeyStrategies(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
    req.RemoteAddr = "192.0.2.10:5555"
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/auth/login")

    cfg := limitCfg(1)
    cfg.KeyStrategy = "ip"
    assert.Equal(t, "rl:test:ip:192.0.2.10", buildRateKey(cfg, c))
    cfg.KeyStrategy = "ip_route"
    assert.Equal(t, "rl:test:ip:192.0.2.10:route:POST /v1/auth/login", buildRateKey(cfg, c))
    cfg.KeyStrategy = "user"
    assert.Equal(t, "rl:test:user:guest", buildRateKey(cfg, c))
}
