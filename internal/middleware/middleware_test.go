package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/portfolio-backend/internal/config"
	"github.com/iliyamo/portfolio-backend/internal/token"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(token.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, nil, quietLogger())
	require.NoError(t, err)
	return iss
}

func protected(iss *token.Issuer) *echo.Echo {
	e := echo.New()
	g := e.Group("/api", JWTAuth(iss), RequireRole(token.RoleUser))
	g.GET("/me", func(c echo.Context) error { return c.String(http.StatusOK, Username(c)) })
	return e
}

func call(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAcceptsAccessToken(t *testing.T) {
	iss := newIssuer(t)
	access, err := iss.IssueAccess("alice")
	require.NoError(t, err)

	rec := call(protected(iss), http.MethodGet, "/api/me", access)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestJWTAuthRejections(t *testing.T) {
	iss := newIssuer(t)
	refresh, err := iss.IssueRefresh("alice")
	require.NoError(t, err)

	e := protected(iss)
	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/api/me", "not-a-jwt").Code)
	// refresh tokens validate but carry no role
	assert.Equal(t, http.StatusForbidden, call(e, http.MethodGet, "/api/me", refresh).Code)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestTokenBucketThrottles(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, newRedis(t), quietLogger()))
	e.POST("/api/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for i := 0; i < 2; i++ {
		rec := call(e, http.MethodPost, "/api/auth/login", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := call(e, http.MethodPost, "/api/auth/login", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucketFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, quietLogger()))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/x", "").Code)
	}
}

func TestResponseCacheHitAndPurge(t *testing.T) {
	rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache:portfolios", MaxBodyBytes: 1 << 10}, rdb, quietLogger())
	require.NotNil(t, rc)

	hits := 0
	e := echo.New()
	e.GET("/api/portfolio/public", func(c echo.Context) error {
		hits++
		return c.JSON(http.StatusOK, echo.Map{"n": hits})
	}, rc.Middleware())

	first := call(e, http.MethodGet, "/api/portfolio/public", "")
	second := call(e, http.MethodGet, "/api/portfolio/public", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, hits)

	rc.Purge(t.Context())
	third := call(e, http.MethodGet, "/api/portfolio/public", "")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, hits)
}

func TestNilResponseCachePassesThrough(t *testing.T) {
	var rc *ResponseCache
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, rc.Middleware())

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/x", "").Code)
	rc.Purge(t.Context())
}
