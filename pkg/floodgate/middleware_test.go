package floodgate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestMiddlewareAdmitted(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := New(WithDefaults(10, 20), WithClock(clock))
	require.NoError(t, err)

	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "203.0.113.7:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "19", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestMiddlewareRejected(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := New(WithDefaults(10, 3), WithClock(clock))
	require.NoError(t, err)

	handler := limiter.Middleware(okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"), "100ms rounds up to one second")
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Equal(t, float64(100), body["retry_after_ms"])
}

func TestMiddlewareDistinctClients(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := New(WithDefaults(10, 1), WithClock(clock))
	require.NoError(t, err)

	handler := limiter.Middleware(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7:1000"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7:1001"))
	// A different address has its own bucket.
	assert.Equal(t, http.StatusOK, send("198.51.100.2:1000"))
}

func TestMiddlewareFailsOpenOnExtractionError(t *testing.T) {
	limiter, err := New(
		WithDefaults(10, 20),
		WithKeyExtractor(ExtractHeader("X-API-Key")),
	)
	require.NoError(t, err)

	handler := limiter.Middleware(okHandler())

	// No X-API-Key header: extraction fails and the request passes through.
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAllowRequestRoutePolicies(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	cfg := NewConfig()
	cfg.Defaults = PolicyConfig{RequestsPerSecond: 10, BurstSize: 100, Enabled: true}
	require.NoError(t, cfg.SetPolicy("/api/login", PolicyConfig{
		RequestsPerSecond: 1, BurstSize: 2, Enabled: true,
	}))
	require.NoError(t, cfg.SetPolicy("/healthz", PolicyConfig{Enabled: false}))

	limiter, err := New(WithConfig(cfg), WithClock(clock))
	require.NoError(t, err)

	newReq := func(path string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.7:4242"
		return req
	}

	// The login route has its own small budget.
	for i := 0; i < 2; i++ {
		decision, err := limiter.AllowRequest(newReq("/api/login"))
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, "/api/login", decision.Route)
		assert.Equal(t, int64(2), decision.Limit)
	}
	decision, err := limiter.AllowRequest(newReq("/api/login"))
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// The same client is still admitted on default-policy routes.
	decision, err = limiter.AllowRequest(newReq("/api/data"))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(100), decision.Limit)

	// Disabled routes are always admitted and consume nothing.
	for i := 0; i < 10; i++ {
		decision, err = limiter.AllowRequest(newReq("/healthz"))
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
}

func TestAllowRequestRouteExtractor(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	cfg := NewConfig()
	require.NoError(t, cfg.SetPolicy("/api/items", PolicyConfig{
		RequestsPerSecond: 1, BurstSize: 1, Enabled: true,
	}))

	limiter, err := New(
		WithConfig(cfg),
		WithClock(clock),
		WithRouteExtractor(func(path string) string {
			// Collapse /api/items/123 onto /api/items.
			if len(path) > len("/api/items") && path[:len("/api/items")] == "/api/items" {
				return "/api/items"
			}
			return path
		}),
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/items/42", nil)
	req.RemoteAddr = "203.0.113.7:4242"

	decision, err := limiter.AllowRequest(req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "/api/items", decision.Route)

	decision, err = limiter.AllowRequest(req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "burst of 1 on the collapsed route")
}
