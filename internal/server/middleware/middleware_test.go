package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRateLimiterRefills(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalRateLimiter(0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		ok, err := l.Allow(ctx, "k", 3, 3*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "k", 3, 3*time.Second)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "other", 3, 3*time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "k", 3, 3*time.Second)
	assert.True(t, ok, "one token refilled after window/limit")

	now = now.Add(time.Hour)
	assert.Zero(t, l.Sweep())
}

func TestLocalRateLimiterDisabledLimit(t *testing.T) {
	t.Parallel()

	ok, err := NewLocalRateLimiter(1).Allow(context.Background(), "k", 0, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/plans", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	req = httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestExtractClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", extractClientIP(req))
}

func TestAuthAcceptsWebsocketQueryKey(t *testing.T) {
	t.Parallel()

	h := Auth("k")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?api_key=k", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plans?api_key=k", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoggingEchoesRequestIDAndRecordsStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var seen string
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("nope"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/trades", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=409")
	assert.Contains(t, buf.String(), "bytes=4")
}

func TestAccessLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelInfo, accessLevel(http.StatusOK))
	assert.Equal(t, slog.LevelWarn, accessLevel(http.StatusNotFound))
	assert.Equal(t, slog.LevelError, accessLevel(http.StatusBadGateway))
}
