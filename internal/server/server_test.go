package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/ledger"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/lifecycle"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/handler"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/middleware"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/service"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/store/memory"
)

type testAPI struct {
	handler http.Handler
	store   *memory.Store
}

func newTestAPI(t *testing.T, cfg Config, limiter domain.RateLimiter, pnl string) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	bus := memory.NewBus()

	trades := service.NewTradeService(service.TradeDeps{
		Challenges: store,
		Ledger:     ledger.New(store, ledger.FixedPnL{Amount: decimal.RequireFromString(pnl)}),
		Committer:  store,
		Events:     store,
		Machine:    lifecycle.New(),
		Bus:        bus,
		Audit:      store,
	}, service.TradeConfig{}, logger)
	plans := []domain.Plan{
		{Name: "Starter", Price: decimal.NewFromInt(200), Capital: decimal.NewFromInt(2000)},
		{Name: "Pro", Price: decimal.NewFromInt(500), Capital: decimal.NewFromInt(5000)},
	}
	challenges := service.NewChallengeService(store, store, store, trades, bus, store, plans, domain.DefaultLimits(), logger)

	h := Routes(cfg, Handlers{
		Health:     handler.NewHealthHandler(nil, logger),
		Status:     handler.NewStatusHandler("server", "memory", time.Now(), trades),
		Challenges: handler.NewChallengeHandler(challenges, logger),
		Trades:     handler.NewTradeHandler(trades, challenges, logger),
	}, nil, limiter, logger)
	return &testAPI{handler: h, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "10.0.0.1:5555"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (a *testAPI) createChallenge(t *testing.T, body any) string {
	t.Helper()
	rec, out := a.do(t, http.MethodPost, "/api/users/user-1/challenges", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return out["id"].(string)
}

func trade(side, price, qty string) map[string]any {
	return map[string]any{"symbol": "BTCUSD", "side": side, "price": price, "quantity": qty}
}

func TestChallengeLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, Config{}, nil, "500")
	id := api.createChallenge(t, map[string]any{"plan": "starter"})

	rec, out := api.do(t, http.MethodGet, "/api/challenges/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ch := out["challenge"].(map[string]any)
	assert.Equal(t, "Starter", ch["plan"])
	assert.Equal(t, "2000", ch["current_balance"])
	assert.Equal(t, "200", ch["profit_target"])
	assert.Equal(t, "100", out["risk"].(map[string]any)["daily_loss_headroom"])

	rec, out = api.do(t, http.MethodPost, "/api/challenges/"+id+"/trades", trade("buy", "65000.5", "0.1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "durable", out["durability"])
	assert.Equal(t, "passed", out["challenge"].(map[string]any)["status"])
	assert.Equal(t, "profit_target_reached", out["event"].(map[string]any)["reason"])

	rec, out = api.do(t, http.MethodPost, "/api/challenges/"+id+"/trades", trade("SELL", "1", "1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "challenge not active", out["error"])

	// Status is checked before the request itself.
	rec, out = api.do(t, http.MethodPost, "/api/challenges/"+id+"/trades", trade("HOLD", "1", "1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "challenge not active", out["error"])

	rec, out = api.do(t, http.MethodGet, "/api/challenges/"+id+"/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["trades"], 1)

	rec, out = api.do(t, http.MethodGet, "/api/challenges/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["events"], 1)

	rec, out = api.do(t, http.MethodGet, "/api/users/user-1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := out["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "25", history[0].(map[string]any)["profit_percentage"])

	rec, out = api.do(t, http.MethodGet, "/api/users/user-1/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["trades"], 1)

	rec, out = api.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := out["leaderboard"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0].(map[string]any)["funded"])

	rec, _ = api.do(t, http.MethodPost, "/api/challenges/"+id+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCompleteKeepsHealthyChallengeActive(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, Config{}, nil, "10")
	id := api.createChallenge(t, map[string]any{"initial_balance": "5000"})

	rec, out := api.do(t, http.MethodPost, "/api/challenges/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", out["challenge"].(map[string]any)["status"])
	assert.Nil(t, out["event"])
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, Config{}, nil, "10")
	id := api.createChallenge(t, map[string]any{"plan": "Pro"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown plan", http.MethodPost, "/api/users/user-1/challenges", map[string]any{"plan": "Diamond"}, http.StatusBadRequest},
		{"missing plan and balance", http.MethodPost, "/api/users/user-1/challenges", map[string]any{}, http.StatusBadRequest},
		{"negative balance", http.MethodPost, "/api/users/user-1/challenges", map[string]any{"initial_balance": "-5"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/users/user-1/challenges", map[string]any{"plan": "Pro", "coupon": "x"}, http.StatusBadRequest},
		{"bad side", http.MethodPost, "/api/challenges/" + id + "/trades", trade("HOLD", "1", "1"), http.StatusBadRequest},
		{"zero price", http.MethodPost, "/api/challenges/" + id + "/trades", trade("BUY", "0", "1"), http.StatusBadRequest},
		{"negative quantity", http.MethodPost, "/api/challenges/" + id + "/trades", trade("BUY", "1", "-1"), http.StatusBadRequest},
		{"missing symbol", http.MethodPost, "/api/challenges/" + id + "/trades", map[string]any{"side": "BUY", "price": "1", "quantity": "1"}, http.StatusBadRequest},
		{"unknown challenge trade", http.MethodPost, "/api/challenges/nope/trades", trade("BUY", "1", "1"), http.StatusNotFound},
		{"unknown challenge get", http.MethodGet, "/api/challenges/nope", nil, http.StatusNotFound},
		{"unknown challenge events", http.MethodGet, "/api/challenges/nope/events", nil, http.StatusNotFound},
		{"bad since", http.MethodGet, "/api/users/user-1/trades?since=yesterday", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, out["error"])
		})
	}

	entries, err := api.store.EntriesFor(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIdempotencyKeyReplaysTrade(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, Config{}, nil, "10")
	id := api.createChallenge(t, map[string]any{"plan": "Pro"})

	_, first := api.do(t, http.MethodPost, "/api/challenges/"+id+"/trades", trade("BUY", "1", "1"), "Idempotency-Key", "k-1")
	_, second := api.do(t, http.MethodPost, "/api/challenges/"+id+"/trades", trade("BUY", "1", "1"), "Idempotency-Key", "k-1")
	assert.Equal(t, first["entry"].(map[string]any)["id"], second["entry"].(map[string]any)["id"])

	entries, err := api.store.EntriesFor(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAuthAndHealth(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, Config{APIKey: "secret"}, nil, "10")

	rec, out := api.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, _ = api.do(t, http.MethodGet, "/api/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out = api.do(t, http.MethodGet, "/api/plans", nil, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["plans"], 2)

	rec, out = api.do(t, http.MethodGet, "/api/status", nil, "X-API-Key", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", out["storage"])
	assert.Equal(t, float64(0), out["pending_local_commits"])
	assert.Equal(t, float64(0), out["dead_lettered_commits"])
}

func TestRateLimitRejectsBurst(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewLocalRateLimiter(1)
	api := newTestAPI(t, Config{RateLimit: 2, RateWindow: time.Minute}, limiter, "10")

	for range 2 {
		rec, _ := api.do(t, http.MethodGet, "/api/plans", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, out := api.do(t, http.MethodGet, "/api/plans", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", out["error"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
