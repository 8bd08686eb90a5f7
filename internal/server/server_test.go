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

	cachemem "github.com/nexusx/nexus/internal/cache/memory"
	"github.com/nexusx/nexus/internal/crypto"
	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/server/handler"
	"github.com/nexusx/nexus/internal/server/middleware"
	"github.com/nexusx/nexus/internal/service"
	"github.com/nexusx/nexus/internal/store/memory"
)

type offlineInsight struct{}

func (offlineInsight) AnalyzeMarket(context.Context, string, decimal.Decimal, decimal.Decimal) (string, error) {
	return "", domain.ErrServiceUnavailable
}

func (offlineInsight) TradingStrategy(context.Context, []domain.AssetBalance) ([]domain.StrategyStep, error) {
	return nil, domain.ErrServiceUnavailable
}

type testEnv struct {
	t       *testing.T
	handler http.Handler
	tokens  *crypto.TokenSigner
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewSnapshotStore()
	audit := memory.NewAuditStore()
	bus := cachemem.NewSignalBus()

	quotes, err := service.NewQuoteService(ctx, store, nil, bus, nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	ledgers := service.NewLedgerService(store, quotes, logger).WithBus(bus).WithAudit(audit)
	sessions, err := service.NewSessionService(ctx, store, ledgers, false, logger)
	if err != nil {
		t.Fatal(err)
	}
	insights := service.NewInsightService(offlineInsight{}, quotes, ledgers, logger)
	tokens, err := crypto.NewTokenSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Port:        0,
		AdminAPIKey: "admin-key",
		Tokens:      tokens,
		Sessions:    sessions,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Handlers{
		Health:   handler.NewHealthHandler(nil, logger),
		Status:   handler.NewStatusHandler(handler.StatusInfo{Mode: "serve", Storage: "memory", StartedAt: time.Now()}),
		Markets:  handler.NewMarketHandler(quotes, logger),
		Trades:   handler.NewTradeHandler(ledgers, logger),
		Sessions: handler.NewSessionHandler(sessions, tokens, logger),
		Insights: handler.NewInsightHandler(insights, logger),
		Admin:    handler.NewAdminHandler(ledgers, quotes, sessions, nil, audit, logger),
	}, nil, logger)

	return &testEnv{t: t, handler: srv.Handler(), tokens: tokens}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestMarketsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do("GET", "/api/markets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[struct {
		Markets []domain.Quote `json:"markets"`
		Total   int            `json:"total"`
	}](t, rec)
	if list.Total != 5 || list.Markets[0].Symbol != "BTC" {
		t.Errorf("markets = %+v", list)
	}

	if rec := env.do("GET", "/api/markets/ethereum/orderbook", ""); rec.Code != http.StatusOK {
		t.Errorf("orderbook status = %d", rec.Code)
	}
	if rec := env.do("GET", "/api/markets/ethereum/chart", ""); rec.Code != http.StatusOK {
		t.Errorf("chart status = %d", rec.Code)
	}
	rec = env.do("GET", "/api/markets/dogecoin", "")
	if rec.Code != http.StatusNotFound || decode[map[string]string](t, rec)["error"] != "not found" {
		t.Errorf("unknown market = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestDemoTradeFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do("POST", "/api/trades", `{"side":"buy","symbol":"BTC","amount":"0.1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("trade status = %d: %s", rec.Code, rec.Body)
	}
	order := decode[domain.Order](t, rec)
	if !order.Total.Equal(decimal.RequireFromString("6423.045")) {
		t.Errorf("order total = %s", order.Total)
	}

	wallet := decode[domain.Wallet](t, env.do("GET", "/api/wallet", ""))
	if wallet.AccountID != domain.DemoAccountID || !wallet.CashBalance.Equal(decimal.RequireFromString("6026.955")) {
		t.Errorf("wallet = %+v", wallet)
	}

	rec = env.do("POST", "/api/trades", `{"side":"buy","symbol":"BTC","amount":"100"}`)
	if rec.Code != http.StatusUnprocessableEntity || decode[map[string]string](t, rec)["error"] != "insufficient funds" {
		t.Errorf("overdraft = %d %s", rec.Code, rec.Body)
	}
	rec = env.do("POST", "/api/trades", `{"side":"sell","symbol":"ADA","amount":"1"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("sell unheld = %d %s", rec.Code, rec.Body)
	}
	for _, body := range []string{
		`{"side":"hold","symbol":"BTC","amount":"1"}`,
		`{"side":"buy","symbol":"BTC","amount":"-1"}`,
		`{"side":"buy","symbol":"BTC","amount":"1","price":"1"}`,
		`not json`,
	} {
		if rec := env.do("POST", "/api/trades", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}

	orders := decode[struct {
		Orders []domain.Order `json:"orders"`
	}](t, env.do("GET", "/api/orders", ""))
	if len(orders.Orders) != 1 || orders.Orders[0].ID != order.ID {
		t.Errorf("orders = %+v", orders)
	}
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do("GET", "/api/session", ""); rec.Code != http.StatusNotFound {
		t.Errorf("session before register = %d", rec.Code)
	}

	rec := env.do("POST", "/api/session/register", `{"email":"kim@example.com","name":"Kim","password":"pw123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body)
	}
	sess := decode[struct {
		Identity domain.Identity `json:"identity"`
		Token    string          `json:"token"`
	}](t, rec)
	if sess.Token == "" || sess.Identity.PasswordHash != "" {
		t.Fatalf("session = %+v", sess)
	}

	wallet := decode[domain.Wallet](t, env.do("GET", "/api/wallet", "", middleware.SessionHeader, sess.Token))
	if wallet.AccountID != sess.Identity.ID || !wallet.CashBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("wallet = %+v", wallet)
	}

	if got := decode[domain.Identity](t, env.do("GET", "/api/session", "", middleware.SessionHeader, sess.Token)); got.Email != "kim@example.com" {
		t.Errorf("token identity = %+v", got)
	}
	// Without a token the request stays on the demo ledger even though Kim
	// is the active session.
	if rec := env.do("GET", "/api/session", ""); rec.Code != http.StatusNotFound {
		t.Errorf("token-less session = %d, want 404", rec.Code)
	}
	if rec := env.do("POST", "/api/trades", `{"side":"sell","symbol":"SOL","amount":"1"}`); rec.Code != http.StatusCreated {
		t.Fatalf("token-less trade = %d %s", rec.Code, rec.Body)
	}
	wallet = decode[domain.Wallet](t, env.do("GET", "/api/wallet", "", middleware.SessionHeader, sess.Token))
	if len(wallet.Assets) != 0 || !wallet.CashBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("token-less trade touched kim's ledger: %+v", wallet)
	}

	if rec := env.do("POST", "/api/session/register", `{"email":"kim@example.com","password":"x"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d", rec.Code)
	}
	if rec := env.do("POST", "/api/session/login", `{"email":"kim@example.com","password":"nope"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login = %d", rec.Code)
	}
	if rec := env.do("GET", "/api/wallet", "", middleware.SessionHeader, "forged.token"); rec.Code != http.StatusUnauthorized {
		t.Errorf("forged token = %d", rec.Code)
	}

	if rec := env.do("POST", "/api/session/logout", ""); rec.Code != http.StatusOK {
		t.Fatalf("logout = %d", rec.Code)
	}
	wallet = decode[domain.Wallet](t, env.do("GET", "/api/wallet", ""))
	if wallet.AccountID != domain.DemoAccountID {
		t.Errorf("after logout account = %s, want demo", wallet.AccountID)
	}

	rec = env.do("POST", "/api/session/login", `{"email":"kim@example.com","password":"pw123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rec.Code, rec.Body)
	}
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	key := []string{"X-API-Key", "admin-key"}

	if rec := env.do("GET", "/api/admin/stats", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("stats without key = %d", rec.Code)
	}
	if rec := env.do("GET", "/api/admin/stats", "", "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("stats with wrong key = %d", rec.Code)
	}

	env.do("POST", "/api/session/register", `{"email":"lee@example.com","password":"pw"}`)
	stats := decode[domain.GlobalStats](t, env.do("GET", "/api/admin/stats", "", key...))
	if stats.UserCount != 1 || stats.OrderCount != 0 {
		t.Errorf("stats = %+v", stats)
	}

	rec := env.do("PUT", "/api/admin/markets/solana/price", `{"price":"150"}`, key...)
	if rec.Code != http.StatusOK {
		t.Fatalf("override = %d %s", rec.Code, rec.Body)
	}
	if q := decode[domain.Quote](t, env.do("GET", "/api/markets/solana", "")); !q.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("solana price = %s", q.Price)
	}
	if rec := env.do("PUT", "/api/admin/markets/solana/price", `{"price":"0"}`, key...); rec.Code != http.StatusBadRequest {
		t.Errorf("zero price = %d", rec.Code)
	}

	rec = env.do("POST", "/api/admin/markets", `{"id":"dogecoin","symbol":"DOGE","name":"Dogecoin","price":"0.12"}`, key...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("listing = %d %s", rec.Code, rec.Body)
	}
	if rec := env.do("POST", "/api/admin/markets", `{"id":"dogecoin","symbol":"DOGE","price":"0.12"}`, key...); rec.Code != http.StatusConflict {
		t.Errorf("duplicate listing = %d", rec.Code)
	}

	env.do("POST", "/api/trades", `{"side":"buy","symbol":"DOGE","amount":"100"}`)
	trades := decode[struct {
		Orders []domain.AccountOrder `json:"orders"`
	}](t, env.do("GET", "/api/admin/trades", "", key...))
	if len(trades.Orders) != 1 || trades.Orders[0].Symbol != "DOGE" {
		t.Errorf("trade log = %+v", trades)
	}

	audit := decode[struct {
		Entries []domain.AuditEntry `json:"entries"`
	}](t, env.do("GET", "/api/admin/audit", "", key...))
	if len(audit.Entries) != 1 || audit.Entries[0].Event != "trade.executed" {
		t.Errorf("audit = %+v", audit)
	}

	if rec := env.do("POST", "/api/admin/archive", "", key...); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("archive without storage = %d", rec.Code)
	}
}

func TestInsightFallback(t *testing.T) {
	env := newTestEnv(t, nil)

	got := decode[map[string]string](t, env.do("GET", "/api/insights/bitcoin", ""))
	if got["analysis"] != service.FallbackAnalysis {
		t.Errorf("analysis = %q", got["analysis"])
	}
	rec := env.do("GET", "/api/insights/strategy", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"steps":[]`)) {
		t.Errorf("strategy = %d %s", rec.Code, rec.Body)
	}
}

func TestRateLimitAndCORS(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Limiter = cachemem.NewRateLimiter()
		c.RateLimit = 3
		c.RateWindow = time.Minute
		c.CORSOrigins = []string{"http://localhost:5173"}
	})

	for i := 0; i < 3; i++ {
		if rec := env.do("GET", "/api/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	if rec := env.do("GET", "/api/health", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("4th request = %d, want 429", rec.Code)
	}

	rec := env.do("OPTIONS", "/api/trades", "", "Origin", "http://localhost:5173", "X-Forwarded-For", "10.0.0.9")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
	rec = env.do("OPTIONS", "/api/trades", "", "Origin", "http://evil.test", "X-Forwarded-For", "10.0.0.10")
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}
}

func TestTradeIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Dedup = middleware.NewDedup(time.Minute) })

	tooBig := `{"side":"buy","symbol":"BTC","amount":"1"}`
	if rec := env.do("POST", "/api/trades", tooBig, middleware.IdempotencyHeader, "k-1"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unaffordable = %d: %s", rec.Code, rec.Body)
	}

	// The failed attempt leaves the key free for the retry.
	body := `{"side":"buy","symbol":"SOL","amount":"1"}`
	if rec := env.do("POST", "/api/trades", body, middleware.IdempotencyHeader, "k-1"); rec.Code != http.StatusCreated {
		t.Fatalf("first = %d: %s", rec.Code, rec.Body)
	}
	if rec := env.do("POST", "/api/trades", body, middleware.IdempotencyHeader, "k-1"); rec.Code != http.StatusConflict {
		t.Fatalf("replay = %d", rec.Code)
	}

	orders := decode[struct {
		Orders []domain.Order `json:"orders"`
	}](t, env.do("GET", "/api/orders", ""))
	if len(orders.Orders) != 1 {
		t.Errorf("orders = %d, want 1", len(orders.Orders))
	}
}

func TestActiveSessionFallback(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ActiveFallback = true })

	rec := env.do("POST", "/api/session/register", `{"email":"lee@example.com","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body)
	}
	if got := decode[domain.Identity](t, env.do("GET", "/api/session", "")); got.Email != "lee@example.com" {
		t.Errorf("active identity = %+v", got)
	}
}
