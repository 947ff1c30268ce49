package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/server/handler"
	"github.com/alanyoungcy/convexbot/internal/service"
)

const (
	wsol = "So11111111111111111111111111111111111111112"
	usdc = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var now = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type staticView struct{ v *domain.View }

func (s staticView) View() *domain.View { return s.v }

type staticPrices map[string]domain.Quote

func (p staticPrices) GetLatestPrice(mint string) (domain.Quote, bool) {
	q, ok := p[mint]
	return q, ok
}

type mirror struct{ prices map[string]float64 }

func (m mirror) SetPrice(context.Context, string, float64, time.Time) error { return nil }

func (m mirror) GetPrice(_ context.Context, mint string) (float64, time.Time, error) {
	p, ok := m.prices[mint]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, now, nil
}

func (m mirror) GetPrices(context.Context, []string) (map[string]float64, error) { return m.prices, nil }

type commandSink struct {
	mu   sync.Mutex
	cmds []domain.Command
	err  error
}

func (c *commandSink) Push(cmd domain.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.cmds = append(c.cmds, cmd)
	return nil
}

type auditLog []domain.AuditEntry

func (a auditLog) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if opts.Offset >= len(a) {
		return nil, nil
	}
	return a[opts.Offset:min(len(a), opts.Offset+opts.Limit)], nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	srv      *Server
	commands *commandSink
}

func newFixture(t *testing.T, cfg Config, view *domain.View, limiter domain.RateLimiter) fixture {
	t.Helper()
	clk := clock.NewManual(now)
	views := staticView{v: view}
	cmds := &commandSink{}
	logger := quiet()

	h := Handlers{
		Health: handler.NewHealthHandler(views, map[string]handler.Pinger{
			"postgres": handler.PingFunc(func(context.Context) error { return nil }),
		}, time.Minute, clk, logger),
		Status:    handler.NewStatusHandler("paper", "paper", now.Add(-time.Hour), views, clk),
		Positions: handler.NewPositionHandler(views),
		Safety:    handler.NewSafetyHandler(views),
		Prices: handler.NewPriceHandler(
			staticPrices{wsol: {Price: 1, Source: domain.SourceStream, UpdatedAt: now}},
			mirror{prices: map[string]float64{usdc: 0.0067}},
			logger,
		),
		Control: handler.NewControlHandler(cmds, clk, logger),
		Audit: handler.NewAuditHandler(auditLog{
			{ID: 2, Event: "exit", Detail: map[string]any{"mint": wsol}, CreatedAt: now},
			{ID: 1, Event: "entry", Detail: map[string]any{"mint": wsol}, CreatedAt: now.Add(-time.Minute)},
		}, logger),
	}
	return fixture{srv: NewServer(cfg, h, limiter, logger), commands: cmds}
}

func (f fixture) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleView() *domain.View {
	return &domain.View{
		Tick: 42,
		At:   now.Add(-2 * time.Second),
		Positions: []domain.Position{
			{Mint: wsol, Symbol: "WSOL", State: domain.StateConviction, EntryPrice: 1},
		},
		Safety: domain.SafetyStatus{
			SafetyState: domain.SafetyState{Halted: true, HaltReason: "daily loss limit"},
			Account:     domain.AccountStats{BalanceSOL: 1.5, DailyPnLSOL: -0.05},
		},
	}
}

func TestReadEndpoints(t *testing.T) {
	f := newFixture(t, Config{}, sampleView(), nil)

	rec := f.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loop":"running"`)

	rec = f.do(http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, float64(42), status["tick"])
	assert.Equal(t, true, status["halted"])
	assert.Equal(t, float64(3600), status["uptime_seconds"])

	rec = f.do(http.MethodGet, "/api/positions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"CONVICTION"`)
	assert.Contains(t, rec.Body.String(), `"watchlist":[]`)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/positions/"+wsol, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/positions/"+usdc, "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/positions/not-a-mint", "", nil).Code)

	rec = f.do(http.MethodGet, "/api/safety", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"halt_reason":"daily loss limit"`)
}

func TestEndpointsBeforeFirstTick(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	rec := f.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loop":"starting"`)

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/positions", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/safety", "", nil).Code)
}

func TestHealthReportsStalledLoop(t *testing.T) {
	v := sampleView()
	v.At = now.Add(-5 * time.Minute)
	f := newFixture(t, Config{}, v, nil)

	rec := f.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loop":"stalled"`)
}

func TestPriceEndpoint(t *testing.T) {
	f := newFixture(t, Config{}, sampleView(), nil)

	rec := f.do(http.MethodGet, "/api/prices/"+wsol, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"stream"`)

	rec = f.do(http.MethodGet, "/api/prices/"+usdc, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"mirror"`)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/prices/11111111111111111111111111111111", "", nil).Code)
}

func TestControlEndpoint(t *testing.T) {
	f := newFixture(t, Config{}, sampleView(), nil)

	rec := f.do(http.MethodPost, "/api/control/resume", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/api/control/force_sell", `{"mint":" `+wsol+` "}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/api/control/rollover", `{"balance_sol":2.5}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/control/launch", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/control/force_sell", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/control/rollover", `{"balance_sol":-1}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/control/stop", `{bad`, nil).Code)

	require.Len(t, f.commands.cmds, 3)
	assert.Equal(t, domain.CommandResume, f.commands.cmds[0].Kind)
	assert.Equal(t, wsol, f.commands.cmds[1].Mint)
	assert.Equal(t, 2.5, f.commands.cmds[2].BalanceSOL)
	assert.Equal(t, now, f.commands.cmds[0].IssuedAt)
	assert.NotEmpty(t, f.commands.cmds[0].ID)

	f.commands.err = domain.ErrQueueFull
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/control/stop", "", nil).Code)
}

func TestAuditEndpoint(t *testing.T) {
	f := newFixture(t, Config{}, sampleView(), nil)

	rec := f.do(http.MethodGet, "/api/audit?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "exit", body.Entries[0].Event)

	rec = f.do(http.MethodGet, "/api/audit?offset=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, sampleView(), nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/status", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/status", "", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestRateLimit(t *testing.T) {
	limiter := service.NewLocalRateLimiter(clock.NewManual(now))
	f := newFixture(t, Config{RateLimit: 2, RateWindow: time.Minute}, sampleView(), limiter)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/status", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/status", "", nil).Code)
	rec := f.do(http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	other := f.do(http.MethodGet, "/api/status", "", map[string]string{"X-Forwarded-For": "10.0.0.9"})
	assert.Equal(t, http.StatusOK, other.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1, RateWindow: time.Minute}, sampleView(), failingLimiter{})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/status", "", nil).Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, sampleView(), nil)

	rec := f.do(http.MethodOptions, "/api/control/stop", "", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/api/status", "", map[string]string{"Origin": "http://evil.test"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
