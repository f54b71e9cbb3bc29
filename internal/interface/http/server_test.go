package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casino-hub/casino-hub/internal/application/command"
	"github.com/casino-hub/casino-hub/internal/application/query"
	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/player/playertest"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/interface/http/handlers"
)

const (
	testWebhookPath = "/webhook/0123456789abcdef0123456789abcdef"
	testOrigin      = "https://casino.example"
)

type fakeWebhook struct {
	hits  atomic.Int64
	panic bool
}

func (f *fakeWebhook) Path() string { return testWebhookPath }

func (f *fakeWebhook) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	f.hits.Add(1)
	if f.panic {
		panic("webhook exploded")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

type apiFixture struct {
	srv     *Server
	repo    *playertest.Repository
	cache   *playertest.LeaderboardCache
	webhook *fakeWebhook
	now     time.Time
}

func newAPIFixture(t *testing.T, mutate ...func(*Config, *Dependencies)) *apiFixture {
	t.Helper()
	f := &apiFixture{
		repo:    playertest.NewRepository(),
		cache:   &playertest.LeaderboardCache{},
		webhook: &fakeWebhook{},
		now:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.repo.SetClock(func() time.Time { return f.now })

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.RateLimitPerMinute = 0
	deps := Dependencies{
		Webhook:        f.webhook,
		GetPlayer:      query.NewGetPlayerHandler(f.repo),
		GetLeaderboard: query.NewGetLeaderboardHandler(f.repo, f.cache, nil),
		ClaimBonus:     command.NewClaimBonusHandler(f.repo, f.cache, nil),
		SyncProfile:    command.NewSyncProfileHandler(f.repo, f.cache, nil),
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	f.srv = NewServer(cfg, deps)
	t.Cleanup(func() {
		if f.srv.rateLimiter != nil {
			f.srv.rateLimiter.Stop()
		}
	})
	return f
}

func (f *apiFixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// ─────────────────────────────────────────────────────────────────────────────
// API
// ─────────────────────────────────────────────────────────────────────────────

func TestAPI_PlayerLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/players/5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec).Error.Code)

	rec = f.do(http.MethodPost, "/api/players", `{"user_id":"5","username":"olha"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/players", `{"user_id":5,"username":"olha"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/players/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)

	var dto query.PlayerDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, int64(5), dto.UserID)
	assert.Equal(t, "olha", dto.Username)
	assert.Equal(t, player.InitialBalance, dto.Balance)
	assert.Equal(t, 1, dto.Level)
}

func TestAPI_BonusAndCooldown(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/bonuses", `{"user_id":9,"kind":"daily"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bonus BonusResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &bonus))
	assert.Equal(t, int64(300), bonus.Amount)
	assert.Equal(t, player.InitialBalance+300, bonus.Balance)
	assert.Equal(t, 20, bonus.XP)
	assert.NotEmpty(t, bonus.Message)
	assert.Equal(t, 1, f.cache.Invalidated)

	f.now = f.now.Add(time.Hour)
	rec = f.do(http.MethodPost, "/api/bonuses", `{"user_id":9,"kind":"daily"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "cooldown", env.Error.Code)
	assert.Equal(t, int64(23*3600), env.Error.RetryAfterSeconds)
	assert.Equal(t, "82800", rec.Header().Get("Retry-After"))
	assert.Contains(t, env.Error.Message, "23:00:00")

	// The quick bonus has its own timer.
	rec = f.do(http.MethodPost, "/api/bonuses", `{"user_id":9,"kind":"quick"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.repo.Ledger(), 2)
}

func TestAPI_ValidationAndMalformed(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name, body, code string
	}{
		{"free coins via api", `{"user_id":9,"kind":"free_coins"}`, "validation_error"},
		{"unknown kind", `{"user_id":9,"kind":"weekly"}`, "validation_error"},
		{"missing user", `{"kind":"daily"}`, "validation_error"},
		{"negative user", `{"user_id":-1,"kind":"daily"}`, "validation_error"},
		{"empty body", ``, "invalid_request"},
		{"not json", `kind=daily`, "invalid_request"},
		{"array", `[{"user_id":9}]`, "invalid_request"},
		{"bad user id", `{"user_id":"nine","kind":"daily"}`, "invalid_request"},
		{"trailing data", `{"user_id":9,"kind":"daily"} {}`, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/bonuses", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec).Error.Code)
		})
	}
	assert.Zero(t, f.repo.Len())

	rec := f.do(http.MethodGet, "/api/players/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UnknownResource(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/spins/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_resource", decode(t, rec).Error.Code)

	rec = f.do(http.MethodPost, "/api/leaderboards", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/leaderboards/weekly", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Leaderboard(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(player.Player{ID: 1, Username: "a", Level: 2, XP: 60})
	f.repo.Put(player.Player{ID: 2, Username: "b", Level: 3, XP: 130})

	rec := f.do(http.MethodGet, "/api/leaderboards/global", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)

	var entries []player.LeaderboardEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.False(t, env.Meta.Cached)

	rec = f.do(http.MethodGet, "/api/leaderboards/global", "")
	assert.True(t, decode(t, rec).Meta.Cached)
}

func TestAPI_PoolExhaustedIsRetryable(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Err = shared.ErrPoolExhausted

	rec := f.do(http.MethodPost, "/api/bonuses", `{"user_id":9,"kind":"quick"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "service_unavailable", decode(t, rec).Error.Code)
}

func TestAPI_StorageFailureIsInternal(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Err = errors.Join(shared.ErrStorage, errors.New("connection reset"))

	rec := f.do(http.MethodGet, "/api/players/9", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "internal_error", env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestAPI_BodyTooLarge(t *testing.T) {
	f := newAPIFixture(t, func(c *Config, _ *Dependencies) { c.MaxBodyBytes = 32 })

	rec := f.do(http.MethodPost, "/api/players", `{"user_id":5,"username":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Server plumbing
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_RoutesWebhook(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, testWebhookPath, `{"update_id":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, int64(1), f.webhook.hits.Load())

	rec = f.do(http.MethodPost, "/webhook/guess", `{"update_id":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int64(1), f.webhook.hits.Load())
}

func TestServer_RecoversPanics(t *testing.T) {
	f := newAPIFixture(t)
	f.webhook.panic = true

	rec := f.do(http.MethodPost, testWebhookPath, `{"update_id":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", decode(t, rec).Error.Code)
}

func TestServer_RequestID(t *testing.T) {
	f := newAPIFixture(t)
	const id = "5f0c6a4e-58c8-4f67-9a53-8e3e2c1f7b10"

	rec := f.do(http.MethodGet, "/api/spins/1", "", handlers.RequestIDHeader, id)
	assert.Equal(t, id, rec.Header().Get(handlers.RequestIDHeader))
	assert.Equal(t, id, decode(t, rec).RequestID)

	rec = f.do(http.MethodGet, "/api/spins/1", "", handlers.RequestIDHeader, "not-a-uuid\n")
	assert.NotEqual(t, "not-a-uuid\n", rec.Header().Get(handlers.RequestIDHeader))
	assert.Len(t, rec.Header().Get(handlers.RequestIDHeader), 36)
}

func TestServer_CORS(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodOptions, "/api/bonuses", "", "Origin", testOrigin, "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/api/leaderboards/global", "", "Origin", "https://evil.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimitsAPIOnly(t *testing.T) {
	f := newAPIFixture(t, func(c *Config, _ *Dependencies) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/leaderboards/global", "").Code)
	}
	rec := f.do(http.MethodGet, "/api/leaderboards/global", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodPost, testWebhookPath, `{"update_id":1}`).Code)
	}
}

func TestServer_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	f := newAPIFixture(t, func(c *Config, _ *Dependencies) { c.RateLimitPerMinute = 1 })

	spoof := func(fake string) int {
		return f.do(http.MethodGet, "/api/leaderboards/global", "", "X-Forwarded-For", fake+", 203.0.113.7").Code
	}
	assert.Equal(t, http.StatusOK, spoof("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, spoof("10.0.0.2"))
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1"},
		{"single hop", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"rightmost wins", map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.9 ,203.0.113.7"}, "203.0.113.7"},
		{"trailing comma", map[string]string{"X-Forwarded-For": "203.0.113.7,", "X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:4321"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, getClientIP(req))
		})
	}
}

func TestServer_HealthAndReadiness(t *testing.T) {
	var dbDown, cacheDown atomic.Bool
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error {
		if dbDown.Load() {
			return errors.New("db down")
		}
		return nil
	})
	checker.AddOptionalCheck("redis", func(context.Context) error {
		if cacheDown.Load() {
			return errors.New("cache down")
		}
		return nil
	})
	f := newAPIFixture(t, func(_ *Config, d *Dependencies) { d.HealthChecker = checker })

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)

	cacheDown.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)

	dbDown.Store(true)
	rec := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/live", "").Code)
}

func TestServer_Metrics(t *testing.T) {
	f := newAPIFixture(t, func(_ *Config, d *Dependencies) {
		d.Metrics = []MetricsSource{{Name: "webhook", Snapshot: func() any {
			return map[string]int64{"received": 3}
		}}}
	})

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, `{"received":3}`, string(body["webhook"]))
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv := NewServer(cfg, Dependencies{})

	errCh := srv.StartAsync()
	require.True(t, srv.IsRunning())

	resp, err := http.Get("http://" + srv.Address() + "/live")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.False(t, srv.IsRunning())
	assert.NoError(t, <-errCh)
}
