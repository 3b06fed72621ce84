package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/lumina-bridge/internal/audit"
	"github.com/nerrad567/lumina-bridge/internal/auth"
	"github.com/nerrad567/lumina-bridge/internal/device"
	"github.com/nerrad567/lumina-bridge/internal/fulfilment"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/config"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

const (
	testStaticToken = "static-secret"
	testOwner       = "owner-1"
	testRedirectURI = "https://platform.example/callback"
	testClientID    = "voice-platform"
	testSecret      = "assertion-secret"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeIntents struct {
	mu    sync.Mutex
	owner string
	req   fulfilment.Request
	resp  fulfilment.Response
	err   error
}

func (f *fakeIntents) Handle(_ context.Context, owner string, req fulfilment.Request) (fulfilment.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner = owner
	f.req = req
	if f.resp.RequestID == "" {
		f.resp.RequestID = req.RequestID
	}
	return f.resp, f.err
}

type fakeDevices struct {
	owned map[string]device.IDSet
	err   error
}

func (f *fakeDevices) OwnedIDs(_ context.Context, owner string) (device.IDSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	if set, ok := f.owned[owner]; ok {
		return set, nil
	}
	return device.IDSet{}, nil
}

type fakeAudit struct {
	filter audit.Filter
	result *audit.ListResult
	err    error
}

func (f *fakeAudit) Create(context.Context, *audit.Entry) error { return nil }

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

// ============================================================================
// Helpers
// ============================================================================

type testEnv struct {
	srv     *Server
	handler http.Handler
	intents *fakeIntents
	devices *fakeDevices
	cache   *state.Cache
	issuer  *auth.Issuer
}

func testConfig() config.Config {
	return config.Config{
		Service: config.ServiceConfig{Name: "lumina-bridge"},
		API: config.APIConfig{
			Timeouts:     config.APITimeoutConfig{Request: 5},
			MaxBodyBytes: 1 << 16,
		},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			StaticToken:     testStaticToken,
			TestOwnerID:     testOwner,
			AssertionSecret: testSecret,
			CredentialStore: "memory",
			OAuth: config.OAuthConfig{
				ClientID:     testClientID,
				RedirectURIs: []string{testRedirectURI},
			},
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "json"}, "test", io.Discard)
}

// newTestEnv builds a server over real credential and state components and
// fake registry and intent handlers. mutate may adjust deps before New.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	store := auth.NewMemoryStore()
	issuer := auth.NewIssuer(store, store, 0, 0)
	env := &testEnv{
		intents: &fakeIntents{},
		devices: &fakeDevices{owned: map[string]device.IDSet{
			testOwner: {"SW-1": {}, "SW-2": {}},
			"owner-2": {"SW-9": {}},
		}},
		cache:  state.NewCache(nil),
		issuer: issuer,
	}

	deps := Deps{
		Config:   testConfig(),
		Logger:   testLogger(),
		Intents:  env.intents,
		Resolver: auth.NewResolver(store, testStaticToken, testOwner),
		Issuer:   issuer,
		Devices:  env.devices,
		States:   env.cache,
		Gatherer: prometheus.NewRegistry(),
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
}

// ============================================================================
// Construction and lifecycle
// ============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"intents", func(d *Deps) { d.Intents = nil }},
		{"resolver", func(d *Deps) { d.Resolver = nil }},
		{"issuer", func(d *Deps) { d.Issuer = nil }},
		{"devices", func(d *Deps) { d.Devices = nil }},
		{"states", func(d *Deps) { d.States = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := auth.NewMemoryStore()
			deps := Deps{
				Config:   testConfig(),
				Logger:   testLogger(),
				Intents:  &fakeIntents{},
				Resolver: auth.NewResolver(store, "", ""),
				Issuer:   auth.NewIssuer(store, store, 0, 0),
				Devices:  &fakeDevices{},
				States:   state.NewCache(nil),
			}
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.API.Host = "127.0.0.1"
		d.Config.API.Port = 0
	})

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { env.srv.Close() }) //nolint:errcheck // test cleanup

	if err := env.srv.Start(context.Background()); err == nil {
		t.Error("second Start() = nil, want error")
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// ============================================================================
// Operational endpoints
// ============================================================================

func TestIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["service"] != "lumina-bridge" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.Health = map[string]HealthChecker{"database": fakeHealth{}}
		})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decodeBody(t, rec, &body)
		if body.Status != "ok" || body.Checks["database"] != "ok" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.Health = map[string]HealthChecker{
				"database": fakeHealth{},
				"mqtt":     fakeHealth{err: errors.New("not connected")},
			}
		})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decodeBody(t, rec, &body)
		if body.Status != "degraded" || body.Checks["mqtt"] != "not connected" {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestDebugConfig_HidesSecrets(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/debug/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	raw := rec.Body.String()
	for _, secret := range []string{testStaticToken, testSecret} {
		if strings.Contains(raw, secret) {
			t.Errorf("body leaks %q: %s", secret, raw)
		}
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["static_token_set"] != true {
		t.Errorf("static_token_set = %v, want true", body["static_token_set"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	env = newTestEnv(t, func(d *Deps) { d.Config.Metrics.Enabled = false })
	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled status = %d, want 404", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body ErrorBody
	decodeBody(t, rec, &body)
	if body.Error.Code != ErrCodeNotFound {
		t.Errorf("code = %q", body.Error.Code)
	}
}

// ============================================================================
// Audit listing
// ============================================================================

func TestListAudit(t *testing.T) {
	repo := &fakeAudit{result: &audit.ListResult{
		Entries: []audit.Entry{{ID: "aud-1", Action: audit.ActionCommand, Owner: testOwner, DeviceID: "SW-1"}},
		Total:   1,
		Limit:   10,
	}}
	env := newTestEnv(t, func(d *Deps) { d.Audit = repo })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?action=command&device_id=SW-1&limit=10&offset=0", nil)
	req.Header.Set("Authorization", "Bearer "+testStaticToken)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if repo.filter.Owner != testOwner {
		t.Errorf("filter owner = %q, want %q", repo.filter.Owner, testOwner)
	}
	if repo.filter.Action != "command" || repo.filter.DeviceID != "SW-1" || repo.filter.Limit != 10 {
		t.Errorf("filter = %+v", repo.filter)
	}

	var body audit.ListResult
	decodeBody(t, rec, &body)
	if body.Total != 1 || len(body.Entries) != 1 || body.Entries[0].ID != "aud-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestListAudit_Errors(t *testing.T) {
	authed := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+testStaticToken)
		return req
	}

	t.Run("unauthenticated", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Audit = &fakeAudit{} })
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if rec := env.do(authed("/api/v1/audit")); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Audit = &fakeAudit{} })
		if rec := env.do(authed("/api/v1/audit?limit=abc")); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("repository failure", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Audit = &fakeAudit{err: errors.New("disk full")} })
		if rec := env.do(authed("/api/v1/audit")); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}
