package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
	"github.com/nerrad567/shadowsync/internal/infrastructure/logging"
	"github.com/nerrad567/shadowsync/internal/journal"
	"github.com/nerrad567/shadowsync/internal/shadow"
)

// =============================================================================
// Test helpers
// =============================================================================

type mockEngine struct {
	mu   sync.Mutex
	snap shadow.Snapshot
}

func (m *mockEngine) Snapshot() shadow.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockEngine) set(snap shadow.Snapshot) {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// mockRepository is an in-memory journal.Repository.
type mockRepository struct {
	mu        sync.Mutex
	deltas    []journal.DeltaEntry
	acks      map[string]int
	err       error
	lastKey   string
	lastLimit int
}

func (m *mockRepository) RecordDelta(context.Context, string, shadow.Sample, time.Time) error {
	return nil
}

func (m *mockRepository) RecordAck(context.Context, string, shadow.AckStatus, time.Time) error {
	return nil
}

func (m *mockRepository) LatestValues(context.Context, string) ([]journal.DeltaEntry, error) {
	return nil, nil
}

func (m *mockRepository) DeltaHistory(_ context.Context, thing, key string, limit int) ([]journal.DeltaEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastKey, m.lastLimit = key, limit
	if m.err != nil {
		return nil, m.err
	}
	var out []journal.DeltaEntry
	for _, e := range m.deltas {
		if e.Thing == thing && (key == "" || e.Key == key) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepository) AckCounts(context.Context, string) (map[string]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.acks, nil
}

func (m *mockRepository) Prune(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func runningSnapshot() shadow.Snapshot {
	return shadow.Snapshot{
		Thing:   "lab-board-7",
		State:   shadow.StateRunning,
		Status:  shadow.StatusOK.String(),
		Health:  shadow.HealthAlive.String(),
		Reports: 3,
	}
}

func testServer(t *testing.T, deps Deps) (*Server, *mockEngine) {
	t.Helper()

	eng := &mockEngine{snap: runningSnapshot()}
	if deps.Engine == nil {
		deps.Engine = eng
	}
	deps.Logger = logging.Discard()
	deps.Version = "test"

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, eng
}

func do(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

// =============================================================================
// Constructor
// =============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Engine: &mockEngine{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without engine should fail")
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	boom := errors.New("database is locked")

	tests := []struct {
		name       string
		snap       shadow.Snapshot
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "running without checks",
			snap:       runningSnapshot(),
			wantCode:   http.StatusOK,
			wantStatus: healthOK,
		},
		{
			name: "running with passing checks",
			snap: runningSnapshot(),
			checks: map[string]HealthChecker{
				"database": checkFunc(func(context.Context) error { return nil }),
				"mqtt":     checkFunc(func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusOK,
			wantStatus: healthOK,
		},
		{
			name: "failing check degrades",
			snap: runningSnapshot(),
			checks: map[string]HealthChecker{
				"database": checkFunc(func(context.Context) error { return boom }),
			},
			wantCode:   http.StatusOK,
			wantStatus: healthDegraded,
		},
		{
			name:       "engine not running",
			snap:       shadow.Snapshot{State: shadow.StateTerminated, Health: shadow.HealthAlive.String()},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: healthUnavailable,
		},
		{
			name: "fatal link",
			snap: shadow.Snapshot{
				State:  shadow.StateRunning,
				Health: shadow.HealthFatal.String(),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: healthUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, eng := testServer(t, Deps{Checks: tt.checks})
			eng.set(tt.snap)

			w := do(t, srv, "/healthz")
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp HealthResponse
			decode(t, w, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Version != "test" {
				t.Errorf("version = %q", resp.Version)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %v, want %d entries", resp.Checks, len(tt.checks))
			}
		})
	}
}

func TestHealth_CheckErrorReported(t *testing.T) {
	srv, _ := testServer(t, Deps{Checks: map[string]HealthChecker{
		"influxdb": checkFunc(func(context.Context) error { return errors.New("influxdb: not connected") }),
	}})

	var resp HealthResponse
	decode(t, do(t, srv, "/healthz"), &resp)
	if resp.Checks["influxdb"] != "influxdb: not connected" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestHealth_CheckHasDeadline(t *testing.T) {
	srv, _ := testServer(t, Deps{Checks: map[string]HealthChecker{
		"mqtt": checkFunc(func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		}),
	}})

	var resp HealthResponse
	decode(t, do(t, srv, "/healthz"), &resp)
	if resp.Checks["mqtt"] != healthOK {
		t.Errorf("checks = %v", resp.Checks)
	}
}

// =============================================================================
// Shadow
// =============================================================================

func TestShadow_BeforeFirstReport(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, "/shadow")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["document"] != nil {
		t.Errorf("document = %v, want null", resp["document"])
	}
	if resp["thing"] != "lab-board-7" || resp["state"] != shadow.StateRunning {
		t.Errorf("response = %v", resp)
	}
}

func TestShadow_EmbedsDocument(t *testing.T) {
	srv, eng := testServer(t, Deps{})

	snap := runningSnapshot()
	snap.Document = []byte(`{"state":{"reported":{"heater":true}}}`)
	snap.LastAck = "accepted"
	eng.set(snap)

	w := do(t, srv, "/shadow")

	var resp struct {
		Thing    string `json:"thing"`
		LastAck  string `json:"last_ack"`
		Reports  uint64 `json:"reports"`
		Document struct {
			State struct {
				Reported map[string]any `json:"reported"`
			} `json:"state"`
		} `json:"document"`
	}
	decode(t, w, &resp)

	if resp.Document.State.Reported["heater"] != true {
		t.Errorf("document = %s", w.Body.String())
	}
	if resp.LastAck != "accepted" || resp.Reports != 3 {
		t.Errorf("counters = %+v", resp)
	}
}

// =============================================================================
// Journal
// =============================================================================

func TestJournal_Disabled(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	for _, path := range []string{"/journal/deltas", "/journal/acks"} {
		if w := do(t, srv, path); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status code = %d, want 503", path, w.Code)
		}
	}
}

func TestJournal_DeltaHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &mockRepository{deltas: []journal.DeltaEntry{
		{ID: 2, Thing: "lab-board-7", Key: "heater", Value: json.RawMessage(`true`), AppliedAt: at},
		{ID: 1, Thing: "lab-board-7", Key: "rgb_light", Value: json.RawMessage(`255`), AppliedAt: at},
		{ID: 3, Thing: "other", Key: "heater", Value: json.RawMessage(`false`), AppliedAt: at},
	}}
	srv, _ := testServer(t, Deps{Journal: repo})

	w := do(t, srv, "/journal/deltas?key=heater&limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Thing  string               `json:"thing"`
		Count  int                  `json:"count"`
		Deltas []journal.DeltaEntry `json:"deltas"`
	}
	decode(t, w, &resp)

	if resp.Count != 1 || len(resp.Deltas) != 1 || resp.Deltas[0].ID != 2 {
		t.Errorf("response = %+v", resp)
	}
	if string(resp.Deltas[0].Value) != "true" {
		t.Errorf("value = %s", resp.Deltas[0].Value)
	}
	if repo.lastKey != "heater" || repo.lastLimit != 5 {
		t.Errorf("query key=%q limit=%d", repo.lastKey, repo.lastLimit)
	}
}

func TestJournal_DeltaHistoryEmpty(t *testing.T) {
	srv, _ := testServer(t, Deps{Journal: &mockRepository{}})

	w := do(t, srv, "/journal/deltas")
	if !strings.Contains(w.Body.String(), `"deltas":[]`) {
		t.Errorf("body = %s, want empty array", w.Body.String())
	}
}

func TestJournal_DeltaHistoryErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		repoErr  error
		wantCode int
	}{
		{"non numeric limit", "/journal/deltas?limit=ten", nil, http.StatusBadRequest},
		{"zero limit", "/journal/deltas?limit=0", nil, http.StatusBadRequest},
		{"repository failure", "/journal/deltas", errors.New("disk I/O error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, Deps{Journal: &mockRepository{err: tt.repoErr}})

			w := do(t, srv, tt.target)
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp Error
			decode(t, w, &resp)
			if resp.Status != tt.wantCode {
				t.Errorf("error body = %+v", resp)
			}
		})
	}
}

func TestJournal_AckCounts(t *testing.T) {
	repo := &mockRepository{acks: map[string]int{"timeout": 1, "accepted": 9}}
	srv, _ := testServer(t, Deps{Journal: repo})

	var resp struct {
		Acks []AckCount `json:"acks"`
	}
	decode(t, do(t, srv, "/journal/acks"), &resp)

	want := []AckCount{{"accepted", 9}, {"timeout", 1}}
	if len(resp.Acks) != len(want) {
		t.Fatalf("acks = %+v, want %+v", resp.Acks, want)
	}
	for i := range want {
		if resp.Acks[i] != want[i] {
			t.Errorf("acks[%d] = %+v, want %+v", i, resp.Acks[i], want[i])
		}
	}
}

// =============================================================================
// Metrics, middleware, routing
// =============================================================================

func TestMetrics_UsesHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "shadowsync_engine_cycles_total 1\n")
	})
	srv, _ := testServer(t, Deps{Metrics: metrics})

	w := do(t, srv, "/metrics")
	if !strings.Contains(w.Body.String(), "shadowsync_engine_cycles_total") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetrics_DefaultPrometheus(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("default metrics handler should expose Go runtime metrics")
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, "/shadow")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/shadow", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

type panicEngine struct{}

func (panicEngine) Snapshot() shadow.Snapshot { panic("snapshot exploded") }

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, Deps{Engine: panicEngine{}})

	w := do(t, srv, "/shadow")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, Deps{})

	w := do(t, srv, "/devices")
	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", w.Code)
	}
	var resp Error
	decode(t, w, &resp)
	if resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q", resp.Code)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestServer_StartServeClose(t *testing.T) {
	srv, _ := testServer(t, Deps{Config: config.APIConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}})

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("GET /healthz = %d %s", resp.StatusCode, body)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + srv.Addr() + "/healthz"); err == nil {
		t.Error("server still serving after Close")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first, _ := testServer(t, Deps{Config: config.APIConfig{Host: "127.0.0.1"}})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer first.Close()

	addr := first.Addr()
	p, err := strconv.Atoi(addr[strings.LastIndex(addr, ":")+1:])
	if err != nil {
		t.Fatalf("parsing port of %q: %v", addr, err)
	}

	second, _ := testServer(t, Deps{Config: config.APIConfig{Host: "127.0.0.1", Port: p}})
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port should fail")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _ := testServer(t, Deps{})
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
