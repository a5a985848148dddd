package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ncuskey/solid-couscous/internal/events"
	"github.com/ncuskey/solid-couscous/internal/lockbox"
	"github.com/ncuskey/solid-couscous/internal/storage/postgres"
)

func TestMain(m *testing.M) {
	events.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// stubDriver counts unlock attempts.
type stubDriver struct {
	calls atomic.Int32
	err   error
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) Unlock(ctx context.Context) error {
	d.calls.Add(1)
	return d.err
}

func newTestServer(t *testing.T) (*Server, *stubDriver) {
	t.Helper()
	auth = nil
	d := &stubDriver{}
	box := lockbox.New(lockbox.NewLatch(d, time.Second))
	s, err := NewServer(Options{Box: box, DeviceName: "test-box"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, d
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServer_RequiresBox(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Error("expected error for nil box")
	}
}

func TestPages_ServedAtKnownRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	cases := map[string]string{
		"/":         "North Pole Access",
		"/sam":      "Santa's Helper",
		"/kristine": "Elf Comm-Link",
		"/jacob":    "SysAdmin Console",
	}
	for path, want := range cases {
		w := get(t, s.Handler(), path)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
			continue
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: expected text/html, got %q", path, ct)
		}
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("%s: body missing %q", path, want)
		}
	}
}

func TestPages_ReportTheirPuzzleNumber(t *testing.T) {
	s, _ := newTestServer(t)
	cases := map[string]string{
		"/sam":      "/solve?puzzle=1",
		"/kristine": "/solve?puzzle=2",
		"/jacob":    "/solve?puzzle=3",
	}
	for path, want := range cases {
		if body := get(t, s.Handler(), path).Body.String(); !strings.Contains(body, want) {
			t.Errorf("%s: page does not call %s", path, want)
		}
	}
}

func TestUnknownPaths_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/nope", "/sam/", "/SAM", "/solve/extra", "/index.html", "/pages/sam.html"} {
		if w := get(t, s.Handler(), path); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestSolve_AlwaysOK(t *testing.T) {
	s, d := newTestServer(t)
	for _, q := range []string{"", "?puzzle=", "?puzzle=abc", "?puzzle=0", "?puzzle=4", "?puzzle=2", "?puzzle=2", "?other=1"} {
		w := get(t, s.Handler(), "/solve"+q)
		if w.Code != http.StatusOK {
			t.Errorf("/solve%s: expected 200, got %d", q, w.Code)
		}
		if w.Body.String() != "ok" {
			t.Errorf("/solve%s: expected body 'ok', got %q", q, w.Body.String())
		}
	}
	if d.calls.Load() != 0 {
		t.Error("lock driven without all puzzles solved")
	}
}

func TestSolve_MalformedDoesNotChangeState(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s.Handler(), "/solve?puzzle=1")
	before := s.box.Snapshot()

	for _, q := range []string{"?puzzle=abc", "?puzzle=7", "?puzzle=-1", ""} {
		get(t, s.Handler(), "/solve"+q)
	}

	after := s.box.Snapshot()
	if len(after.Solved) != len(before.Solved) || after.Lock != before.Lock {
		t.Errorf("state changed: before=%+v after=%+v", before, after)
	}
}

func TestSolve_FullFlowUnlocksOnce(t *testing.T) {
	s, d := newTestServer(t)
	h := s.Handler()

	get(t, h, "/solve?puzzle=2")
	get(t, h, "/solve?puzzle=2")
	get(t, h, "/solve?puzzle=1")
	if s.box.Snapshot().Lock != lockbox.Locked {
		t.Fatal("unlocked before the third puzzle")
	}

	get(t, h, "/solve?puzzle=3")
	if s.box.Snapshot().Lock != lockbox.Unlocked {
		t.Fatal("expected unlocked after all three puzzles")
	}

	get(t, h, "/solve?puzzle=3")
	get(t, h, "/solve?puzzle=1")
	if n := d.calls.Load(); n != 1 {
		t.Errorf("expected exactly one actuation, got %d", n)
	}
}

func TestSolve_UpdatesMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	recorded := solveSignals.WithLabelValues("1", "recorded")
	duplicate := solveSignals.WithLabelValues("1", "duplicate")
	invalid := solveSignals.WithLabelValues("invalid", "ignored")
	r0, d0, i0 := testutil.ToFloat64(recorded), testutil.ToFloat64(duplicate), testutil.ToFloat64(invalid)

	get(t, h, "/solve?puzzle=1")
	get(t, h, "/solve?puzzle=1")
	get(t, h, "/solve?puzzle=x")

	if got := testutil.ToFloat64(recorded) - r0; got != 1 {
		t.Errorf("recorded delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(duplicate) - d0; got != 1 {
		t.Errorf("duplicate delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(invalid) - i0; got != 1 {
		t.Errorf("invalid delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(puzzlesSolved); got != 1 {
		t.Errorf("puzzles_solved = %v, want 1", got)
	}
}

func TestSolve_FaultCountsAndStaysLocked(t *testing.T) {
	auth = nil
	d := &stubDriver{err: errors.New("coil open")}
	box := lockbox.New(lockbox.NewLatch(d, time.Second))
	s, err := NewServer(Options{Box: box})
	if err != nil {
		t.Fatal(err)
	}
	before := testutil.ToFloat64(actuationFaults)

	for _, n := range []string{"1", "2", "3", "3"} {
		if w := get(t, s.Handler(), "/solve?puzzle="+n); w.Code != http.StatusOK {
			t.Errorf("expected 200 even on fault, got %d", w.Code)
		}
	}

	if got := testutil.ToFloat64(actuationFaults) - before; got != 1 {
		t.Errorf("actuation_faults_total delta = %v, want 1", got)
	}
	if box.Snapshot().Lock != lockbox.Locked {
		t.Error("lock reported unlocked after fault")
	}
	if d.calls.Load() != 1 {
		t.Errorf("expected one attempt, got %d", d.calls.Load())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := get(t, s.Handler(), "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s.Handler(), "/solve?puzzle=3")

	w := get(t, s.Handler(), "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Device != "test-box" {
		t.Errorf("expected device 'test-box', got %q", resp.Device)
	}
	if resp.Driver != "stub" {
		t.Errorf("expected driver 'stub', got %q", resp.Driver)
	}
	if len(resp.Box.Solved) != 1 || resp.Box.Solved[0] != "C" {
		t.Errorf("expected solved [C], got %v", resp.Box.Solved)
	}
	if resp.Box.Lock != lockbox.Locked {
		t.Errorf("expected locked, got %s", resp.Box.Lock)
	}
	if resp.Controller != nil {
		t.Error("expected no controller block without MQTT")
	}
}

func TestOperatorRoutes_RequireAuth(t *testing.T) {
	s, _ := newTestServer(t)
	auth = &authConfig{user: "admin", pass: "secret", enabled: true}
	defer func() { auth = nil }()

	for _, path := range []string{"/status", "/events", "/metrics", "/ui"} {
		if w := get(t, s.Handler(), path); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}

		req := httptest.NewRequest("GET", path, nil)
		req.SetBasicAuth("admin", "secret")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s with credentials: expected 200, got %d", path, w.Code)
		}
	}

	// Player routes stay open.
	for _, path := range []string{"/", "/sam", "/solve?puzzle=1", "/health", "/ready"} {
		if w := get(t, s.Handler(), path); w.Code == http.StatusUnauthorized {
			t.Errorf("%s: player route demanded credentials", path)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s.Handler(), "/solve?puzzle=2")

	w := get(t, s.Handler(), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		"lockbox_solve_signals_total",
		"lockbox_puzzles_solved",
		"lockbox_unlocked",
		"lockbox_uptime_seconds",
		"lockbox_events_total",
		"lockbox_events_dropped_total",
		"lockbox_build_info",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestEventsEndpoint(t *testing.T) {
	events.Clear()
	s, _ := newTestServer(t)
	get(t, s.Handler(), "/solve?puzzle=1")

	w := get(t, s.Handler(), "/events")
	var got []events.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) == 0 || got[len(got)-1].Name != "puzzle.solved" {
		t.Errorf("expected trailing puzzle.solved, got %+v", got)
	}
}

// fakeAudit stands in for the Postgres trail.
type fakeAudit struct {
	rows  []postgres.EventRow
	err   error
	limit int
}

func (f *fakeAudit) Query(ctx context.Context, limit int) ([]postgres.EventRow, error) {
	f.limit = limit
	return f.rows, f.err
}

func newAuditServer(t *testing.T, a AuditTrail) *Server {
	t.Helper()
	auth = nil
	box := lockbox.New(lockbox.NewLatch(&stubDriver{}, time.Second))
	s, err := NewServer(Options{Box: box, DeviceName: "test-box", Audit: a})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestEventsEndpoint_FromAuditTrail(t *testing.T) {
	boot := "boot-1"
	fa := &fakeAudit{rows: []postgres.EventRow{
		{EventID: 7, Level: "info", Event: "lock.released", DeviceID: "box-1", BootID: &boot},
		{EventID: 6, Level: "info", Event: "puzzle.solved", DeviceID: "box-1", BootID: &boot},
	}}
	s := newAuditServer(t, fa)

	w := get(t, s.Handler(), "/events?source=db&limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fa.limit != 2 {
		t.Errorf("expected limit 2 passed through, got %d", fa.limit)
	}

	var got []postgres.EventRow
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 || got[0].Event != "lock.released" || got[0].EventID != 7 {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestEventsEndpoint_AuditTrailErrors(t *testing.T) {
	tests := []struct {
		name   string
		audit  AuditTrail
		target string
		code   int
	}{
		{"disabled", nil, "/events?source=db", http.StatusServiceUnavailable},
		{"query fails", &fakeAudit{err: errors.New("connection refused")}, "/events?source=db", http.StatusServiceUnavailable},
		{"bad limit", &fakeAudit{}, "/events?source=db&limit=ten", http.StatusBadRequest},
		{"unknown source", &fakeAudit{}, "/events?source=disk", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newAuditServer(t, tt.audit)
			if w := get(t, s.Handler(), tt.target); w.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestEventsEndpoint_EmptyAuditTrail(t *testing.T) {
	s := newAuditServer(t, &fakeAudit{})
	w := get(t, s.Handler(), "/events?source=db")
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %q", body)
	}
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	SetTLSConfigForTest(nil)
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, 0) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
