package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// webhookRecorder collects posted alerts.
type webhookRecorder struct {
	mu       sync.Mutex
	payloads []AlertPayload
}

func (wr *webhookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p AlertPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	wr.mu.Lock()
	wr.payloads = append(wr.payloads, p)
	wr.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (wr *webhookRecorder) received() []AlertPayload {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return append([]AlertPayload(nil), wr.payloads...)
}

func newWebhook(t *testing.T) (*webhookRecorder, string) {
	t.Helper()
	wr := &webhookRecorder{}
	srv := httptest.NewServer(wr)
	t.Cleanup(srv.Close)
	return wr, srv.URL
}

func TestAlerter_ActuationFaultPosted(t *testing.T) {
	wr, url := newWebhook(t)
	a := NewAlerter(url, "box-1", "boot-123")

	a.ActuationFault(errors.New("coil open"))

	waitFor(t, 2*time.Second, func() bool { return len(wr.received()) == 1 }, "fault alert delivered")
	got := wr.received()
	if len(got) != 1 {
		return
	}
	p := got[0]
	if p.Event != AlertActuationFault || p.Severity != SeverityCritical {
		t.Errorf("unexpected alert %s/%s", p.Event, p.Severity)
	}
	if p.Device != "box-1" || p.BootID != "boot-123" {
		t.Errorf("unexpected identity %s/%s", p.Device, p.BootID)
	}
	if p.Details["error"] != "coil open" {
		t.Errorf("expected error detail, got %v", p.Details)
	}
}

func TestAlerter_NoWebhookDoesNotPanic(t *testing.T) {
	a := NewAlerter("", "box-1", "")
	a.ActuationFault(errors.New("coil open"))
	a.Track(AlertControllerLost, false)
}

func TestAlerter_TrackDebouncesAndRecovers(t *testing.T) {
	wr, url := newWebhook(t)
	a := NewAlerter(url, "box-1", "")
	a.trackers[AlertMQTTDisconnected].delay = 50 * time.Millisecond

	a.Track(AlertMQTTDisconnected, false)
	time.Sleep(100 * time.Millisecond)
	if n := len(wr.received()); n != 0 {
		t.Fatalf("alert fired before delay elapsed on first observation: %d", n)
	}

	time.Sleep(60 * time.Millisecond)
	a.Track(AlertMQTTDisconnected, false)
	a.Track(AlertMQTTDisconnected, false)
	waitFor(t, 2*time.Second, func() bool { return len(wr.received()) == 1 }, "outage alert delivered")

	a.Track(AlertMQTTDisconnected, true)
	waitFor(t, 2*time.Second, func() bool { return len(wr.received()) == 2 }, "recovery alert delivered")

	got := wr.received()
	if len(got) == 2 {
		if got[0].Severity != SeverityWarning {
			t.Errorf("expected warning, got %s", got[0].Severity)
		}
		if got[1].Severity != SeverityInfo {
			t.Errorf("expected info on recovery, got %s", got[1].Severity)
		}
	}
}

func TestAlerter_ControllerLostImmediate(t *testing.T) {
	wr, url := newWebhook(t)
	a := NewAlerter(url, "box-1", "")

	a.Track(AlertControllerLost, false)
	waitFor(t, 2*time.Second, func() bool { return len(wr.received()) == 1 }, "controller alert delivered")

	// Unknown dependencies are ignored.
	a.Track("unknown_event", false)
	time.Sleep(50 * time.Millisecond)
	if n := len(wr.received()); n != 1 {
		t.Errorf("expected 1 alert, got %d", n)
	}
}
