package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertActuationFault      = "actuation_fault"
	AlertControllerLost      = "controller_lost"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON body posted to the webhook.
type AlertPayload struct {
	Device    string                 `json:"device"`
	BootID    string                 `json:"boot_id,omitempty"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Alerter posts operator alerts to a webhook. With no URL it only logs.
type Alerter struct {
	url    string
	device string
	bootID string
	client *http.Client

	mu       sync.Mutex
	trackers map[string]*outage
}

// outage debounces a dependency that can flap.
type outage struct {
	delay    time.Duration
	severity string
	since    time.Time
	alerted  bool
}

// NewAlerter creates an alerter for device. url may be empty.
func NewAlerter(url, device, bootID string) *Alerter {
	a := &Alerter{
		url:    url,
		device: device,
		bootID: bootID,
		client: &http.Client{Timeout: 10 * time.Second},
		trackers: map[string]*outage{
			AlertMQTTDisconnected:    {delay: 30 * time.Second, severity: SeverityWarning},
			AlertPostgresUnavailable: {delay: 5 * time.Second, severity: SeverityWarning},
			AlertControllerLost:      {delay: 0, severity: SeverityCritical},
		},
	}
	if url != "" {
		log.Printf("alerts enabled for %s", device)
	}
	return a
}

// Send delivers an alert without blocking the caller.
func (a *Alerter) Send(event, severity, message string, details map[string]interface{}) {
	if a.url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}
	payload := AlertPayload{
		Device:    a.device,
		BootID:    a.bootID,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	go func() {
		if err := a.post(payload); err != nil {
			log.Printf("alert: %v", err)
		}
	}()
}

func (a *Alerter) post(payload AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resp, err := a.client.Post(a.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook POST failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ActuationFault reports a failed lock release. It is never debounced.
func (a *Alerter) ActuationFault(err error) {
	a.Send(AlertActuationFault, SeverityCritical, "lock release failed, manual intervention required",
		map[string]interface{}{"error": err.Error()})
}

// Track feeds the current health of a dependency. An alert fires once the
// dependency has been down for its delay, and a recovery notice follows.
func (a *Alerter) Track(event string, healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trackers[event]
	if !ok {
		return
	}
	now := time.Now()

	if healthy {
		if t.alerted {
			a.Send(event, SeverityInfo, event+" recovered", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		t.since = time.Time{}
		t.alerted = false
		return
	}

	if t.since.IsZero() {
		t.since = now
	}
	if !t.alerted && now.Sub(t.since) >= t.delay {
		t.alerted = true
		a.Send(event, t.severity, event, map[string]interface{}{
			"down_since":   t.since.UTC().Format(time.RFC3339),
			"down_seconds": int(now.Sub(t.since).Seconds()),
		})
	}
}

// Run polls readiness state on interval until ctx ends.
func (a *Alerter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			readiness.mu.RLock()
			mqttOK := readiness.mqttConnected || readiness.mqttOptional
			pgOK := readiness.postgresConnected || readiness.postgresOptional
			readiness.mu.RUnlock()

			a.Track(AlertMQTTDisconnected, mqttOK)
			a.Track(AlertPostgresUnavailable, pgOK)
		}
	}
}
