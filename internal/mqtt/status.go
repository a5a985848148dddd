package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ncuskey/solid-couscous/internal/events"
)

// Subscriber is the part of Client the status monitor needs.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// ControllerStatus is the last known health of the remote lock controller.
type ControllerStatus struct {
	Topic       string
	LastSeen    time.Time
	Connected   bool
	LastPayload interface{}
}

// StatusMonitor listens on the lock controller's status topic and tracks its heartbeat.
type StatusMonitor struct {
	mu        sync.RWMutex
	sub       Subscriber
	topic     string
	heartbeat time.Duration
	tolerance float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	state     ControllerStatus
	onChange  func(connected bool)
	now       func() time.Time
}

// NewStatusMonitor creates a monitor for topic.
// tolerance is the multiplier for heartbeat before considering the controller gone.
func NewStatusMonitor(sub Subscriber, topic string, heartbeat time.Duration, tolerance float64) *StatusMonitor {
	if tolerance <= 1.0 {
		tolerance = 2.0
	}
	return &StatusMonitor{
		sub:       sub,
		topic:     topic,
		heartbeat: heartbeat,
		tolerance: tolerance,
		state:     ControllerStatus{Topic: topic},
		now:       time.Now,
	}
}

// OnChange registers a callback for connected/disconnected transitions.
func (m *StatusMonitor) OnChange(fn func(connected bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Subscribe (re)subscribes to the status topic. Safe to call after every reconnect.
func (m *StatusMonitor) Subscribe() error {
	if err := m.sub.Subscribe(m.topic, m.handle); err != nil {
		events.Emit("error", "device.error", "failed to subscribe to controller status", map[string]interface{}{
			"topic": m.topic,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (m *StatusMonitor) handle(_ paho.Client, msg paho.Message) {
	var payload interface{}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		payload = string(msg.Payload())
	}

	m.mu.Lock()
	wasConnected := m.state.Connected
	m.state.LastSeen = m.now()
	m.state.Connected = true
	m.state.LastPayload = payload
	onChange := m.onChange
	m.mu.Unlock()

	events.Emit("info", "device.input", "", map[string]interface{}{
		"topic":   msg.Topic(),
		"payload": payload,
	})

	if !wasConnected {
		events.Emit("info", "device.connected", "", map[string]interface{}{
			"topic": m.topic,
		})
		if onChange != nil {
			onChange(true)
		}
	}
}

// Run checks the heartbeat every interval until ctx is done.
func (m *StatusMonitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *StatusMonitor) checkHealth() {
	m.mu.Lock()
	if !m.state.Connected {
		m.mu.Unlock()
		return
	}

	timeout := time.Duration(float64(m.heartbeat) * m.tolerance)
	lastSeen := m.state.LastSeen
	if m.now().Sub(lastSeen) <= timeout {
		m.mu.Unlock()
		return
	}
	m.state.Connected = false
	onChange := m.onChange
	m.mu.Unlock()

	events.Emit("warning", "device.disconnected", "heartbeat timeout", map[string]interface{}{
		"topic":       m.topic,
		"last_seen":   lastSeen.Format(time.RFC3339),
		"timeout_sec": timeout.Seconds(),
	})
	if onChange != nil {
		onChange(false)
	}
}

// Status returns a copy of the current controller status.
func (m *StatusMonitor) Status() ControllerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
