package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ncuskey/solid-couscous/internal/config"
)

// Publisher is the part of mqtt.Client the MQTT driver needs.
type Publisher interface {
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Command is the JSON body sent to the lock controller's command topic.
type Command struct {
	Action   string `json:"action"`
	DeviceID string `json:"device_id,omitempty"`
	Ts       string `json:"ts"`
}

// MQTT asks a networked lock controller to release. A broker PUBACK within
// the deadline is taken as confirmation.
type MQTT struct {
	pub      Publisher
	topic    string
	deviceID string
	now      func() time.Time
}

func NewMQTT(pub Publisher, topic, deviceID string) *MQTT {
	return &MQTT{
		pub:      pub,
		topic:    topic,
		deviceID: deviceID,
		now:      time.Now,
	}
}

func (m *MQTT) Name() string { return config.DriverMQTT }

func (m *MQTT) Unlock(ctx context.Context) error {
	if !m.pub.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	payload, err := json.Marshal(Command{
		Action:   "unlock",
		DeviceID: m.deviceID,
		Ts:       m.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal unlock command: %w", err)
	}

	if err := m.pub.Publish(ctx, m.topic, payload); err != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", m.topic, err)
	}
	return nil
}
