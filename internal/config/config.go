package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the device image installs lockbox.yaml.
const DefaultPath = "/etc/lockbox/lockbox.yaml"

// Actuator driver names.
const (
	DriverGPIO = "gpio"
	DriverMQTT = "mqtt"
	DriverNop  = "nop"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type LockboxConfig struct {
	Version int `yaml:"version" validate:"eq=1"`
	Device  struct {
		ID   string `yaml:"id" validate:"required"`
		Name string `yaml:"name"`
	} `yaml:"device"`
	Network struct {
		HTTPPort int `yaml:"http_port" validate:"gte=0,lte=65535"`
	} `yaml:"network"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`
	Alerts struct {
		WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	} `yaml:"alerts"`
}

// ActuatorConfig selects and configures the lock driver.
type ActuatorConfig struct {
	Driver  string        `yaml:"driver" validate:"required,oneof=gpio mqtt nop"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// GPIOConfig drives a relay or solenoid wired to a sysfs GPIO line.
type GPIOConfig struct {
	// Pin is nil when unset. Line 0 is valid.
	Pin       *int          `yaml:"pin" validate:"omitempty,gte=0"`
	ActiveLow bool          `yaml:"active_low"`
	Pulse     time.Duration `yaml:"pulse" validate:"gte=0"`
	SysfsRoot string        `yaml:"sysfs_root"`
}

// MQTTConfig points at a networked lock controller.
type MQTTConfig struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	CommandTopic string `yaml:"command_topic"`
	StatusTopic  string `yaml:"status_topic"`
	HeartbeatSec int    `yaml:"heartbeat_sec" validate:"gte=0"`
}

// HTTPPort returns the configured HTTP port, defaulting to 80 if not set.
func (c *LockboxConfig) HTTPPort() int {
	if c.Network.HTTPPort == 0 {
		return 80
	}
	return c.Network.HTTPPort
}

// DeviceName returns the display name, falling back to the device id.
func (c *LockboxConfig) DeviceName() string {
	if c.Device.Name == "" {
		return c.Device.ID
	}
	return c.Device.Name
}

// ActuationTimeout bounds a single actuation attempt. Defaults to 5s.
func (a *ActuatorConfig) ActuationTimeout() time.Duration {
	if a.Timeout == 0 {
		return 5 * time.Second
	}
	return a.Timeout
}

// PulseDuration is how long the solenoid stays energized. Defaults to 1s.
func (g *GPIOConfig) PulseDuration() time.Duration {
	if g.Pulse == 0 {
		return time.Second
	}
	return g.Pulse
}

// Line returns the configured GPIO line, or -1 when none is set.
func (g *GPIOConfig) Line() int {
	if g.Pin == nil {
		return -1
	}
	return *g.Pin
}

func (g *GPIOConfig) Root() string {
	if g.SysfsRoot == "" {
		return "/sys/class/gpio"
	}
	return g.SysfsRoot
}

func (m *MQTTConfig) Command() string {
	if m.CommandTopic == "" {
		return "lockbox/1/cmd"
	}
	return m.CommandTopic
}

func (m *MQTTConfig) Status() string {
	if m.StatusTopic == "" {
		return "lockbox/1/status"
	}
	return m.StatusTopic
}

// Heartbeat is the expected status interval of the lock controller. Defaults to 30s.
func (m *MQTTConfig) Heartbeat() time.Duration {
	if m.HeartbeatSec == 0 {
		return 30 * time.Second
	}
	return time.Duration(m.HeartbeatSec) * time.Second
}

// Path returns the config file path from LOCKBOX_CONFIG, or DefaultPath.
func Path() string {
	if p := os.Getenv("LOCKBOX_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

func LoadConfig(path string) (*LockboxConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes and validates a lockbox.yaml document.
func Parse(b []byte) (*LockboxConfig, error) {
	var cfg LockboxConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported lockbox.yaml version: %d", cfg.Version)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and driver-specific requirements.
func (c *LockboxConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid lockbox.yaml: %w", err)
	}
	if c.Actuator.Driver != DriverGPIO {
		return nil
	}
	a := &c.Actuator
	if a.GPIO.Pin == nil {
		return fmt.Errorf("invalid lockbox.yaml: actuator.gpio.pin is required for the gpio driver")
	}
	if pulse, timeout := a.GPIO.PulseDuration(), a.ActuationTimeout(); pulse >= timeout {
		return fmt.Errorf("invalid lockbox.yaml: actuator.gpio.pulse (%s) must be shorter than actuator.timeout (%s)", pulse, timeout)
	}
	return nil
}
