package mqtt

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the Paho MQTT client used to reach the lock controller.
type Client struct {
	client    paho.Client
	brokerURL string
	mu        sync.Mutex

	hooksMu   sync.Mutex
	onConnect []func()
}

// ClientConfig holds connection settings for NewClient.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// BrokerURL returns the broker URL: MQTT_URL, then fallback, then localhost.
func BrokerURL(fallback string) string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	if fallback != "" {
		return fallback
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{brokerURL: BrokerURL(cfg.BrokerURL)}

	opts := paho.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) { c.runOnConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

// OnConnect registers fn to run after every (re)connect. Subscriptions are
// not persisted by the broker for clean sessions, so this is where they are restored.
func (c *Client) OnConnect(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Client) runOnConnect() {
	c.hooksMu.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		go fn()
	}
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish sends payload at QoS 1 and waits for the broker acknowledgement
// or for ctx to end, whichever comes first.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return &PublishTimeoutError{Topic: topic, Err: ctx.Err()}
	}
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Broker returns the broker URL this client was built for.
func (c *Client) Broker() string {
	return c.brokerURL
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates the broker did not acknowledge a publish in time.
type PublishTimeoutError struct {
	Topic string
	Err   error
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish not acknowledged: " + e.Topic + ": " + e.Err.Error()
}

func (e *PublishTimeoutError) Unwrap() error {
	return e.Err
}

// Start connects once, logging instead of failing.
// Returns true if connected. Paho keeps retrying in the background either way.
func (c *Client) Start() bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.brokerURL, err)
		return false
	}
	log.Printf("mqtt: connected to %s", c.brokerURL)
	return true
}
