package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ncuskey/solid-couscous/internal/actuator"
	"github.com/ncuskey/solid-couscous/internal/api"
	"github.com/ncuskey/solid-couscous/internal/config"
	"github.com/ncuskey/solid-couscous/internal/events"
	"github.com/ncuskey/solid-couscous/internal/lockbox"
	"github.com/ncuskey/solid-couscous/internal/mqtt"
	"github.com/ncuskey/solid-couscous/internal/version"
)

const (
	alertInterval  = 10 * time.Second
	mqttPollPeriod = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("lockbox: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	bootID := uuid.NewString()
	events.SetBootID(bootID)
	api.InitAuth(secrets)
	api.InitTLS()
	alerter := api.NewAlerter(cfg.Alerts.WebhookURL, cfg.DeviceName(), bootID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		client  *mqtt.Client
		monitor *mqtt.StatusMonitor
	)
	if cfg.Actuator.Driver == config.DriverMQTT {
		client, monitor = connectController(cfg, secrets, alerter)
		defer client.Disconnect()
	}

	driver, err := actuator.New(cfg.Actuator, cfg.Device.ID, client)
	if err != nil {
		return err
	}
	api.SetActuatorReady(true)

	latch := lockbox.NewLatch(driver, cfg.Actuator.ActuationTimeout())
	latch.OnFault(alerter.ActuationFault)
	box := lockbox.New(latch)

	audit := &auditStore{deviceID: cfg.Device.ID}
	defer audit.Close()

	opts := api.Options{
		Box:        box,
		DeviceName: cfg.DeviceName(),
		Controller: monitor,
	}
	if cfg.Postgres.Enabled {
		opts.Audit = audit
	}
	srv, err := api.NewServer(opts)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "lockbox starting", map[string]interface{}{
		"device":   cfg.Device.ID,
		"driver":   driver.Name(),
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"port":     cfg.HTTPPort(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTPPort()) })
	g.Go(func() error { return alerter.Run(gctx, alertInterval) })
	if cfg.Postgres.Enabled {
		g.Go(func() error { return audit.Run(gctx) })
	}
	if client != nil {
		g.Go(func() error { return watchBroker(gctx, client) })
		g.Go(func() error { return monitor.Run(gctx, cfg.Actuator.MQTT.Heartbeat()/2) })
	}

	err = g.Wait()

	snap := box.Snapshot()
	events.Emit("info", "system.shutdown", "lockbox stopping", map[string]interface{}{
		"solved": len(snap.Solved),
		"lock":   string(snap.Lock),
	})
	return err
}

// connectController sets up the broker link and the controller heartbeat.
// A broker that is down at boot is not fatal; paho keeps retrying.
func connectController(cfg *config.LockboxConfig, secrets *config.Secrets, alerter *api.Alerter) (*mqtt.Client, *mqtt.StatusMonitor) {
	m := cfg.Actuator.MQTT
	clientID := m.ClientID
	if clientID == "" {
		clientID = "lockbox-" + cfg.Device.ID
	}

	client := mqtt.NewClient(mqtt.ClientConfig{
		BrokerURL: m.URL,
		ClientID:  clientID,
		Username:  m.Username,
		Password:  secrets.MQTTPassword,
	})

	monitor := mqtt.NewStatusMonitor(client, m.Status(), m.Heartbeat(), 2.0)
	monitor.OnChange(func(connected bool) {
		alerter.Track(api.AlertControllerLost, connected)
	})
	client.OnConnect(func() {
		if err := monitor.Subscribe(); err != nil {
			log.Printf("mqtt: status subscribe failed: %v", err)
		}
	})

	api.SetMQTTState(client.Start(), false)
	return client, monitor
}

// watchBroker mirrors broker connectivity into readiness.
func watchBroker(ctx context.Context, client *mqtt.Client) error {
	ticker := time.NewTicker(mqttPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			api.SetMQTTState(client.IsConnected(), false)
		}
	}
}
