// Package actuator drives the physical lock output.
//
// Drivers perform exactly one unlock attempt per call and never retry. Callers
// bound the attempt with ctx and decide what a failure means.
package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ncuskey/solid-couscous/internal/config"
	"github.com/ncuskey/solid-couscous/internal/mqtt"
)

// Driver releases the lock.
type Driver interface {
	Name() string
	Unlock(ctx context.Context) error
}

// Nop is a driver for bench setups without hardware. It only logs.
type Nop struct{}

func (Nop) Name() string { return config.DriverNop }

func (Nop) Unlock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("actuator: nop driver would release the lock now")
	return nil
}

// New builds the driver selected in cfg. client is only used by the mqtt driver.
func New(cfg config.ActuatorConfig, deviceID string, client *mqtt.Client) (Driver, error) {
	switch cfg.Driver {
	case config.DriverGPIO:
		return NewGPIO(cfg.GPIO), nil
	case config.DriverMQTT:
		if client == nil {
			return nil, fmt.Errorf("mqtt driver requires an mqtt client")
		}
		return NewMQTT(client, cfg.MQTT.Command(), deviceID), nil
	case config.DriverNop:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown actuator driver: %q", cfg.Driver)
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
