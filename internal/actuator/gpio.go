package actuator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ncuskey/solid-couscous/internal/config"
)

// GPIO pulses a relay or solenoid through the sysfs GPIO interface.
// The line is energized for the pulse duration and then released, so the
// coil is never left powered.
type GPIO struct {
	root      string
	pin       int
	activeLow bool
	pulse     time.Duration
	wait      func(ctx context.Context, d time.Duration) error
}

func NewGPIO(cfg config.GPIOConfig) *GPIO {
	return &GPIO{
		root:      cfg.Root(),
		pin:       cfg.Line(),
		activeLow: cfg.ActiveLow,
		pulse:     cfg.PulseDuration(),
		wait:      sleepCtx,
	}
}

func (g *GPIO) Name() string { return config.DriverGPIO }

func (g *GPIO) pinDir() string {
	return filepath.Join(g.root, "gpio"+strconv.Itoa(g.pin))
}

func (g *GPIO) level(on bool) string {
	if on != g.activeLow {
		return "1"
	}
	return "0"
}

// Unlock energizes the line, reads it back to confirm, holds for the pulse
// and de-energizes. The line is always released before returning.
func (g *GPIO) Unlock(ctx context.Context) (err error) {
	if err := g.export(); err != nil {
		return err
	}
	if err := g.write("direction", "out"); err != nil {
		return err
	}

	if err := g.write("value", g.level(true)); err != nil {
		return err
	}
	defer func() {
		if relErr := g.write("value", g.level(false)); relErr != nil && err == nil {
			err = relErr
		}
	}()

	got, err := g.read("value")
	if err != nil {
		return err
	}
	if got != g.level(true) {
		return fmt.Errorf("gpio%d: readback %q after energize, want %q", g.pin, got, g.level(true))
	}

	return g.wait(ctx, g.pulse)
}

func (g *GPIO) export() error {
	if _, err := os.Stat(g.pinDir()); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("gpio%d: %w", g.pin, err)
	}

	if err := os.WriteFile(filepath.Join(g.root, "export"), []byte(strconv.Itoa(g.pin)), 0o200); err != nil {
		return fmt.Errorf("gpio%d: export: %w", g.pin, err)
	}
	if _, err := os.Stat(g.pinDir()); err != nil {
		return fmt.Errorf("gpio%d: not present after export: %w", g.pin, err)
	}
	return nil
}

func (g *GPIO) write(attr, value string) error {
	path := filepath.Join(g.pinDir(), attr)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("gpio%d: write %s: %w", g.pin, attr, err)
	}
	return nil
}

func (g *GPIO) read(attr string) (string, error) {
	b, err := os.ReadFile(filepath.Join(g.pinDir(), attr))
	if err != nil {
		return "", fmt.Errorf("gpio%d: read %s: %w", g.pin, attr, err)
	}
	return strings.TrimSpace(string(b)), nil
}
