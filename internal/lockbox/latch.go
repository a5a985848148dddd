package lockbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ncuskey/solid-couscous/internal/actuator"
	"github.com/ncuskey/solid-couscous/internal/events"
)

// ErrActuationFault wraps any driver failure during release. It is terminal:
// the latch never drives the hardware again in this process.
var ErrActuationFault = errors.New("lock actuation fault")

// Latch owns the lock output. It can be released once and never relocked.
type Latch struct {
	mu         sync.Mutex
	driver     actuator.Driver
	timeout    time.Duration
	attempted  bool
	state      LockState
	fault      error
	releasedAt time.Time
	onFault    func(err error)
	now        func() time.Time
}

// NewLatch returns a locked latch. timeout bounds the single driver call.
func NewLatch(driver actuator.Driver, timeout time.Duration) *Latch {
	return &Latch{
		driver:  driver,
		timeout: timeout,
		state:   Locked,
		now:     time.Now,
	}
}

// OnFault registers a callback run once if the release fails.
func (l *Latch) OnFault(fn func(err error)) {
	l.mu.Lock()
	l.onFault = fn
	l.mu.Unlock()
}

// Release drives the lock open on the first call and is a no-op afterwards.
// fired reports whether this call touched the hardware. A driver failure is
// returned wrapped in ErrActuationFault and leaves the latch locked for good.
func (l *Latch) Release(ctx context.Context) (fired bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attempted {
		return false, nil
	}
	l.attempted = true

	// The pulse must not be cut short because the requesting client went away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	start := l.now()
	if err := l.driver.Unlock(ctx); err != nil {
		l.fault = fmt.Errorf("%w: %s driver: %v", ErrActuationFault, l.driver.Name(), err)
		events.Emit("error", "lock.fault", "lock release could not be confirmed", map[string]interface{}{
			"driver": l.driver.Name(),
			"error":  err.Error(),
		})
		if l.onFault != nil {
			l.onFault(l.fault)
		}
		return true, l.fault
	}

	l.state = Unlocked
	l.releasedAt = l.now()
	events.Emit("info", "lock.released", "", map[string]interface{}{
		"driver":      l.driver.Name(),
		"duration_ms": l.releasedAt.Sub(start).Milliseconds(),
	})
	return true, nil
}

// State returns the current lock state.
func (l *Latch) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Fault returns the actuation fault, if release failed.
func (l *Latch) Fault() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fault
}

// ReleasedAt returns when the lock opened, or the zero time.
func (l *Latch) ReleasedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releasedAt
}

// DriverName returns the name of the configured driver.
func (l *Latch) DriverName() string {
	return l.driver.Name()
}
