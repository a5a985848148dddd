package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// queueSize bounds how many events may wait for the store. Past that they
// are dropped, the same way a slow subscriber misses broadcasts.
const queueSize = 256

type queued struct {
	ts time.Time
	e  Event
}

var (
	queue      = make(chan queued, queueSize)
	writerOnce sync.Once
	pending    atomic.Int64
	dropped    atomic.Int64
)

// persist hands the event to the store writer without waiting on it.
func persist(ts time.Time, e Event) {
	storeMu.RLock()
	s := store
	storeMu.RUnlock()
	if s == nil {
		return
	}

	writerOnce.Do(func() { go writer() })

	pending.Add(1)
	select {
	case queue <- queued{ts: ts, e: e}:
	default:
		pending.Add(-1)
		dropped.Add(1)
	}
}

func writer() {
	for q := range queue {
		write(q)
		pending.Add(-1)
	}
}

func write(q queued) {
	storeMu.RLock()
	s := store
	logged := storeErrorLog
	storeMu.RUnlock()

	if s == nil {
		return
	}

	e := q.e
	err := s.Append(q.ts, e.Level, e.Name, e.Message, e.Fields, e.BootID)
	if err == nil || logged {
		return
	}

	storeMu.Lock()
	if storeErrorLog {
		storeMu.Unlock()
		return
	}
	storeErrorLog = true
	storeMu.Unlock()

	// Added straight to the buffer so a failing store cannot recurse through Emit.
	buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "event store append failed",
		BootID:    e.BootID,
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

// Flush waits up to timeout for queued events to reach the store. It reports
// whether the queue drained.
func Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for pending.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// Dropped returns how many events were not persisted because the store
// writer had fallen behind.
func Dropped() int64 {
	return dropped.Load()
}

// Pending returns how many events are waiting for the store writer.
func Pending() int64 {
	return pending.Load()
}
