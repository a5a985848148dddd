package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var buffer = NewRingBuffer(256)

// Store persists emitted events. *postgres.Client implements it.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, bootID string) error
}

var (
	store         Store
	storeMu       sync.RWMutex
	storeErrorLog bool

	outMu  sync.Mutex
	output io.Writer = os.Stdout

	bootID     atomic.Value // string
	totalCount atomic.Int64
)

// SetStore sets the backend used to persist events. Nil disables persistence.
func SetStore(s Store) {
	storeMu.Lock()
	store = s
	storeErrorLog = false
	storeMu.Unlock()
}

// SetOutput sets where event lines are written. Nil discards them.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if w == nil {
		w = io.Discard
	}
	output = w
}

// SetBootID stamps every subsequent event with the id of this process run.
func SetBootID(id string) {
	bootID.Store(id)
}

// BootID returns the id set by SetBootID.
func BootID() string {
	id, _ := bootID.Load().(string)
	return id
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	BootID    string                 `json:"boot_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit validates, records and fans out a single event. The returned bytes are
// the JSON line that was written to the output.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		BootID:    BootID(),
		Fields:    fields,
	}

	buffer.Add(e)
	totalCount.Add(1)
	broadcast(e)
	persist(ts, e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outMu.Lock()
	_, _ = output.Write(append(b, '\n'))
	outMu.Unlock()

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return totalCount.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
