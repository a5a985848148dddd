package lockbox

import (
	"context"
	"sync"
	"time"

	"github.com/ncuskey/solid-couscous/internal/events"
	"github.com/ncuskey/solid-couscous/internal/puzzle"
)

// Result classifies a single solve signal.
type Result string

const (
	ResultIgnored   Result = "ignored"
	ResultRecorded  Result = "recorded"
	ResultDuplicate Result = "duplicate"
)

// Outcome describes what one call to Solve did.
type Outcome struct {
	Result   Result
	Identity puzzle.Identity
	Solved   int
	Unlocked bool
	Released bool  // this call drove the hardware
	Err      error // actuation fault, only when Released
}

// Snapshot is a read-only view of the box for status reporting.
type Snapshot struct {
	Solved     []puzzle.Identity `json:"solved"`
	Complete   bool              `json:"complete"`
	Lock       LockState         `json:"lock"`
	Fault      string            `json:"fault,omitempty"`
	ReleasedAt *time.Time        `json:"released_at,omitempty"`
}

// Box is the single owner of solve state and the only caller of Latch.Release.
type Box struct {
	mu     sync.Mutex
	solved *SolveState
	latch  *Latch
}

// New returns an empty box guarding latch.
func New(latch *Latch) *Box {
	return &Box{
		solved: NewSolveState(),
		latch:  latch,
	}
}

// Solve handles one solve signal carrying the raw puzzle parameter.
//
// Malformed parameters are ignored without touching state. For a valid
// identity the signal is recorded, completion is evaluated whether or not the
// signal was new, and the latch is released when every puzzle is in. All of
// it runs under one lock so concurrent signals cannot both miss or both
// claim the final release.
func (b *Box) Solve(ctx context.Context, raw string) Outcome {
	id, ok := puzzle.ParseNumber(raw)
	if !ok {
		events.Emit("debug", "solve.ignored", "invalid puzzle parameter", map[string]interface{}{
			"puzzle": raw,
		})
		return Outcome{Result: ResultIgnored}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := Outcome{Identity: id, Result: ResultDuplicate}
	if b.solved.Record(id) {
		out.Result = ResultRecorded
	}
	out.Solved = len(b.solved.Solved())

	name := "puzzle.duplicate"
	if out.Result == ResultRecorded {
		name = "puzzle.solved"
	}
	events.Emit("info", name, "", map[string]interface{}{
		"puzzle":   id.Number(),
		"identity": string(id),
		"solved":   out.Solved,
	})

	if b.solved.IsComplete() {
		out.Released, out.Err = b.latch.Release(ctx)
	}
	out.Unlocked = b.latch.State() == Unlocked
	return out
}

// Snapshot returns the current solve and lock state.
func (b *Box) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Solved:   b.solved.Solved(),
		Complete: b.solved.IsComplete(),
		Lock:     b.latch.State(),
	}
	if err := b.latch.Fault(); err != nil {
		s.Fault = err.Error()
	}
	if at := b.latch.ReleasedAt(); !at.IsZero() {
		s.ReleasedAt = &at
	}
	return s
}

// Latch returns the latch guarded by this box.
func (b *Box) Latch() *Latch {
	return b.latch
}
