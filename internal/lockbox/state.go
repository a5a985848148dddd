package lockbox

import (
	"github.com/ncuskey/solid-couscous/internal/puzzle"
)

// LockState is the position of the physical lock as far as software knows.
type LockState string

const (
	Locked   LockState = "locked"
	Unlocked LockState = "unlocked"
)

// SolveState is the set of identities that have sent a solve signal.
// Members are only ever added. It is not safe for concurrent use on its own;
// Box serializes access.
type SolveState struct {
	solved map[puzzle.Identity]struct{}
}

func NewSolveState() *SolveState {
	return &SolveState{solved: make(map[puzzle.Identity]struct{})}
}

// Record marks id solved and reports whether this call changed the set.
func (s *SolveState) Record(id puzzle.Identity) bool {
	if !id.Valid() {
		return false
	}
	if _, ok := s.solved[id]; ok {
		return false
	}
	s.solved[id] = struct{}{}
	return true
}

// IsComplete reports whether every identity has been recorded.
func (s *SolveState) IsComplete() bool {
	return len(s.solved) == puzzle.Count()
}

// Solved returns the recorded identities in puzzle-number order.
func (s *SolveState) Solved() []puzzle.Identity {
	out := make([]puzzle.Identity, 0, len(s.solved))
	for _, p := range puzzle.All() {
		if _, ok := s.solved[p.Identity]; ok {
			out = append(out, p.Identity)
		}
	}
	return out
}
