package ingestion

import "fmt"

// State is the position of a run in the pipeline.
type State string

const (
	StateCreated    State = "created"
	StateValidating State = "validating"
	StateExtracting State = "extracting"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StateStoring    State = "storing"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// next lists the forward transition of each non-terminal state. Every
// non-terminal state may also move to StateFailed.
var next = map[State]State{
	StateCreated:    StateValidating,
	StateValidating: StateExtracting,
	StateExtracting: StateChunking,
	StateChunking:   StateEmbedding,
	StateEmbedding:  StateStoring,
	StateStoring:    StateFinalizing,
	StateFinalizing: StateCompleted,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether a run may move from s to to.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[s] == to
}

// transition moves *s to to or returns ErrInvalidTransition.
func transition(s *State, to State) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *s, to)
	}
	*s = to
	return nil
}
