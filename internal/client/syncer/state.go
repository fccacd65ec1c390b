package syncer

import "time"

// State is what the engine is doing right now. Pushing and Pulling never
// overlap: both run under the engine's operation lock.
type State int

const (
	Idle State = iota
	PendingDebounce
	Pushing
	Pulling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingDebounce:
		return "pending"
	case Pushing:
		return "pushing"
	case Pulling:
		return "pulling"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the engine for display.
type Status struct {
	State     State
	Online    bool
	Pending   bool
	LastError string
	LastPush  time.Time
	LastPull  time.Time
}

// Syncing reports whether a push or pull is in flight.
func (s Status) Syncing() bool {
	return s.State == Pushing || s.State == Pulling
}
