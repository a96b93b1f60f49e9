package acquisition

import (
	"fmt"
)

type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StatePreparing: "preparing",
	StateRunning:   "running",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
	StateFailed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
