// Package tab implements the Tab state machine and its three variants
// (Base, Behavior, Crawler), per spec §4.6.
package tab

import "github.com/use-agent/autodriver/models"

// State is the closed enumeration of Tab lifecycle states.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateRunning
	StateReconnecting
	StateCrashed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateConnecting:
		return "Connecting"
	case StateRunning:
		return "Running"
	case StateReconnecting:
		return "Reconnecting"
	case StateCrashed:
		return "Crashed"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ClosedListener is notified exactly once when a Tab reaches Closed.
type ClosedListener func(models.TabClosedInfo)
