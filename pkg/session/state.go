package session

import "time"

// State is Idle while no pipeline call is in flight and Processing otherwise.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

// StateChange represents a state transition event.
type StateChange struct {
	SessionID string
	FromState State
	ToState   State
	Timestamp time.Time
	InFlight  int64
}

// StateListener observes session state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(StateChange)

func (f StateListenerFunc) OnStateChange(ev StateChange) { f(ev) }
