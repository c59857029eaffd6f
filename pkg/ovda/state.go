package ovda

import "fmt"

// ComponentState mirrors the hardware component's own reported state.
// It is advanced only on confirmed state-reached notifications, never
// optimistically on command submission.
type ComponentState int

const (
	StateUnloaded ComponentState = iota
	StateLoaded
	StateIdle
	StateExecuting
	StatePaused
	StateInvalid
	StateTerminated
)

func (s ComponentState) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateLoaded:
		return "Loaded"
	case StateIdle:
		return "Idle"
	case StateExecuting:
		return "Executing"
	case StatePaused:
		return "Paused"
	case StateInvalid:
		return "Invalid"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("ComponentState(%d)", int(s))
	}
}

// Transition describes intent in flight. Exactly one is active at any
// time; None means the session is quiescent.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionInitializing
	TransitionFlushing
	TransitionResetting
	TransitionDestroying
	TransitionErroring
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "None"
	case TransitionInitializing:
		return "Initializing"
	case TransitionFlushing:
		return "Flushing"
	case TransitionResetting:
		return "Resetting"
	case TransitionDestroying:
		return "Destroying"
	case TransitionErroring:
		return "Erroring"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}
