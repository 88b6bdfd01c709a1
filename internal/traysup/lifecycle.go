package traysup

// State tracks the tray subprocess lifecycle. All transitions happen under
// the supervisor's lock; every operation checks the current state before
// touching the process or its pipes.
//
//	NotStarted -> Starting -> Ready -> ShuttingDown -> Stopped
//
// Crashed is reachable from Starting, Ready and ShuttingDown when the event
// pipe closes or the process exits outside an orderly Stop.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateShuttingDown
	StateStopped
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}
