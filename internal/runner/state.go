package runner

// State is the lifecycle state of a Runner.
type State int32

const (
	// StateCreated is the state before Start.
	StateCreated State = iota
	// StateStarting means probes are running and the host has not yet sent
	// the start request.
	StateStarting
	// StateStarted means the host started the script.
	StateStarted
	// StateStopping means a graceful shutdown is in progress.
	StateStopping
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool { return s == StateStopped }
