package reader

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	// StateError is entered while transient read failures are being retried.
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
