package session

// State is the lifecycle state of the producer's connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateWaiting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateWaiting:
		return "waiting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transition is delivered to machine subscribers on the loop. Reason is set
// when To is StateWaiting or StateFailed.
type Transition struct {
	From   State
	To     State
	Reason error
}
