package ports

import "github.com/gangulwar/rollX/internal/domain"

// TransportState is the link-level state reported by a Connection.
type TransportState int

const (
	TransportSetup TransportState = iota
	TransportPreparing
	TransportReady
	TransportWaiting
	TransportFailed
	TransportCancelled
)

func (s TransportState) String() string {
	switch s {
	case TransportSetup:
		return "setup"
	case TransportPreparing:
		return "preparing"
	case TransportReady:
		return "ready"
	case TransportWaiting:
		return "waiting"
	case TransportFailed:
		return "failed"
	case TransportCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TransportEvent is one state notification. Err carries the reason for
// Waiting and Failed.
type TransportEvent struct {
	State TransportState
	Err   error
}

// Transport opens outbound connections. Open must not block.
type Transport interface {
	Open(ep domain.Endpoint) Connection
}

// Connection is a single outbound stream. State notifications are delivered
// in emission order to the handler registered with OnStateChange, from a
// goroutine owned by the connection. Send never blocks; done is invoked once
// with the write outcome.
type Connection interface {
	OnStateChange(handler func(TransportEvent))
	Start()
	Send(p []byte, done func(error))
	Restart()
	Cancel()
}
