package session

import (
	"errors"

	"github.com/gangulwar/rollX/internal/domain"
)

var (
	// ErrInvalidEndpoint is returned synchronously for an unusable host/port.
	ErrInvalidEndpoint = domain.ErrInvalidEndpoint
	// ErrInvalidPort is returned when the port text is not an integer in 1..65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrSensorUnavailable is reported when sampling cannot start.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrSessionClosed is returned by Connect after Shutdown.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotReady is returned for writes attempted outside StateReady.
	ErrNotReady = errors.New("connection not ready")
)

// TransportError carries a Waiting or Failed notification's reason.
type TransportError struct {
	State State
	Err   error
}

func (e *TransportError) Error() string {
	msg := "transport " + e.State.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// SendError reports a single failed write. The stream keeps running.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return "send failed"
	}
	return "send failed: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }
