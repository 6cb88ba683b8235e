package session

import (
	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// Machine owns at most one transport connection and drives State from the
// notifications that connection emits. All methods except Connect and
// Disconnect must be called on the machine's loop.
type Machine struct {
	loop      *Loop
	transport ports.Transport
	obs       ports.Observability

	state     State
	reason    error
	endpoint  domain.Endpoint
	conn      ports.Connection
	gen       uint64
	listeners []func(Transition)
}

func NewMachine(loop *Loop, transport ports.Transport, obs ports.Observability) *Machine {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Machine{
		loop:      loop,
		transport: transport,
		obs:       obs,
		state:     StateIdle,
	}
}

// Connect validates ep and starts a fresh attempt, retiring any previous
// connection first.
func (m *Machine) Connect(ep domain.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	var err error
	if !m.loop.Do(func() { err = m.connect(ep) }) {
		return ErrSessionClosed
	}
	return err
}

// Disconnect cancels the connection and returns to StateIdle. Safe from any state.
func (m *Machine) Disconnect() {
	m.loop.Do(m.disconnect)
}

func (m *Machine) State() State { return m.state }

// Reason is the error behind the current Waiting or Failed state.
func (m *Machine) Reason() error { return m.reason }

func (m *Machine) Endpoint() domain.Endpoint { return m.endpoint }

// Subscribe registers fn for every transition. Listeners run in
// registration order.
func (m *Machine) Subscribe(fn func(Transition)) {
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) connect(ep domain.Endpoint) error {
	if m.state == StateClosed {
		return ErrSessionClosed
	}
	if m.conn != nil || m.state != StateIdle {
		m.disconnect()
	}

	m.gen++
	gen := m.gen
	conn := m.transport.Open(ep)
	conn.OnStateChange(func(ev ports.TransportEvent) {
		m.loop.Post(func() { m.handle(gen, ev) })
	})
	m.conn = conn
	m.endpoint = ep

	m.transition(StateConnecting, nil)
	conn.Start()
	return nil
}

func (m *Machine) disconnect() {
	m.gen++
	conn := m.conn
	m.conn = nil

	// listeners stop sampling before the connection is released
	if m.state != StateIdle {
		m.transition(StateIdle, nil)
	}
	if conn != nil {
		conn.Cancel()
	}
	m.reason = nil
}

func (m *Machine) shutdown() {
	if m.state == StateClosed {
		return
	}
	m.disconnect()
	m.transition(StateClosed, nil)
}

func (m *Machine) handle(gen uint64, ev ports.TransportEvent) {
	if gen != m.gen || m.conn == nil {
		return
	}

	switch ev.State {
	case ports.TransportReady:
		if m.state != StateConnecting && m.state != StateWaiting {
			return
		}
		m.transition(StateReady, nil)

	case ports.TransportWaiting:
		if m.state != StateConnecting && m.state != StateReady && m.state != StateWaiting {
			return
		}
		m.transition(StateWaiting, &TransportError{State: StateWaiting, Err: ev.Err})
		m.conn.Restart()

	case ports.TransportFailed:
		if m.state != StateConnecting && m.state != StateReady && m.state != StateWaiting {
			return
		}
		conn := m.conn
		m.conn = nil
		m.gen++
		m.transition(StateFailed, &TransportError{State: StateFailed, Err: ev.Err})
		conn.Cancel()
	}
}

// write hands p to the active connection. done is called exactly once.
func (m *Machine) write(p []byte, done func(error)) {
	if m.state != StateReady || m.conn == nil {
		done(ErrNotReady)
		return
	}
	m.conn.Send(p, done)
}

func (m *Machine) transition(to State, reason error) {
	from := m.state
	m.state = to
	m.reason = reason

	m.obs.IncCounter("rollx_state_transitions_total", 1)
	m.obs.SetGauge("rollx_connection_state", float64(to))
	fields := []ports.Field{
		{Key: "from", Value: from.String()},
		{Key: "to", Value: to.String()},
		{Key: "endpoint", Value: m.endpoint.String()},
	}
	if reason != nil {
		m.obs.LogError("connection_state_changed", reason, fields...)
	} else {
		m.obs.LogInfo("connection_state_changed", fields...)
	}

	t := Transition{From: from, To: to, Reason: reason}
	for _, fn := range m.listeners {
		fn(t)
	}
}
