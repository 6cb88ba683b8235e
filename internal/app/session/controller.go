package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// Status is a point-in-time view of a controller. Readers get a copy and
// should expect it to lag the loop slightly.
type Status struct {
	SessionID  string         `json:"session_id,omitempty"`
	State      string         `json:"state"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Connected  bool           `json:"connected"`
	LastSample *domain.Sample `json:"last_sample,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
}

// Option customizes a Controller.
type Option func(*Controller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.interval = d
	}
}

// WithObservability plugs in logging and metrics.
func WithObservability(obs ports.Observability) Option {
	return func(c *Controller) {
		if obs != nil {
			c.obs = obs
		}
	}
}

// Controller is the entry point for a producer UI. It owns the loop, the
// connection machine, the sample source and the sender, and republishes
// their notifications as Status.
type Controller struct {
	loop     *Loop
	machine  *Machine
	source   *Source
	sender   *Sender
	obs      ports.Observability
	interval time.Duration

	// loop-owned
	status   Status
	watchers []func(Status)

	mu       sync.RWMutex
	snapshot Status

	stop      context.CancelFunc
	closeOnce sync.Once
}

// NewController wires the session components and starts the loop goroutine.
// Call Close to release it.
func NewController(transport ports.Transport, sensor ports.Sensor, opts ...Option) *Controller {
	c := &Controller{
		obs:      ports.NopObservability{},
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.loop = NewLoop()
	c.machine = NewMachine(c.loop, transport, c.obs)
	c.source = NewSource(c.loop, sensor)
	// Runs ahead of the sender so a sensor failure reported on Ready survives.
	c.machine.Subscribe(c.resetError)
	c.sender = NewSender(c.loop, c.machine, c.source, c.interval, c.obs)

	c.machine.Subscribe(c.onTransition)
	c.sender.OnSample(c.onSample)
	c.sender.OnError(c.setError)

	c.status = Status{State: StateIdle.String()}
	c.snapshot = c.status

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	go c.loop.Run(ctx)
	return c
}

// ParseEndpoint turns UI input into an Endpoint.
func ParseEndpoint(host, portText string) (domain.Endpoint, error) {
	port, err := strconv.ParseUint(strings.TrimSpace(portText), 10, 16)
	if err != nil || port == 0 {
		return domain.Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidPort, portText)
	}
	ep := domain.Endpoint{Host: strings.TrimSpace(host), Port: uint16(port)}
	if err := ep.Validate(); err != nil {
		return domain.Endpoint{}, err
	}
	return ep, nil
}

// Connect starts streaming to host:portText. Input errors are returned and
// recorded as LastError without touching the connection.
func (c *Controller) Connect(host, portText string) error {
	ep, err := ParseEndpoint(host, portText)
	if err != nil {
		c.loop.Do(func() { c.setError(err) })
		return err
	}

	if !c.loop.Do(func() { err = c.machine.connect(ep) }) {
		return ErrSessionClosed
	}
	if err != nil {
		c.loop.Do(func() { c.setError(err) })
	}
	return err
}

// Disconnect stops streaming and clears LastError. Safe from any state.
func (c *Controller) Disconnect() {
	c.loop.Do(func() {
		c.machine.disconnect()
		c.clearError()
	})
}

// Toggle disconnects a live session, otherwise connects.
func (c *Controller) Toggle(host, portText string) error {
	var live bool
	c.loop.Do(func() {
		switch c.machine.State() {
		case StateConnecting, StateReady, StateWaiting:
			live = true
		}
	})
	if live {
		c.Disconnect()
		return nil
	}
	return c.Connect(host, portText)
}

// Shutdown tears the session down into StateClosed.
func (c *Controller) Shutdown() {
	c.loop.Do(c.machine.shutdown)
}

// Close shuts down and stops the loop goroutine.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Shutdown()
		c.loop.Close()
		c.stop()
		<-c.loop.Done()
	})
}

// Status returns the latest published snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Watch registers fn to receive every status change. fn runs on the loop and
// must not call back into the controller.
func (c *Controller) Watch(fn func(Status)) {
	c.loop.Do(func() {
		c.watchers = append(c.watchers, fn)
	})
}

// resetError drops the previous session's error when a new attempt starts or
// the link comes up. It does not publish; onTransition does.
func (c *Controller) resetError(t Transition) {
	switch t.To {
	case StateConnecting, StateReady:
		c.status.LastError = ""
	}
}

func (c *Controller) onTransition(t Transition) {
	switch t.To {
	case StateConnecting:
		c.status.SessionID = uuid.NewString()
		c.status.Endpoint = c.machine.Endpoint().String()
		c.status.Connected = false
	case StateReady:
		c.status.Connected = true
	case StateWaiting:
		// connected keeps its last known value
	default:
		c.status.Connected = false
	}
	if t.Reason != nil {
		c.status.LastError = t.Reason.Error()
	}
	c.status.State = t.To.String()

	c.obs.LogInfo("session_status",
		ports.Field{Key: "session_id", Value: c.status.SessionID},
		ports.Field{Key: "state", Value: c.status.State},
		ports.Field{Key: "connected", Value: c.status.Connected})
	c.publish()
}

func (c *Controller) onSample(s domain.Sample) {
	c.status.LastSample = &s
	c.publish()
}

func (c *Controller) setError(err error) {
	c.status.LastError = err.Error()
	c.publish()
}

func (c *Controller) clearError() {
	if c.status.LastError == "" {
		return
	}
	c.status.LastError = ""
	c.publish()
}

func (c *Controller) publish() {
	st := c.status
	c.mu.Lock()
	c.snapshot = st
	c.mu.Unlock()

	for _, fn := range c.watchers {
		fn(st)
	}
}
