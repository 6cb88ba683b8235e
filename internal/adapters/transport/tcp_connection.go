package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

var (
	// ErrNotConnected is passed to Send completions while no link is up.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrSendBufferFull is passed to Send completions when the writer is behind.
	ErrSendBufferFull = errors.New("transport: send buffer full")
	// ErrConnectionClosed completes sends still queued when a link drops.
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// Config tunes outbound TCP connections.
type Config struct {
	DialTimeout   time.Duration   `yaml:"dial_timeout"`
	WriteTimeout  time.Duration   `yaml:"write_timeout"`
	SendBuffer    int             `yaml:"send_buffer"`
	RestartDelays []time.Duration `yaml:"restart_delays"`
}

func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if len(c.RestartDelays) == 0 {
		c.RestartDelays = []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}
	}
}

// TCPTransport opens raw TCP streams to a collector.
type TCPTransport struct {
	cfg    Config
	dialer *net.Dialer
	obs    ports.Observability
}

func NewTCPTransport(cfg Config, obs ports.Observability) *TCPTransport {
	cfg.ApplyDefaults()
	return &TCPTransport{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 15 * time.Second},
		obs:    obs,
	}
}

func (t *TCPTransport) Open(ep domain.Endpoint) ports.Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPConnection{
		endpoint: ep,
		cfg:      t.cfg,
		dialer:   t.dialer,
		obs:      t.obs,
		ctx:      ctx,
		cancel:   cancel,
	}
}

type outbound struct {
	payload []byte
	done    func(error)
}

type link struct {
	conn   net.Conn
	sendCh chan outbound
	ctx    context.Context
	cancel context.CancelFunc
}

// TCPConnection is one outbound stream. A dropped link is reported as
// Waiting and re-dialed on Restart after the configured delay schedule.
type TCPConnection struct {
	endpoint domain.Endpoint
	cfg      Config
	dialer   *net.Dialer
	obs      ports.Observability

	ctx    context.Context
	cancel context.CancelFunc

	emitMu  sync.Mutex
	handler func(ports.TransportEvent)

	mu         sync.Mutex
	link       *link
	attempts   int
	restarting bool
	started    bool
}

func (c *TCPConnection) OnStateChange(handler func(ports.TransportEvent)) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.handler = handler
}

// Start dials in the background.
func (c *TCPConnection) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.emit(ports.TransportEvent{State: ports.TransportPreparing})
	go c.dial()
}

// Restart drops the current link, waits for the next delay in the schedule
// and dials again. Calls made while a restart is pending are ignored.
func (c *TCPConnection) Restart() {
	c.mu.Lock()
	if c.restarting || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.restarting = true
	delay := c.nextDelay()
	l := c.link
	c.mu.Unlock()

	c.teardown(l)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.restarting = false
		c.mu.Unlock()

		c.emit(ports.TransportEvent{State: ports.TransportPreparing})
		c.dial()
	}()
}

// nextDelay walks the restart schedule, repeating its last entry. Caller holds c.mu.
func (c *TCPConnection) nextDelay() time.Duration {
	d := c.cfg.RestartDelays[min(c.attempts, len(c.cfg.RestartDelays)-1)]
	c.attempts++
	return d
}

// Cancel releases the connection for good.
func (c *TCPConnection) Cancel() {
	if c.ctx.Err() != nil {
		return
	}
	c.emit(ports.TransportEvent{State: ports.TransportCancelled})
	c.cancel()

	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	c.teardown(l)
}

// Send queues p for the writer goroutine. It never blocks.
func (c *TCPConnection) Send(p []byte, done func(error)) {
	c.mu.Lock()
	l := c.link
	if l == nil {
		c.mu.Unlock()
		done(ErrNotConnected)
		return
	}
	select {
	case l.sendCh <- outbound{payload: p, done: done}:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		done(ErrSendBufferFull)
	}
}

func (c *TCPConnection) dial() {
	conn, err := c.dialer.DialContext(c.ctx, "tcp", c.endpoint.String())
	if c.ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		if permanent(err) {
			c.emit(ports.TransportEvent{State: ports.TransportFailed, Err: err})
			return
		}
		c.emit(ports.TransportEvent{State: ports.TransportWaiting, Err: err})
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	l := &link{
		conn:   conn,
		sendCh: make(chan outbound, c.cfg.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return
	}
	c.link = l
	c.attempts = 0
	c.mu.Unlock()

	go c.writeLoop(l)
	go c.watchLoop(l)

	if c.obs != nil {
		c.obs.LogInfo("tcp_connected",
			ports.Field{Key: "endpoint", Value: c.endpoint.String()},
			ports.Field{Key: "local", Value: conn.LocalAddr().String()})
	}
	c.emit(ports.TransportEvent{State: ports.TransportReady})
}

// writeLoop is the only goroutine writing to l.conn, so records never interleave.
func (c *TCPConnection) writeLoop(l *link) {
	for {
		select {
		case <-l.ctx.Done():
			c.drain(l)
			return
		case item := <-l.sendCh:
			if c.cfg.WriteTimeout > 0 {
				_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			}
			_, err := l.conn.Write(item.payload)
			item.done(err)
		}
	}
}

// watchLoop reads and discards inbound bytes so a closed or reset peer is
// noticed even while nothing is being written.
func (c *TCPConnection) watchLoop(l *link) {
	buf := make([]byte, 512)
	for {
		if _, err := l.conn.Read(buf); err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = errors.New("connection closed by peer")
			}
			c.teardown(l)
			c.emit(ports.TransportEvent{State: ports.TransportWaiting, Err: fmt.Errorf("link lost: %w", err)})
			return
		}
	}
}

func (c *TCPConnection) drain(l *link) {
	for {
		select {
		case item := <-l.sendCh:
			item.done(ErrConnectionClosed)
		default:
			return
		}
	}
}

func (c *TCPConnection) teardown(l *link) {
	if l == nil {
		return
	}
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()

	l.cancel()
	_ = l.conn.Close()
}

func (c *TCPConnection) emit(ev ports.TransportEvent) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	if c.handler != nil {
		c.handler(ev)
	}
}

// permanent reports dial errors a retry cannot fix.
func permanent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return true
	}
	return false
}

var _ ports.Connection = (*TCPConnection)(nil)
var _ ports.Transport = (*TCPTransport)(nil)
