package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Open(ep domain.Endpoint) ports.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &fakeConn{ep: ep}
	t.conns = append(t.conns, c)
	return c
}

func (t *fakeTransport) opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func (t *fakeTransport) live() int {
	t.mu.Lock()
	conns := append([]*fakeConn(nil), t.conns...)
	t.mu.Unlock()

	n := 0
	for _, c := range conns {
		if !c.isCancelled() {
			n++
		}
	}
	return n
}

type fakeConn struct {
	mu        sync.Mutex
	ep        domain.Endpoint
	handler   func(ports.TransportEvent)
	started   bool
	cancelled bool
	restarts  int
	writes    []string
	failNext  int
}

func (c *fakeConn) OnStateChange(h func(ports.TransportEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *fakeConn) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

func (c *fakeConn) Send(p []byte, done func(error)) {
	c.mu.Lock()
	c.writes = append(c.writes, string(p))
	fail := c.failNext > 0
	if fail {
		c.failNext--
	}
	c.mu.Unlock()

	if fail {
		done(errBrokenPipe)
		return
	}
	done(nil)
}

func (c *fakeConn) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
}

func (c *fakeConn) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

func (c *fakeConn) emit(state ports.TransportState, err error) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(ports.TransportEvent{State: state, Err: err})
}

func (c *fakeConn) failSends(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *fakeConn) restartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

func (c *fakeConn) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *fakeConn) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

type fakeSensor struct {
	mu          sync.Mutex
	unavailable bool
	subs        []*fakeSub
}

type fakeSub struct {
	sensor    *fakeSensor
	interval  time.Duration
	handler   func(x, y, z float64)
	cancelled bool
	err       error
	done      chan struct{}
}

func (s *fakeSensor) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable
}

func (s *fakeSensor) Subscribe(interval time.Duration, h func(x, y, z float64)) (ports.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &fakeSub{sensor: s, interval: interval, handler: h, done: make(chan struct{})}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (sub *fakeSub) Cancel() {
	sub.sensor.mu.Lock()
	defer sub.sensor.mu.Unlock()
	sub.stopLocked(nil)
}

func (sub *fakeSub) stopLocked(err error) {
	if sub.cancelled {
		return
	}
	sub.cancelled = true
	sub.err = err
	close(sub.done)
}

func (sub *fakeSub) Done() <-chan struct{} { return sub.done }

func (sub *fakeSub) Err() error {
	sub.sensor.mu.Lock()
	defer sub.sensor.mu.Unlock()
	return sub.err
}

// fail ends every live subscription with err, the way a lost remote sensor does.
func (s *fakeSensor) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sub.stopLocked(err)
	}
}

// tick fires every live subscription, the way a timer would.
func (s *fakeSensor) tick(x, y, z float64) {
	s.mu.Lock()
	var handlers []func(x, y, z float64)
	for _, sub := range s.subs {
		if !sub.cancelled {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(x, y, z)
	}
}

func (s *fakeSensor) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if !sub.cancelled {
			n++
		}
	}
	return n
}

func (s *fakeSensor) lastInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return 0
	}
	return s.subs[len(s.subs)-1].interval
}

type recordingObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errors   []string
}

func newRecordingObs() *recordingObs {
	return &recordingObs{counters: map[string]float64{}}
}

func (o *recordingObs) LogInfo(string, ...ports.Field) {}
func (o *recordingObs) LogError(msg string, _ error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, msg)
}
func (o *recordingObs) LogCritical(string, error, ...ports.Field) {}
func (o *recordingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}
func (o *recordingObs) ObserveLatency(string, float64)                    {}
func (o *recordingObs) SetGauge(string, float64)                          {}
func (o *recordingObs) RecordDLQ(ports.WALEntryID, *domain.Sample, error) {}

func (o *recordingObs) counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}
