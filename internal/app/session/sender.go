package session

import (
	"time"

	"github.com/gangulwar/rollX/internal/adapters/wire"
	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// Sender streams samples while the machine is Ready. It runs entirely on the
// loop.
type Sender struct {
	loop     *Loop
	machine  *Machine
	source   *Source
	obs      ports.Observability
	interval time.Duration

	active   bool
	gen      uint64
	onSample []func(domain.Sample)
	onError  []func(error)
}

func NewSender(loop *Loop, machine *Machine, source *Source, interval time.Duration, obs ports.Observability) *Sender {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	s := &Sender{
		loop:     loop,
		machine:  machine,
		source:   source,
		obs:      obs,
		interval: interval,
	}
	machine.Subscribe(s.handleTransition)
	return s
}

// OnSample registers fn for every sample handed to the connection.
func (s *Sender) OnSample(fn func(domain.Sample)) {
	s.onSample = append(s.onSample, fn)
}

// OnError registers fn for sensor failures and send failures.
func (s *Sender) OnError(fn func(error)) {
	s.onError = append(s.onError, fn)
}

func (s *Sender) handleTransition(t Transition) {
	if t.To == StateReady {
		s.activate()
		return
	}
	s.deactivate()
}

func (s *Sender) activate() {
	s.gen++
	gen := s.gen
	s.active = true
	onSample := func(sample domain.Sample) { s.send(gen, sample) }
	onStopped := func(err error) { s.stopped(gen, err) }
	if err := s.source.Start(s.interval, onSample, onStopped); err != nil {
		s.active = false
		s.obs.LogError("sampling_start_failed", err)
		s.report(err)
	}
}

func (s *Sender) deactivate() {
	s.source.Stop()
	if s.active {
		s.active = false
		s.gen++
	}
}

// stopped handles a sensor that quit while the link is still up. The stream
// stays down until the next Ready.
func (s *Sender) stopped(gen uint64, err error) {
	if gen != s.gen || !s.active {
		return
	}
	s.active = false
	s.gen++
	s.obs.LogError("sampling_stopped", err)
	s.report(err)
}

func (s *Sender) send(gen uint64, sample domain.Sample) {
	if gen != s.gen || !s.active {
		return
	}
	for _, fn := range s.onSample {
		fn(sample)
	}

	s.machine.write(wire.Encode(sample), func(err error) {
		s.loop.Post(func() { s.completed(gen, err) })
	})
}

func (s *Sender) completed(gen uint64, err error) {
	if err == nil {
		s.obs.IncCounter("rollx_samples_sent_total", 1)
		return
	}
	s.obs.IncCounter("rollx_send_failures_total", 1)
	if gen != s.gen {
		return
	}
	sendErr := &SendError{Err: err}
	s.obs.LogError("sample_send_failed", sendErr)
	s.report(sendErr)
}

func (s *Sender) report(err error) {
	for _, fn := range s.onError {
		fn(err)
	}
}
