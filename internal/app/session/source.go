package session

import (
	"fmt"
	"time"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// DefaultInterval is the accelerometer update interval.
const DefaultInterval = 100 * time.Millisecond

// Source turns sensor callbacks into Samples delivered on the loop. Start and
// Stop must be called on the loop.
type Source struct {
	loop   *Loop
	sensor ports.Sensor
	now    func() time.Time

	sub ports.Subscription
	gen uint64
	seq uint64
}

func NewSource(loop *Loop, sensor ports.Sensor) *Source {
	return &Source{loop: loop, sensor: sensor, now: time.Now}
}

// Start subscribes to the sensor, replacing any running subscription. A
// non-positive interval selects DefaultInterval. onStopped, if set, is called
// on the loop when the sensor ends the subscription by itself.
func (s *Source) Start(interval time.Duration, onSample func(domain.Sample), onStopped func(error)) error {
	s.Stop()
	if interval <= 0 {
		interval = DefaultInterval
	}
	if s.sensor == nil || !s.sensor.Available() {
		return ErrSensorUnavailable
	}

	s.gen++
	gen := s.gen
	sub, err := s.sensor.Subscribe(interval, func(x, y, z float64) {
		ts := s.now()
		s.loop.Post(func() {
			if gen != s.gen || s.sub == nil {
				return
			}
			s.seq++
			onSample(domain.Sample{Seq: s.seq, Timestamp: ts, X: x, Y: y, Z: z})
		})
	})
	if err != nil {
		s.gen++
		return fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	s.sub = sub
	if stoppable, ok := sub.(ports.StoppableSubscription); ok && onStopped != nil {
		go s.watch(gen, stoppable, onStopped)
	}
	return nil
}

func (s *Source) watch(gen uint64, sub ports.StoppableSubscription, onStopped func(error)) {
	<-sub.Done()
	err := sub.Err()
	if err == nil {
		return
	}
	s.loop.Post(func() {
		if gen != s.gen || s.sub == nil {
			return
		}
		s.Stop()
		onStopped(fmt.Errorf("%w: %v", ErrSensorUnavailable, err))
	})
}

// Stop cancels the subscription. Samples already queued on the loop are dropped.
func (s *Source) Stop() {
	if s.sub == nil {
		return
	}
	s.sub.Cancel()
	s.sub = nil
	s.gen++
}

// Active reports whether a subscription is running.
func (s *Source) Active() bool { return s.sub != nil }
