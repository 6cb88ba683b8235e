package sensor

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gangulwar/rollX/internal/ports"
)

// Simulated produces readings of a device lying flat and rocking gently,
// with gaussian noise on every axis. Values are in g.
type Simulated struct {
	mu        sync.Mutex
	rng       *rand.Rand
	Amplitude float64
	Period    time.Duration
	Noise     float64
}

func NewSimulated(seed uint64) *Simulated {
	return &Simulated{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Amplitude: 0.2,
		Period:    4 * time.Second,
		Noise:     0.01,
	}
}

func (s *Simulated) Available() bool { return true }

func (s *Simulated) Subscribe(interval time.Duration, handler func(x, y, z float64)) (ports.Subscription, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel)

	go func() {
		defer close(sub.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				x, y, z := s.Read(now.Sub(start))
				handler(x, y, z)
			}
		}
	}()
	return sub, nil
}

// Read returns the reading elapsed into the motion.
func (s *Simulated) Read(elapsed time.Duration) (x, y, z float64) {
	phase := 2 * math.Pi * elapsed.Seconds() / s.Period.Seconds()

	s.mu.Lock()
	defer s.mu.Unlock()
	x = s.Amplitude*math.Sin(phase) + s.rng.NormFloat64()*s.Noise
	y = s.Amplitude*math.Cos(phase)/2 + s.rng.NormFloat64()*s.Noise
	z = -1 + s.rng.NormFloat64()*s.Noise
	return x, y, z
}

type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	err    error // written before done is closed
}

func newSubscription(cancel context.CancelFunc) *subscription {
	return &subscription{cancel: cancel, done: make(chan struct{})}
}

// Cancel stops delivery. It does not wait for an in-flight handler call.
func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Done is closed once the producing goroutine has exited.
func (s *subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended on its own. It is nil while running
// and after Cancel.
func (s *subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

var (
	_ ports.Sensor                = (*Simulated)(nil)
	_ ports.StoppableSubscription = (*subscription)(nil)
)
