package ports

import "time"

// Sensor is the accelerometer capability. Handlers passed to Subscribe are
// called from the sensor's own goroutine.
type Sensor interface {
	Available() bool
	Subscribe(interval time.Duration, handler func(x, y, z float64)) (Subscription, error)
}

// Subscription stops a running Subscribe. Cancel is safe to call more than once.
type Subscription interface {
	Cancel()
}

// StoppableSubscription is implemented by subscriptions that can end on their
// own, for example when a remote sensor cannot be reached. Done is closed once
// delivery has stopped; Err then reports why, or nil after Cancel.
type StoppableSubscription interface {
	Subscription
	Done() <-chan struct{}
	Err() error
}
