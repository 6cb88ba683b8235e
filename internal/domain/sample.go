package domain

import (
	"fmt"
	"math"
	"time"
)

// Sample is one 3-axis accelerometer reading. Device is empty on the producer
// and set by the collector to the remote peer that sent the record.
type Sample struct {
	Device    string    `msgpack:"device" json:"device,omitempty"`
	Seq       uint64    `msgpack:"seq" json:"seq"`
	Timestamp time.Time `msgpack:"ts" json:"ts"`
	X         float64   `msgpack:"x" json:"x"`
	Y         float64   `msgpack:"y" json:"y"`
	Z         float64   `msgpack:"z" json:"z"`
}

// Display renders the reading rounded to two decimals for human-facing output.
func (s Sample) Display() string {
	return fmt.Sprintf("X: %.2f Y: %.2f Z: %.2f", s.X, s.Y, s.Z)
}

// Finite reports whether every axis holds a finite value.
func (s Sample) Finite() bool {
	for _, v := range [...]float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
