package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"

	"github.com/gangulwar/rollX"
)

func main() {
	flow, err := rollx.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := rollx.NewChannelSink("tilt", 32)
	defer closeBatches()

	go tiltWorker(batches)

	if err := flow.Run(ctx, rollx.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

// tiltWorker prints the roll angle of each device's latest reading per batch.
func tiltWorker(batches <-chan []rollx.Sample) {
	for batch := range batches {
		latest := make(map[string]rollx.Sample)
		for _, s := range batch {
			latest[s.Device] = s
		}
		for device, s := range latest {
			roll := math.Atan2(s.Y, s.Z) * 180 / math.Pi
			fmt.Printf("[%s] roll=%.1f° over %d samples\n", device, roll, len(batch))
		}
	}
}
