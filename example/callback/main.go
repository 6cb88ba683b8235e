package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gangulwar/rollX"
)

func main() {
	flow, err := rollx.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []rollx.Sample) error {
		for _, sample := range batch {
			fmt.Printf("%s device=%s seq=%d %s\n",
				sample.Timestamp.Format(time.RFC3339Nano),
				sample.Device,
				sample.Seq,
				sample.Display(),
			)
		}
		return nil
	}

	if err := flow.Run(ctx, rollx.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
