package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gangulwar/rollX"
)

func main() {
	cfg, err := rollx.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	p, err := rollx.NewProducer(cfg)
	if err != nil {
		log.Fatalf("producer: %v", err)
	}
	p.Watch(func(st rollx.Status) {
		if st.LastSample != nil {
			log.Printf("%s %s", st.State, st.LastSample.Display())
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("producer exited: %v", err)
	}
}
