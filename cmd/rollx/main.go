package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gangulwar/rollX/pkg/rollx"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "stream":
		err = streamCommand(os.Args[2:])
	case "collect":
		err = collectCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("rollx %s: %v", cmd, err)
	}
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*rollx.Config, error) {
	if path == "" {
		return rollx.ParseConfig(nil)
	}
	cfg, err := rollx.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func streamCommand(args []string) error {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file (defaults apply when empty)")
	host := fs.String("host", "", "Collector host, overrides producer.host")
	port := fs.Int("port", 0, "Collector port, overrides producer.port")
	quiet := fs.Bool("quiet", false, "Do not print samples")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Producer.Host = *host
	}
	if *port != 0 {
		cfg.Producer.Port = *port
	}

	p, err := rollx.NewProducer(cfg)
	if err != nil {
		return err
	}
	p.Watch(newStatusPrinter(os.Stdout, !*quiet).print)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

func collectCommand(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file (defaults apply when empty)")
	listen := fs.String("listen", "", "Listen address, overrides collector.listen_addr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Collector.ListenAddr = *listen
	}

	rt, err := rollx.NewCollectorRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := rollx.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateProducer(); err != nil {
		return err
	}
	if err := cfg.ValidateCollector(); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func printUsage() {
	fmt.Printf(`RollX CLI

Usage:
  rollx <command> [flags]

Commands:
  stream     Stream accelerometer readings to a collector
  collect    Receive readings from producers and store them
  validate   Load and validate a config file without starting anything
  stats      Poll a Prometheus metrics endpoint and print live counters

Examples:
  rollx stream -host 192.168.1.20 -port 9000
  rollx collect -config ./data/config.yaml
  rollx validate -config ./data/config.yaml
  rollx stats -url http://localhost:9100/metrics -interval 1s
`)
}
