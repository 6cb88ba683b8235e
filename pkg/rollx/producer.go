package rollx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/gangulwar/rollX/internal/adapters/observability"
	"github.com/gangulwar/rollX/internal/adapters/sensor"
	"github.com/gangulwar/rollX/internal/adapters/statusapi"
	"github.com/gangulwar/rollX/internal/adapters/transport"
	"github.com/gangulwar/rollX/internal/app/config"
	"github.com/gangulwar/rollX/internal/app/logging"
	"github.com/gangulwar/rollX/internal/app/session"
)

// ProducerOption customizes the dependencies used by Producer.
type ProducerOption func(*producerOverrides)

type producerOverrides struct {
	sensor        Sensor
	transport     Transport
	observability Observability
	logger        *zap.Logger
}

// WithSensor replaces the configured sensor.
func WithSensor(s Sensor) ProducerOption {
	return func(o *producerOverrides) {
		o.sensor = s
	}
}

// WithTransport replaces the TCP transport.
func WithTransport(t Transport) ProducerOption {
	return func(o *producerOverrides) {
		o.transport = t
	}
}

// WithProducerObservability plugs in a custom observability backend.
func WithProducerObservability(obs Observability) ProducerOption {
	return func(o *producerOverrides) {
		o.observability = obs
	}
}

// WithProducerLogger replaces the logger built from the log config section.
func WithProducerLogger(l *zap.Logger) ProducerOption {
	return func(o *producerOverrides) {
		o.logger = l
	}
}

// Producer streams sensor readings to a collector and serves its status over
// HTTP. It is safe for concurrent use.
type Producer struct {
	cfg      *Config
	logger   *zap.Logger
	registry *prometheus.Registry
	ctrl     *session.Controller
	api      *statusapi.Server

	serveErr chan error
	stopOnce sync.Once
}

// NewProducer builds the sensor, transport and session for cfg.Producer. The
// session starts idle; call Connect or ConnectConfigured to begin streaming.
func NewProducer(cfg *Config, opts ...ProducerOption) (*Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.ValidateProducer(); err != nil {
		return nil, err
	}

	var overrides producerOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := overrides.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(registry, logger)
	}

	snsr := overrides.sensor
	if snsr == nil {
		var err error
		snsr, err = buildSensor(cfg.Producer.Sensor, obs)
		if err != nil {
			return nil, err
		}
	}

	tr := overrides.transport
	if tr == nil {
		tr = transport.NewTCPTransport(cfg.Producer.Transport, obs)
	}

	ctrl := session.NewController(tr, snsr,
		session.WithInterval(cfg.Producer.SampleInterval),
		session.WithObservability(obs))

	return &Producer{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		ctrl:     ctrl,
		api:      statusapi.NewServer(cfg.Producer.StatusAddr, ctrl, registry, logger),
	}, nil
}

func buildSensor(cfg SensorConfig, obs Observability) (Sensor, error) {
	switch cfg.Kind {
	case config.SensorOPCUA:
		return sensor.NewOPCUA(cfg.OPCUA, obs)
	case config.SensorSimulated, "":
		return sensor.NewSimulated(cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unknown sensor kind %q", cfg.Kind)
	}
}

// Connect starts streaming to host:port. port is text so that UI input can be
// passed through unchanged.
func (p *Producer) Connect(host, port string) error { return p.ctrl.Connect(host, port) }

// ConnectConfigured connects to producer.host and producer.port.
func (p *Producer) ConnectConfigured() error {
	return p.ctrl.Connect(p.cfg.Producer.Host, strconv.Itoa(p.cfg.Producer.Port))
}

// Disconnect stops streaming.
func (p *Producer) Disconnect() { p.ctrl.Disconnect() }

// Toggle disconnects a live session, otherwise connects to host:port.
func (p *Producer) Toggle(host, port string) error { return p.ctrl.Toggle(host, port) }

// Status returns the latest session snapshot.
func (p *Producer) Status() Status { return p.ctrl.Status() }

// Watch registers fn for every status change. fn must not call back into the
// producer.
func (p *Producer) Watch(fn func(Status)) { p.ctrl.Watch(fn) }

// Registry is the Prometheus registry the default observability writes to.
func (p *Producer) Registry() *prometheus.Registry { return p.registry }

// StartAPI serves the status API on producer.status_addr in the background.
func (p *Producer) StartAPI() {
	p.serveErr = make(chan error, 1)
	go func() {
		p.serveErr <- p.api.ListenAndServe()
	}()
}

// Run connects to the configured collector, serves the status API and blocks
// until ctx is cancelled or the API fails.
func (p *Producer) Run(ctx context.Context) error {
	p.StartAPI()
	if err := p.ConnectConfigured(); err != nil {
		p.logger.Warn("initial_connect_failed", zap.Error(err))
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-p.serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, p.Shutdown(shutdownCtx))
}

// Shutdown closes the session and the status API.
func (p *Producer) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.ctrl.Close()
		if p.serveErr != nil {
			err = p.api.Shutdown(ctx)
		}
		_ = p.logger.Sync()
	})
	return err
}
