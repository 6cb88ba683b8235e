package rollx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gangulwar/rollX/internal/adapters/listener"
	"github.com/gangulwar/rollX/internal/adapters/observability"
	"github.com/gangulwar/rollX/internal/adapters/queue"
	"github.com/gangulwar/rollX/internal/adapters/sink"
	"github.com/gangulwar/rollX/internal/adapters/wal"
	"github.com/gangulwar/rollX/internal/app/logging"
	"github.com/gangulwar/rollX/internal/app/pipeline"
	"github.com/gangulwar/rollX/internal/ports"
)

// CollectorOption customizes the dependencies used by CollectorRuntime.
type CollectorOption func(*collectorOverrides)

type collectorOverrides struct {
	collector     Collector
	sink          Sink
	wal           WAL
	queue         SampleQueue
	observability Observability
	logger        *zap.Logger
}

// WithCollector replaces the TCP listener, e.g. with a replay source or a test feed.
func WithCollector(col Collector) CollectorOption {
	return func(o *collectorOverrides) {
		o.collector = col
	}
}

// WithSink injects a custom sink so samples can be sent to any database or API.
func WithSink(s Sink) CollectorOption {
	return func(o *collectorOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) CollectorOption {
	return func(o *collectorOverrides) {
		o.wal = w
	}
}

// WithSampleQueue injects a custom queue implementation.
func WithSampleQueue(q SampleQueue) CollectorOption {
	return func(o *collectorOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) CollectorOption {
	return func(o *collectorOverrides) {
		o.observability = obs
	}
}

// WithLogger replaces the logger built from the log config section.
func WithLogger(l *zap.Logger) CollectorOption {
	return func(o *collectorOverrides) {
		o.logger = l
	}
}

// CollectorRuntime wires up the listener → WAL → queue → sink pipeline and
// exposes lifecycle hooks for embedding the collector inside any Go service.
type CollectorRuntime struct {
	cfg       *Config
	policy    ports.Policy
	logger    *zap.Logger
	registry  *prometheus.Registry
	obs       ports.Observability
	wal       ports.WAL
	queue     ports.SampleQueue
	collector ports.Collector
	sink      ports.Sink
	db        *sql.DB
	ownsWAL   bool

	metricsSrv  *http.Server
	cancel      context.CancelFunc
	receiveDone <-chan struct{}
	ingestDone  chan struct{}
	gaugeDone   chan struct{}
	stopOnce    sync.Once
}

// NewCollectorRuntime bootstraps the default adapters (TCP listener, file WAL,
// in-memory queue, Timescale or stdout sink, Prometheus observability).
func NewCollectorRuntime(cfg *Config, opts ...CollectorOption) (*CollectorRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.ValidateCollector(); err != nil {
		return nil, err
	}

	var overrides collectorOverrides
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
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(registry, logger)
	}

	rt := &CollectorRuntime{
		cfg:      cfg,
		policy:   cfg.Collector.Policy,
		logger:   logger,
		registry: registry,
		obs:      obs,
	}

	rt.wal = overrides.wal
	if rt.wal == nil {
		w, err := wal.NewFileWAL(cfg.Collector.WAL.Dir)
		if err != nil {
			return nil, fmt.Errorf("open wal: %w", err)
		}
		rt.wal = w
		rt.ownsWAL = true
	}

	rt.queue = overrides.queue
	if rt.queue == nil {
		rt.queue = queue.NewMemQueue(cfg.Collector.Policy.MaxQueueLen)
	}

	rt.collector = overrides.collector
	if rt.collector == nil {
		rt.collector = listener.NewTCPListener(cfg.Collector.ListenAddr, obs)
	}

	rt.sink = overrides.sink
	if rt.sink == nil {
		if conn := cfg.Collector.Timescale.ConnString; conn != "" {
			db, err := sql.Open("postgres", conn)
			if err != nil {
				rt.closeWAL()
				return nil, err
			}
			rt.db = db
			rt.sink = sink.NewTimescaleSink(db, cfg.Collector.Timescale.Table)
		} else {
			rt.sink = NewPrintSink(os.Stdout)
		}
	}

	return rt, nil
}

// Registry is the Prometheus registry the default observability writes to.
func (r *CollectorRuntime) Registry() *prometheus.Registry { return r.registry }

// Start replays the WAL, begins the receive and ingest pipelines and launches
// the metrics server. It returns immediately; call Run to block on a context instead.
func (r *CollectorRuntime) Start() error {
	if r == nil {
		return fmt.Errorf("collector runtime is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if ts, ok := r.sink.(*sink.TimescaleSink); ok {
		schemaCtx, schemaCancel := context.WithTimeout(ctx, 10*time.Second)
		err := ts.EnsureSchema(schemaCtx)
		schemaCancel()
		if err != nil {
			cancel()
			return err
		}
	}

	n, err := pipeline.Replay(ctx, r.wal, r.queue, r.policy, r.obs)
	if err != nil {
		cancel()
		return fmt.Errorf("wal replay: %w", err)
	}
	if n > 0 {
		r.obs.LogInfo("wal_replay_complete", ports.Field{Key: "samples", Value: n})
	}

	done, err := pipeline.RunReceivePipeline(ctx, r.collector, r.wal, r.queue, r.policy, r.obs)
	if err != nil {
		cancel()
		return err
	}
	r.receiveDone = done

	r.ingestDone = make(chan struct{})
	go func() {
		defer close(r.ingestDone)
		pipeline.RunIngestPipeline(ctx, r.wal, r.queue, r.sink, r.policy, r.obs)
	}()

	r.startMetrics(ctx)
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *CollectorRuntime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops accepting producers, flushes what is queued, then closes the
// metrics server, WAL and DB connection.
func (r *CollectorRuntime) Shutdown(ctx context.Context) error {
	var errs []error
	r.stopOnce.Do(func() {
		if r.collector != nil {
			if err := r.collector.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if r.cancel != nil {
			r.cancel()
		}
		for _, done := range []<-chan struct{}{r.receiveDone, r.ingestDone, r.gaugeDone} {
			if done == nil {
				continue
			}
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("pipeline drain: %w", ctx.Err()))
			}
		}

		if r.metricsSrv != nil {
			if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		if err := r.closeWAL(); err != nil {
			errs = append(errs, err)
		}
		if r.db != nil {
			if err := r.db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		_ = r.logger.Sync()
	})
	return errors.Join(errs...)
}

func (r *CollectorRuntime) closeWAL() error {
	if !r.ownsWAL {
		return nil
	}
	return r.wal.Close()
}

// MetricsHandler serves /metrics and /healthz for the collector.
func (r *CollectorRuntime) MetricsHandler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (r *CollectorRuntime) startMetrics(ctx context.Context) {
	if addr := r.cfg.Metrics.Addr; addr != "" {
		r.metricsSrv = &http.Server{
			Addr:              addr,
			Handler:           r.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.obs.LogError("metrics_server_exited", err)
			}
		}()
	}

	r.gaugeDone = make(chan struct{})
	go r.recordResourceGauges(ctx, time.Second)
}

func (r *CollectorRuntime) recordResourceGauges(ctx context.Context, interval time.Duration) {
	defer close(r.gaugeDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := r.wal.Stats()
			r.obs.SetGauge(observability.WALSize, float64(stats.SizeBytes))
			r.obs.SetGauge(observability.QueueLength, float64(r.queue.Len()))
		}
	}
}
