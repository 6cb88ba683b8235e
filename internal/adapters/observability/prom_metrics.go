package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// Metric names shared by the producer and collector.
const (
	SamplesSent      = "rollx_samples_sent_total"
	SendFailures     = "rollx_send_failures_total"
	StateTransitions = "rollx_state_transitions_total"
	ConnectionState  = "rollx_connection_state"
	SamplesReceived  = "rollx_samples_received_total"
	SamplesIngested  = "rollx_samples_ingested_total"
	QueueLength      = "rollx_queue_length"
	WALSize          = "rollx_wal_size_bytes"
	DLQTotal         = "rollx_dlq_total"
	QueueDropped     = "rollx_queue_dropped_total"
	SinkLatency      = "rollx_sink_latency_seconds"
	MalformedRecords = "rollx_malformed_records_total"
	CollectorClients = "rollx_collector_clients"
)

// PromObs implements ports.Observability with Prometheus metrics and zap logs.
// Unknown metric names are ignored.
type PromObs struct {
	logger   *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers every rollx metric on reg. A nil reg means the default
// registerer; a nil logger discards logs.
func NewPromObs(reg prometheus.Registerer, logger *zap.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &PromObs{
		logger:   logger,
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
		histos:   make(map[string]prometheus.Observer),
	}

	counters := []prometheus.CounterOpts{
		{Name: SamplesSent, Help: "Samples handed to the transport that completed without error."},
		{Name: SendFailures, Help: "Sample writes that completed with an error."},
		{Name: StateTransitions, Help: "Connection state machine transitions."},
		{Name: SamplesReceived, Help: "Samples decoded by the collector listener."},
		{Name: SamplesIngested, Help: "Total samples successfully written to sink."},
		{Name: DLQTotal, Help: "Samples sent to DLQ due to sink failures."},
		{Name: QueueDropped, Help: "Samples lost due to queue backpressure policies."},
		{Name: MalformedRecords, Help: "Inbound lines that could not be decoded."},
	}
	gauges := []prometheus.GaugeOpts{
		{Name: ConnectionState, Help: "Current producer connection state (0=idle .. 5=closed)."},
		{Name: QueueLength, Help: "Current number of samples buffered in the in-memory queue."},
		{Name: WALSize, Help: "Size of WAL on disk."},
		{Name: CollectorClients, Help: "Producers currently connected to the collector."},
	}

	var collectors []prometheus.Collector
	for _, opts := range counters {
		c := prometheus.NewCounter(opts)
		p.counters[opts.Name] = c
		collectors = append(collectors, c)
	}
	for _, opts := range gauges {
		g := prometheus.NewGauge(opts)
		p.gauges[opts.Name] = g
		collectors = append(collectors, g)
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    SinkLatency,
		Help:    "End-to-end latency from dequeued sample to sink commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	p.histos[SinkLatency] = latency
	collectors = append(collectors, latency)

	reg.MustRegister(collectors...)
	return p
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

// LogCritical logs at DPanic: it panics in development loggers only.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.DPanic(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, s *domain.Sample, err error) {
	p.IncCounter(DLQTotal, 1)
	fields := []zap.Field{zap.Uint64("wal_id", uint64(id)), zap.Error(err)}
	if s != nil {
		fields = append(fields, zap.String("device", s.Device), zap.Uint64("seq", s.Seq))
	}
	p.logger.Warn("sample_dead_lettered", fields...)
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
