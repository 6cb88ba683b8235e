package rollx

import (
	"io"

	base "github.com/gangulwar/rollX/pkg/rollx"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrInvalidEndpoint   = base.ErrInvalidEndpoint
	ErrInvalidPort       = base.ErrInvalidPort
	ErrSensorUnavailable = base.ErrSensorUnavailable
	ErrSessionClosed     = base.ErrSessionClosed
)

// Type aliases so consumers can import github.com/gangulwar/rollX directly.
type (
	Config           = base.Config
	ProducerConfig   = base.ProducerConfig
	SensorConfig     = base.SensorConfig
	OPCUAConfig      = base.OPCUAConfig
	TransportConfig  = base.TransportConfig
	CollectorConfig  = base.CollectorConfig
	Policy           = base.Policy
	TimescaleConfig  = base.TimescaleConfig
	MetricsConfig    = base.MetricsConfig
	WALConfig        = base.WALConfig
	LogConfig        = base.LogConfig
	Producer         = base.Producer
	ProducerOption   = base.ProducerOption
	Status           = base.Status
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	CollectorRuntime = base.CollectorRuntime
	CollectorOption  = base.CollectorOption
	Sample           = base.Sample
	SampleBatchSink  = base.SampleBatchSink
	Sensor           = base.Sensor
	Transport        = base.Transport
	Collector        = base.Collector
	Sink             = base.Sink
	SampleQueue      = base.SampleQueue
	WAL              = base.WAL
	Observability    = base.Observability
	QueuedSample     = base.QueuedSample
	WALEntryID       = base.WALEntryID
	WALStats         = base.WALStats
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Producer and options.
func NewProducer(cfg *Config, opts ...ProducerOption) (*Producer, error) {
	return base.NewProducer(cfg, opts...)
}

func WithSensor(s Sensor) ProducerOption {
	return base.WithSensor(s)
}

func WithTransport(t Transport) ProducerOption {
	return base.WithTransport(t)
}

func WithProducerObservability(obs Observability) ProducerOption {
	return base.WithProducerObservability(obs)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...CollectorOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInListenAddr(addr string) StreamInOption {
	return base.StreamInListenAddr(addr)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInQueue(q SampleQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Collector runtime and options.
func NewCollectorRuntime(cfg *Config, opts ...CollectorOption) (*CollectorRuntime, error) {
	return base.NewCollectorRuntime(cfg, opts...)
}

func WithCollector(col Collector) CollectorOption {
	return base.WithCollector(col)
}

func WithSink(s Sink) CollectorOption {
	return base.WithSink(s)
}

func WithWAL(w WAL) CollectorOption {
	return base.WithWAL(w)
}

func WithSampleQueue(q SampleQueue) CollectorOption {
	return base.WithSampleQueue(q)
}

func WithObservability(obs Observability) CollectorOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn SampleBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Sample, func()) {
	return base.NewChannelSink(name, buffer)
}

func NewPrintSink(w io.Writer) Sink {
	return base.NewPrintSink(w)
}
