package rollx

import (
	"context"
	"fmt"
)

// Flow is a convenience builder for the collector: Conf → StreamIN → StreamOUT
// without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []CollectorOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the listener/WAL/queue side of the pipeline.
type StreamInOption func(*Flow)

// StreamOutOption configures the sink/observability side of the pipeline.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// StreamIN records receive-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records sink-side overrides and builds a CollectorRuntime ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*CollectorRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewCollectorRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// Producer builds the streaming side from the same configuration.
func (f *Flow) Producer(opts ...ProducerOption) (*Producer, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	return NewProducer(f.cfg, opts...)
}

// WithFlowOptions appends CollectorOption values during Conf.
func WithFlowOptions(opts ...CollectorOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInListenAddr overrides collector.listen_addr.
func StreamInListenAddr(addr string) StreamInOption {
	return func(f *Flow) {
		if f != nil && addr != "" {
			f.cfg.Collector.ListenAddr = addr
		}
	}
}

// StreamInCollector replaces the TCP listener.
func StreamInCollector(col Collector) StreamInOption {
	return StreamInOption(when(col != nil, WithCollector(col)))
}

// StreamInQueue swaps the in-memory queue.
func StreamInQueue(q SampleQueue) StreamInOption {
	return StreamInOption(when(q != nil, WithSampleQueue(q)))
}

// StreamInWAL lets callers bring their own WAL implementation.
func StreamInWAL(w WAL) StreamInOption { return StreamInOption(when(w != nil, WithWAL(w))) }

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return StreamInOption(when(obs != nil, WithObservability(obs)))
}

// StreamOutSink injects a custom Sink implementation.
func StreamOutSink(s Sink) StreamOutOption { return StreamOutOption(when(s != nil, WithSink(s))) }

// StreamOutObservability replaces the default observability backend.
func StreamOutObservability(obs Observability) StreamOutOption {
	return StreamOutOption(when(obs != nil, WithObservability(obs)))
}

// StreamOutCallback installs a sink built from a simple callback function.
func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return StreamOutOption(when(true, WithSink(NewCallbackSink(name, fn))))
}

// when records opt on the flow if ok holds.
func when(ok bool, opt CollectorOption) func(*Flow) {
	return func(f *Flow) {
		if f != nil && ok {
			f.appendOptions(opt)
		}
	}
}

func (f *Flow) appendOptions(opts ...CollectorOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
