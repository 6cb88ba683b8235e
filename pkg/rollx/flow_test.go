package rollx

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testCollectorConfig(t)

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithLogger(zaptest.NewLogger(t))))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	col := &stubCollector{}
	sink := &stubSink{}

	rt, err := flow.
		StreamIN(
			StreamInListenAddr("127.0.0.1:0"),
			StreamInCollector(col),
			StreamInWAL(&stubWAL{}),
			StreamInObservability(&stubObservability{}),
		).
		StreamOUT(
			StreamOutSink(sink),
			StreamOutObservability(&stubObservability{}),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.collector != col {
		t.Fatalf("expected custom collector to be wired")
	}
	if rt.sink != sink {
		t.Fatalf("expected custom sink to be wired")
	}
}

func TestFlowRunWithCallbackSink(t *testing.T) {
	flow, err := ConfFromConfig(testCollectorConfig(t), WithFlowOptions(WithLogger(zaptest.NewLogger(t))))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = flow.
		StreamIN(StreamInCollector(&stubCollector{}), StreamInObservability(&stubObservability{})).
		Run(ctx, StreamOutCallback("discard", func([]Sample) error { return nil }))
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}

func TestNilFlow(t *testing.T) {
	var f *Flow
	if f.Config() != nil || f.StreamIN() != nil {
		t.Fatalf("nil flow should stay nil")
	}
	if _, err := f.StreamOUT(); err == nil {
		t.Fatalf("expected error from nil flow")
	}
}

func TestFlowBuildsProducerFromSameConfig(t *testing.T) {
	cfg := testProducerConfig(t, 9000)
	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	p, err := flow.Producer(WithProducerLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("Producer returned error: %v", err)
	}
	defer p.Shutdown(context.Background())

	if st := p.Status(); st.State != "idle" || st.Connected {
		t.Fatalf("expected a fresh idle session, got %+v", st)
	}
}
