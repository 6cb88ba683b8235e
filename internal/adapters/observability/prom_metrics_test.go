package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, nil)

	obs.IncCounter(SamplesIngested, 5)
	if got := testutil.ToFloat64(obs.counters[SamplesIngested]); got != 5 {
		t.Fatalf("expected ingested counter 5, got %f", got)
	}

	obs.IncCounter(SamplesSent, 3)
	obs.IncCounter(SendFailures, 1)
	if got := testutil.ToFloat64(obs.counters[SamplesSent]); got != 3 {
		t.Fatalf("expected sent counter 3, got %f", got)
	}
	if got := testutil.ToFloat64(obs.counters[SendFailures]); got != 1 {
		t.Fatalf("expected failure counter 1, got %f", got)
	}

	obs.SetGauge(ConnectionState, 2)
	if got := testutil.ToFloat64(obs.gauges[ConnectionState]); got != 2 {
		t.Fatalf("expected connection state 2, got %f", got)
	}

	obs.SetGauge(WALSize, 42)
	if got := testutil.ToFloat64(obs.gauges[WALSize]); got != 42 {
		t.Fatalf("expected wal gauge 42, got %f", got)
	}

	obs.ObserveLatency(SinkLatency, 0.5)
	hCollector := obs.histos[SinkLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDLQ(1, nil, nil)
	if got := testutil.ToFloat64(obs.counters[DLQTotal]); got != 1 {
		t.Fatalf("expected dlq counter 1, got %f", got)
	}

	obs.IncCounter("unknown_metric", 1)
	obs.SetGauge("unknown_gauge", 1)

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("expected registered metrics, got %d (%v)", n, err)
	}
}

func TestPromObsRegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromObs(reg, nil)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	NewPromObs(reg, nil)
}

func TestPromObsLogsThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs := NewPromObs(prometheus.NewRegistry(), zap.New(core))

	obs.LogInfo("connection_state_changed", ports.Field{Key: "to", Value: "ready"})
	obs.LogError("sample_send_failed", errors.New("broken pipe"), ports.Field{Key: "seq", Value: uint64(4)})
	obs.RecordDLQ(7, &domain.Sample{Device: "10.0.0.2:5000", Seq: 3}, errors.New("sink down"))

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}

	info := entries[0]
	if info.Message != "connection_state_changed" || info.ContextMap()["to"] != "ready" {
		t.Fatalf("unexpected info entry: %+v", info)
	}

	errEntry := entries[1]
	if errEntry.Level != zapcore.ErrorLevel || errEntry.ContextMap()["error"] != "broken pipe" {
		t.Fatalf("unexpected error entry: %+v", errEntry.ContextMap())
	}

	dlq := entries[2]
	if dlq.Message != "sample_dead_lettered" || dlq.ContextMap()["device"] != "10.0.0.2:5000" {
		t.Fatalf("unexpected dlq entry: %+v", dlq.ContextMap())
	}
}
