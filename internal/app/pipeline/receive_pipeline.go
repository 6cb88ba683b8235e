package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

var errNonFinite = errors.New("sample has a non-finite axis")

// RunReceivePipeline starts col and moves every sample it emits into the WAL
// and then the queue. The returned channel closes once the pipeline stops
// after ctx is cancelled.
func RunReceivePipeline(ctx context.Context, col ports.Collector, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) (<-chan struct{}, error) {
	ch := make(chan *domain.Sample, max(pol.MaxQueueLen, 1))

	if err := col.Start(ch); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var s *domain.Sample
			select {
			case <-ctx.Done():
				return
			case s = <-ch:
			}

			if !s.Finite() {
				obs.RecordDLQ(0, s, errNonFinite)
				continue
			}
			if !waitForWALCapacity(ctx, wal, pol, obs) {
				continue
			}

			id, err := wal.Append(s)
			if err != nil {
				obs.LogCritical("wal_append_failed", err)
				continue
			}
			obs.SetGauge("rollx_wal_size_bytes", float64(wal.Stats().SizeBytes))

			if !enqueueWithPolicy(ctx, q, id, s, pol, obs) {
				obs.IncCounter("rollx_queue_dropped_total", 1)
			}
			obs.SetGauge("rollx_queue_length", float64(q.Len()))
		}
	}()

	return done, nil
}

// Replay queues every WAL record not yet committed, so samples accepted
// before a restart still reach the sink. It returns the number queued.
func Replay(ctx context.Context, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) (int, error) {
	from := wal.Stats().OldestUncommitted
	n := 0
	err := wal.Iterate(from, func(id ports.WALEntryID, s *domain.Sample) error {
		if !enqueueWithPolicy(ctx, q, id, s, pol, obs) {
			obs.IncCounter("rollx_queue_dropped_total", 1)
			return ctx.Err()
		}
		n++
		return nil
	})
	if n > 0 {
		obs.LogInfo("wal_replayed", ports.Field{Key: "samples", Value: n}, ports.Field{Key: "from", Value: uint64(from)})
	}
	return n, err
}

func waitForWALCapacity(ctx context.Context, wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			if !sleepCtx(ctx, idleSleep(pol)) {
				return false
			}
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(ctx context.Context, q ports.SampleQueue, id ports.WALEntryID, s *domain.Sample, pol ports.Policy, obs ports.Observability) bool {
	for {
		if ok := q.Enqueue(id, s); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if !sleepCtx(ctx, idleSleep(pol)) {
				return false
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}

// sleepCtx reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
