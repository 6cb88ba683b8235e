package pipeline

import (
	"context"
	"time"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

const maxSinkBackoff = time.Second

// RunIngestPipeline drains q into sink in batches and commits the WAL behind
// every successful write. A failed batch is retried with backoff until it
// lands or ctx ends. Once ctx is cancelled, whatever is still queued gets one
// last write attempt before returning.
func RunIngestPipeline(ctx context.Context, wal ports.WAL, q ports.SampleQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	for {
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			if !sleepCtx(ctx, idleSleep(pol)) {
				flushRemaining(wal, q, sink, pol, obs)
				return
			}
			continue
		}
		obs.SetGauge("rollx_queue_length", float64(q.Len()))

		backoff := idleSleep(pol)
		for !writeBatch(wal, sink, batch, pol, obs) {
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxSinkBackoff)
		}
	}
}

func flushRemaining(wal ports.WAL, q ports.SampleQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	for {
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			return
		}
		if !writeBatch(wal, sink, batch, pol, obs) {
			// uncommitted; replayed from the WAL on next start
			return
		}
	}
}

func writeBatch(wal ports.WAL, sink ports.Sink, batch []ports.QueuedSample, pol ports.Policy, obs ports.Observability) bool {
	var (
		out   = make([]*domain.Sample, 0, len(batch))
		maxID ports.WALEntryID
	)
	for _, item := range batch {
		out = append(out, item.Sample)
		if item.ID > maxID {
			maxID = item.ID
		}
	}

	start := time.Now()
	if err := sink.WriteBatch(out); err != nil {
		obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: sink.Name()},
			ports.Field{Key: "batch", Value: len(out)})
		return false
	}
	obs.ObserveLatency("rollx_sink_latency_seconds", time.Since(start).Seconds())
	obs.IncCounter("rollx_samples_ingested_total", float64(len(out)))

	if err := wal.Commit(maxID); err != nil {
		obs.LogError("wal_commit_failed", err)
		return true
	}
	compactIfNeeded(wal, pol, obs)
	return true
}

// compactIfNeeded rewrites the WAL once it reaches half its size limit.
func compactIfNeeded(wal ports.WAL, pol ports.Policy, obs ports.Observability) {
	if pol.MaxWALSizeBytes <= 0 || wal.Stats().SizeBytes < pol.MaxWALSizeBytes/2 {
		return
	}
	if err := wal.Compact(); err != nil {
		obs.LogError("wal_compact_failed", err)
		return
	}
	obs.SetGauge("rollx_wal_size_bytes", float64(wal.Stats().SizeBytes))
}
