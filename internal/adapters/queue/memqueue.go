package queue

import (
	"sync"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// MemQueue is a bounded FIFO backed by a ring buffer.
type MemQueue struct {
	mu   sync.Mutex
	buf  []ports.QueuedSample
	head int
	size int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemQueue{buf: make([]ports.QueuedSample, capacity)}
}

// Enqueue reports false when the queue is full.
func (q *MemQueue) Enqueue(id ports.WALEntryID, s *domain.Sample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = ports.QueuedSample{ID: id, Sample: s}
	q.size++
	return true
}

// DequeueBatch removes up to max entries; max <= 0 drains the queue.
func (q *MemQueue) DequeueBatch(max int) []ports.QueuedSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	if max <= 0 || max > q.size {
		max = q.size
	}
	out := make([]ports.QueuedSample, max)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = ports.QueuedSample{}
	}
	q.head = (q.head + max) % len(q.buf)
	q.size -= max
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *MemQueue) Cap() int { return len(q.buf) }

var _ ports.SampleQueue = (*MemQueue)(nil)
