// Package queue buffers telemetry envelopes between the transport and the
// workers that record them.
//
// Envelopes are routed to a partition by session id, so every event of a
// session lands on the same channel and is consumed in arrival order.
package queue

import (
	"context"
	"runtime"
	"sync"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 1024
)

// Queue provides non-blocking enqueue and per-partition channel dequeue.
type Queue interface {
	// Enqueue routes the envelope to its session's partition.
	// Returns ErrFull if that partition is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, env model.Envelope) error

	// Dequeue returns the channel of one partition. The channel is closed
	// when the queue is closed and drained.
	Dequeue(ctx context.Context, partition int) <-chan model.Envelope

	// Partitions returns the number of partitions.
	Partitions() int

	// Len returns the number of queued envelopes across all partitions.
	Len(ctx context.Context) int

	// Close stops accepting envelopes and closes every partition channel.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// Partitioned implements Queue with one buffered channel per partition.
type Partitioned struct {
	parts      []chan model.Envelope
	partitions int
	capacity   int

	mu     sync.RWMutex
	closed bool
}

// NewPartitioned creates a queue. Defaults to one partition per CPU.
func NewPartitioned(opts ...Option) *Partitioned {
	q := &Partitioned{
		partitions: runtime.NumCPU(),
		capacity:   defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.parts = make([]chan model.Envelope, q.partitions)
	for i := range q.parts {
		q.parts[i] = make(chan model.Envelope, q.capacity)
	}

	metrics.UpdateQueueCapacity(q.partitions * q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// PartitionFor returns the partition index that owns sessionID.
func (q *Partitioned) PartitionFor(sessionID int64) int {
	return int(uint64(sessionID) % uint64(q.partitions)) //nolint:gosec // ids are positive
}

// Enqueue implements Queue.
func (q *Partitioned) Enqueue(ctx context.Context, env model.Envelope) error { //nolint:gocritic // hugeParam: value semantics for channel send
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.parts[q.PartitionFor(env.SessionID)] <- env:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(q.length())
		return nil
	default:
		metrics.RecordQueueEnqueueError("partition_full")
		metrics.RecordErrorByComponent("queue", "partition_full")
		return ErrFull
	}
}

// Dequeue implements Queue. Out-of-range partitions get a nil channel.
func (q *Partitioned) Dequeue(_ context.Context, partition int) <-chan model.Envelope {
	if partition < 0 || partition >= len(q.parts) {
		return nil
	}
	return q.parts[partition]
}

// Partitions implements Queue.
func (q *Partitioned) Partitions() int {
	return q.partitions
}

// Len implements Queue.
func (q *Partitioned) Len(_ context.Context) int {
	size := q.length()
	metrics.UpdateQueueSize(size)
	return size
}

func (q *Partitioned) length() int {
	n := 0
	for _, p := range q.parts {
		n += len(p)
	}
	return n
}

// Close implements Queue.
func (q *Partitioned) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, p := range q.parts {
		close(p)
	}
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *Partitioned) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
