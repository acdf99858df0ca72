// Package worker drains queue partitions and records telemetry events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Recorder appends an event to a session and rescores it.
type Recorder interface {
	RecordEvent(ctx context.Context, sessionID int64, e model.BehavioralEvent) error
}

// Source is the partitioned queue workers read from.
type Source interface {
	Dequeue(ctx context.Context, partition int) <-chan model.Envelope
	Partitions() int
	Len(ctx context.Context) int
}

// Worker drains one partition.
type Worker interface {
	// Run processes envelopes until the partition closes, ctx is cancelled
	// or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the in-flight envelope.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for a single queue partition. Envelopes
// of a partition are handled one at a time, which keeps each session's
// events in arrival order.
type InMemoryWorker struct {
	source    Source
	partition int
	recorder  Recorder
	name      string
	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker bound to one partition of source.
func NewInMemoryWorker(source Source, partition int, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:    source,
		partition: partition,
		recorder:  recorder,
		name:      "worker",
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run implements Worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	envelopes := w.source.Dequeue(ctx, w.partition)
	if envelopes == nil {
		w.logger.Error(ctx, "no such partition", logger.Int("partition", w.partition))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(ctx, env)
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many envelopes this worker has handled.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, env model.Envelope) { //nolint:gocritic // hugeParam: value received from channel
	start := time.Now()
	err := w.recorder.RecordEvent(ctx, env.SessionID, env.Event)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	w.processed.Add(1)

	if err == nil {
		return
	}

	metrics.RecordWorkerError()
	fields := []logger.Field{
		logger.Int64("session_id", env.SessionID),
		logger.String("event_type", string(env.Event.Type)),
		logger.Error(err),
	}
	if env.EventID != "" {
		fields = append(fields, logger.String("event_id", env.EventID))
	}
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrValidation):
		w.logger.Warn(ctx, "event dropped", fields...)
	default:
		metrics.RecordErrorByComponent("worker", "record_failed")
		w.logger.Error(ctx, "failed to record event", fields...)
	}
}

// Pool runs one worker per queue partition.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	logger  logger.Logger
}

// NewPool creates a pool sized to the source's partition count. opts are
// applied to every worker.
func NewPool(source Source, recorder Recorder, opts ...Option) *Pool {
	n := source.Partitions()
	pool := &Pool{
		workers: make([]*InMemoryWorker, n),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < n; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(source, i, recorder, wopts...)
	}

	metrics.UpdateWorkerCount(n)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the total number of envelopes handled by the pool.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the source when it supports it, lets workers drain what
// is already queued, then stops any worker still running.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		default:
			close(w.shutdown)
		}
	}

	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", drainCtx.Err())
	}
	return nil
}
