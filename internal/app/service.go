// Package service is the session lifecycle controller. It owns session
// creation and ending, records telemetry events and keeps each session's
// risk score current.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/proctor/internal/adapters/mq/queue"
	workerpool "github.com/okian/proctor/internal/adapters/mq/worker"
	repository "github.com/okian/proctor/internal/adapters/repository"
	"github.com/okian/proctor/internal/domain/dedupe"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/scoring"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

const (
	defaultQueueSize     = 1024
	defaultDedupeSize    = 50_000
	defaultMaxBoardLimit = 500
	stopTimeout          = 10 * time.Second
)

// Service implements the API and transport dependencies of the proctoring
// backend.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions    repository.SessionStore
	assessments repository.AssessmentStore
	board       repository.Board
	scorer      scoring.Scorer
	deduper     dedupe.Deduper
	locks       *sessionLocks
	eventQueue  eventqueue.Queue
	workerPool  *workerpool.Pool

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	maxBoardLimit int

	// Counters for stats
	recorded atomic.Int64
	fallback atomic.Int64

	// State
	started bool
	// cancelRun aborts in-flight scoring calls once the pool has drained.
	cancelRun context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of queue partitions and workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of each queue partition.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many recent event ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxBoardLimit caps the number of risk board entries one call returns.
func WithMaxBoardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBoardLimit = n
		}
	}
}

// WithScorer sets the scorer used on every recorded event. Defaults to a
// fallback-only scoring.Engine.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(st repository.SessionStore) Option {
	return func(s *Service) {
		if st != nil {
			s.sessions = st
		}
	}
}

// WithAssessmentStore replaces the in-memory assessment store.
func WithAssessmentStore(st repository.AssessmentStore) Option {
	return func(s *Service) {
		if st != nil {
			s.assessments = st
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Stores are usable right away; event ingestion
// needs Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		maxBoardLimit: defaultMaxBoardLimit,
		locks:         newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.sessions == nil {
		s.sessions = repository.NewMemorySessionStore()
	}
	if s.assessments == nil {
		s.assessments = repository.NewMemoryAssessmentStore()
	}
	if s.scorer == nil {
		s.scorer = scoring.NewEngine()
	}
	s.board = repository.NewRiskBoard()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start creates the partitioned queue and starts one worker per partition.
// Workers outlive ctx; they stop only when Stop closes the queue, so
// everything accepted by Ingest is recorded.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting proctoring service...")

	s.eventQueue = eventqueue.NewPartitioned(
		eventqueue.WithPartitions(s.workerCount),
		eventqueue.WithCapacity(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.eventQueue, s)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "proctoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the queue and waits for the workers to drain it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping proctoring service...")
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancelRun()

	s.started = false
	s.logger.Info(ctx, "proctoring service stopped")
}

// Ingest validates a telemetry envelope, drops resends of an already seen
// event id and queues the rest on the session's partition. It returns
// before the event is recorded.
func (s *Service) Ingest(ctx context.Context, env model.Envelope) error { //nolint:gocritic // hugeParam: envelopes are passed by value through the queue
	if err := env.Validate(); err != nil {
		metrics.RecordEventRejected("invalid")
		return model.WrapKind("ingest", model.ErrValidation, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return fmt.Errorf("ingest: %w", ErrNotStarted)
	}

	key := ""
	if env.EventID != "" {
		key = fmt.Sprintf("%d/%s", env.SessionID, env.EventID)
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordEventDuplicate()
			s.logger.Debug(ctx, "duplicate event skipped",
				logger.Int64("session_id", env.SessionID),
				logger.String("event_id", env.EventID),
			)
			return nil
		}
	}

	if err := s.eventQueue.Enqueue(ctx, env); err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		return fmt.Errorf("ingest session %d: %w", env.SessionID, err)
	}
	return nil
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started        bool    `json:"started"`
	Sessions       int     `json:"sessions"`
	ActiveSessions int     `json:"activeSessions"`
	BoardSize      int     `json:"boardSize"`
	QueueLength    int     `json:"queueLength"`
	QueueCapacity  int     `json:"queueCapacity"`
	Workers        int     `json:"workers"`
	Processed      int64   `json:"processed"`
	EventsRecorded int64   `json:"eventsRecorded"`
	FallbackScores int64   `json:"fallbackScores"`
	FallbackRatio  float64 `json:"fallbackRatio"`
	DedupeEntries  int64   `json:"dedupeEntries"`
	LockedSessions int     `json:"lockedSessions"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, active := s.sessions.Stats(ctx)
	st := Stats{
		Started:        s.started,
		Sessions:       total,
		ActiveSessions: active,
		BoardSize:      s.board.Count(ctx),
		QueueCapacity:  s.workerCount * s.queueSize,
		Workers:        s.workerCount,
		EventsRecorded: s.recorded.Load(),
		FallbackScores: s.fallback.Load(),
		DedupeEntries:  s.deduper.Size(),
		LockedSessions: s.locks.size(),
	}
	if st.EventsRecorded > 0 {
		st.FallbackRatio = float64(st.FallbackScores) / float64(st.EventsRecorded)
	}
	if s.started {
		st.QueueLength = s.eventQueue.Len(ctx)
		st.Processed = s.workerPool.Processed()
	}
	return st
}
