package repository

import (
	"context"
	"sync"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/metrics"
)

// MemorySessionStore is a process-lifetime SessionStore. Ids start at 1.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*model.Session
	nextID   int64
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[int64]*model.Session),
		nextID:   1,
	}
}

// Create implements SessionStore.
func (s *MemorySessionStore) Create(_ context.Context, in model.Session) (model.Session, error) {
	rec := in.Clone()

	s.mu.Lock()
	rec.ID = s.nextID
	s.nextID++
	s.sessions[rec.ID] = &rec
	out := rec.Clone()
	s.mu.Unlock()

	s.publish()
	return out, nil
}

// Get implements SessionStore.
func (s *MemorySessionStore) Get(_ context.Context, id int64) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Session{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update implements SessionStore.
func (s *MemorySessionStore) Update(_ context.Context, id int64, patch model.SessionPatch) (model.Session, error) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Session{}, ErrNotFound
	}

	endChanged := false
	if patch.EndTime != nil {
		t := *patch.EndTime
		endChanged = rec.EndTime == nil
		rec.EndTime = &t
	}
	if patch.RiskScore != nil {
		rec.RiskScore = *patch.RiskScore
	}
	out := rec.Clone()
	s.mu.Unlock()

	if endChanged {
		s.publish()
	}
	return out, nil
}

// AppendEvent implements SessionStore.
func (s *MemorySessionStore) AppendEvent(_ context.Context, id int64, e model.BehavioralEvent) ([]model.BehavioralEvent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, 0, ErrNotFound
	}

	rec.BehavioralData = append(rec.BehavioralData, e.Clone())
	history := make([]model.BehavioralEvent, len(rec.BehavioralData))
	copy(history, rec.BehavioralData)
	return history, rec.RiskScore, nil
}

// Stats implements SessionStore.
func (s *MemorySessionStore) Stats(_ context.Context) (total, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.sessions {
		if rec.EndTime == nil {
			active++
		}
	}
	return len(s.sessions), active
}

func (s *MemorySessionStore) publish() {
	total, active := s.Stats(context.Background())
	metrics.UpdateSessions(total, active)
}
