package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/proctor/internal/domain/model"
)

// MemoryAssessmentStore is a process-lifetime AssessmentStore. Ids start at 1.
type MemoryAssessmentStore struct {
	mu          sync.RWMutex
	assessments map[int64]model.Assessment
	nextID      int64
}

// NewMemoryAssessmentStore creates an empty assessment store.
func NewMemoryAssessmentStore() *MemoryAssessmentStore {
	return &MemoryAssessmentStore{
		assessments: make(map[int64]model.Assessment),
		nextID:      1,
	}
}

// Create implements AssessmentStore.
func (s *MemoryAssessmentStore) Create(_ context.Context, a model.Assessment) (model.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextID
	s.nextID++
	s.assessments[a.ID] = a
	return a, nil
}

// Get implements AssessmentStore.
func (s *MemoryAssessmentStore) Get(_ context.Context, id int64) (model.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[id]
	if !ok {
		return model.Assessment{}, ErrNotFound
	}
	return a, nil
}

// Update implements AssessmentStore.
func (s *MemoryAssessmentStore) Update(_ context.Context, id int64, patch model.AssessmentPatch) (model.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assessments[id]
	if !ok {
		return model.Assessment{}, ErrNotFound
	}
	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Duration != nil {
		a.Duration = *patch.Duration
	}
	if patch.Active != nil {
		a.Active = *patch.Active
	}
	s.assessments[id] = a
	return a, nil
}

// ListActive implements AssessmentStore. Results are ordered by id.
func (s *MemoryAssessmentStore) ListActive(_ context.Context) ([]model.Assessment, error) {
	return s.filter(func(a model.Assessment) bool { return a.Active }), nil
}

// ListByInstructor implements AssessmentStore. Results are ordered by id.
func (s *MemoryAssessmentStore) ListByInstructor(_ context.Context, instructorID int64) ([]model.Assessment, error) {
	return s.filter(func(a model.Assessment) bool { return a.InstructorID == instructorID }), nil
}

func (s *MemoryAssessmentStore) filter(keep func(model.Assessment) bool) []model.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Assessment, 0, len(s.assessments))
	for _, a := range s.assessments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
