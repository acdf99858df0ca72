package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
)

// CreateAssessment stores a new assessment owned by instructorID. New
// assessments start inactive.
func (s *Service) CreateAssessment(ctx context.Context, instructorID int64, in model.Assessment) (model.Assessment, error) {
	const op = "create assessment"

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Assessment{}, model.WrapKind(op, model.ErrValidation, errors.New("missing title"))
	}
	if in.Duration <= 0 {
		return model.Assessment{}, model.WrapKind(op, model.ErrValidation, errors.New("duration must be positive"))
	}
	in.ID = 0
	in.InstructorID = instructorID
	in.Active = false

	created, err := s.assessments.Create(ctx, in)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info(ctx, "assessment created",
		logger.Int64("assessment_id", created.ID),
		logger.Int64("instructor_id", instructorID),
	)
	return created, nil
}

// ActiveAssessments lists the assessments students can start.
func (s *Service) ActiveAssessments(ctx context.Context) ([]model.Assessment, error) {
	return s.assessments.ListActive(ctx)
}

// InstructorAssessments lists the assessments owned by instructorID.
func (s *Service) InstructorAssessments(ctx context.Context, instructorID int64) ([]model.Assessment, error) {
	return s.assessments.ListByInstructor(ctx, instructorID)
}

// UpdateAssessment merges patch into the assessment. Only its owner may
// change it.
func (s *Service) UpdateAssessment(ctx context.Context, instructorID, id int64, patch model.AssessmentPatch) (model.Assessment, error) {
	const op = "update assessment"

	a, err := s.assessments.Get(ctx, id)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("%s %d: %w", op, id, err)
	}
	if a.InstructorID != instructorID {
		return model.Assessment{}, model.NewKind(op, model.ErrForbidden)
	}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return model.Assessment{}, model.WrapKind(op, model.ErrValidation, errors.New("missing title"))
		}
		patch.Title = &t
	}
	if patch.Duration != nil && *patch.Duration <= 0 {
		return model.Assessment{}, model.WrapKind(op, model.ErrValidation, errors.New("duration must be positive"))
	}

	updated, err := s.assessments.Update(ctx, id, patch)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("%s %d: %w", op, id, err)
	}
	return updated, nil
}
