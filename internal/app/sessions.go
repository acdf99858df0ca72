package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/scoring"
	"github.com/okian/proctor/internal/domain/types"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

var (
	errNoConsent     = errors.New("consent not given")
	errNotActive     = errors.New("assessment is not active")
	errAlreadyEnded  = errors.New("session already ended")
	errEndBeforeOpen = errors.New("end time precedes start time")
)

// CreateSession opens a monitored session for a student. Consent is
// mandatory and the assessment must exist and be active.
func (s *Service) CreateSession(ctx context.Context, in model.NewSession) (model.Session, error) {
	const op = "create session"

	if !in.ConsentGiven {
		metrics.RecordConsentRejection()
		return model.Session{}, model.WrapKind(op, model.ErrValidation, errNoConsent)
	}
	if in.UserID <= 0 {
		return model.Session{}, model.WrapKind(op, model.ErrValidation, errors.New("missing userId"))
	}

	a, err := s.assessments.Get(ctx, in.AssessmentID)
	if err != nil {
		return model.Session{}, fmt.Errorf("%s: assessment %d: %w", op, in.AssessmentID, err)
	}
	if !a.Active {
		return model.Session{}, model.WrapKind(op, model.ErrValidation, errNotActive)
	}

	start := in.StartTime
	if start.IsZero() {
		start = time.Now().UTC()
	}

	created, err := s.sessions.Create(ctx, model.Session{
		UserID:         in.UserID,
		AssessmentID:   in.AssessmentID,
		StartTime:      start,
		ConsentGiven:   true,
		BehavioralData: []model.BehavioralEvent{},
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	s.board.Set(ctx, entryFor(created))
	metrics.RecordSessionCreated()
	s.logger.Info(ctx, "session created",
		logger.Int64("session_id", created.ID),
		logger.Int64("user_id", created.UserID),
		logger.Int64("assessment_id", created.AssessmentID),
	)
	return created, nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(ctx context.Context, id int64) (model.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %d: %w", id, err)
	}
	return sess, nil
}

// EndSession stamps the end time. History and score are left as they are.
// A zero endTime means now.
func (s *Service) EndSession(ctx context.Context, id int64, endTime time.Time) (model.Session, error) {
	const op = "end session"

	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return model.Session{}, fmt.Errorf("%s %d: %w", op, id, err)
	}
	if sess.Ended() {
		return model.Session{}, model.WrapKind(op, model.ErrValidation, errAlreadyEnded)
	}
	if endTime.IsZero() {
		endTime = time.Now().UTC()
	}
	if endTime.Before(sess.StartTime) {
		return model.Session{}, model.WrapKind(op, model.ErrValidation, errEndBeforeOpen)
	}

	updated, err := s.sessions.Update(ctx, id, model.SessionPatch{EndTime: &endTime})
	if err != nil {
		return model.Session{}, fmt.Errorf("%s %d: %w", op, id, err)
	}

	s.board.Set(ctx, entryFor(updated))
	metrics.RecordSessionEnded()
	s.logger.Info(ctx, "session ended",
		logger.Int64("session_id", id),
		logger.Int("risk_score", updated.RiskScore),
		logger.Int("events", len(updated.BehavioralData)),
	)
	return updated, nil
}

// RecordEvent appends one event to the session and rescores the full
// history. Calls for the same session are serialized. Unknown sessions
// leave the store untouched; sessions without consent or already ended
// reject the event.
func (s *Service) RecordEvent(ctx context.Context, sessionID int64, e model.BehavioralEvent) error {
	const op = "record event"

	if err := e.Validate(); err != nil {
		metrics.RecordEventRejected("invalid")
		return model.WrapKind(op, model.ErrValidation, err)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		metrics.RecordEventRejected("unknown_session")
		return fmt.Errorf("%s: session %d: %w", op, sessionID, err)
	}
	if !sess.ConsentGiven {
		metrics.RecordEventRejected("no_consent")
		return model.WrapKind(op, model.ErrValidation, errNoConsent)
	}
	if sess.Ended() {
		metrics.RecordEventRejected("session_ended")
		s.logger.Warn(ctx, "event after session end",
			logger.Int64("session_id", sessionID),
			logger.String("event_type", string(e.Type)),
		)
		return model.WrapKind(op, model.ErrValidation, errAlreadyEnded)
	}

	history, previous, err := s.sessions.AppendEvent(ctx, sessionID, e)
	if err != nil {
		return fmt.Errorf("%s: session %d: %w", op, sessionID, err)
	}

	res, err := s.scorer.Score(ctx, scoring.Input{SessionID: sessionID, History: history, Previous: previous})
	if err != nil {
		// The event stays appended; the score is kept until the next event.
		metrics.RecordErrorByComponent("service", "scoring_failed")
		return fmt.Errorf("%s: score session %d: %w", op, sessionID, err)
	}
	score := scoring.Clamp(res.Score)

	updated, err := s.sessions.Update(ctx, sessionID, model.SessionPatch{RiskScore: &score})
	if err != nil {
		return fmt.Errorf("%s: session %d: %w", op, sessionID, err)
	}

	s.board.Set(ctx, entryFor(updated))
	s.recorded.Add(1)
	if res.Strategy == scoring.StrategyFallback {
		s.fallback.Add(1)
	}
	metrics.RecordEventRecorded()
	metrics.ObserveRiskScore(score)
	s.logger.Debug(ctx, "event recorded",
		logger.Int64("session_id", sessionID),
		logger.String("event_type", string(e.Type)),
		logger.Int("previous", previous),
		logger.Int("risk_score", score),
		logger.String("strategy", string(res.Strategy)),
	)
	return nil
}

func entryFor(sess model.Session) types.RiskEntry {
	return types.RiskEntry{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		AssessmentID: sess.AssessmentID,
		RiskScore:    sess.RiskScore,
		Ended:        sess.Ended(),
	}
}
