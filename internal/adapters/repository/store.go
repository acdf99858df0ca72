// Package repository defines the session, assessment and risk board stores.
package repository

import (
	"context"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
)

// SessionStore holds monitored sessions keyed by id.
type SessionStore interface {
	// Create assigns the next id and stores s. Returns the stored copy.
	Create(ctx context.Context, s model.Session) (model.Session, error)

	// Get returns a copy of the session. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id int64) (model.Session, error)

	// Update applies a shallow merge of the non-nil patch fields.
	// Returns ErrNotFound if unknown.
	Update(ctx context.Context, id int64, patch model.SessionPatch) (model.Session, error)

	// AppendEvent appends e to the session history and returns a copy of the
	// full updated history together with the score before this event.
	// Returns ErrNotFound if unknown.
	AppendEvent(ctx context.Context, id int64, e model.BehavioralEvent) ([]model.BehavioralEvent, int, error)

	// Stats returns the number of stored sessions and how many have no end time.
	Stats(ctx context.Context) (total, active int)
}

// AssessmentStore holds assessments keyed by id.
type AssessmentStore interface {
	Create(ctx context.Context, a model.Assessment) (model.Assessment, error)
	Get(ctx context.Context, id int64) (model.Assessment, error)
	Update(ctx context.Context, id int64, patch model.AssessmentPatch) (model.Assessment, error)
	ListActive(ctx context.Context) ([]model.Assessment, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]model.Assessment, error)
}

// Board ranks sessions by risk score.
type Board interface {
	// Set inserts or moves the session to its current score.
	Set(ctx context.Context, e types.RiskEntry)

	// Rank returns the session's entry with its current rank.
	// Returns ErrNotFound if the session is not on the board.
	Rank(ctx context.Context, sessionID int64) (types.RiskEntry, error)

	// TopN returns the n riskiest sessions, score desc then id asc.
	TopN(ctx context.Context, n int) ([]types.RiskEntry, error)

	// Count returns the number of sessions on the board.
	Count(ctx context.Context) int
}
