// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
	"github.com/okian/proctor/pkg/logger"
)

const maxBodyBytes = 1 << 20

// SessionService is the session lifecycle used by the handlers.
type SessionService interface {
	CreateSession(ctx context.Context, in model.NewSession) (model.Session, error)
	GetSession(ctx context.Context, id int64) (model.Session, error)
	EndSession(ctx context.Context, id int64, endTime time.Time) (model.Session, error)
	Ingest(ctx context.Context, env model.Envelope) error
}

// AssessmentService manages assessments.
type AssessmentService interface {
	CreateAssessment(ctx context.Context, instructorID int64, in model.Assessment) (model.Assessment, error)
	ActiveAssessments(ctx context.Context) ([]model.Assessment, error)
	InstructorAssessments(ctx context.Context, instructorID int64) ([]model.Assessment, error)
	UpdateAssessment(ctx context.Context, instructorID, id int64, patch model.AssessmentPatch) (model.Assessment, error)
}

// AnalyticsService exposes the risk board.
type AnalyticsService interface {
	RiskBoard(ctx context.Context, limit int) ([]types.RiskEntry, error)
	SessionRisk(ctx context.Context, sessionID int64) (types.RiskEntry, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionService
	AssessmentService
	AnalyticsService
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	sessionsHandler   *SessionsHandler
	assessmentHandler *AssessmentsHandler
	analyticsHandler  *AnalyticsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, stats StatsFunc) *Server {
	log := logger.Get().Named("api")
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(stats),
		sessionsHandler:   NewSessionsHandler(deps, log),
		assessmentHandler: NewAssessmentsHandler(deps, log),
		analyticsHandler:  NewAnalyticsHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}

	handle("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	handle("GET /stats", "stats", s.statsHandler.HandleStats)

	handle("POST /api/sessions", "sessions_create", s.sessionsHandler.HandleCreate)
	handle("GET /api/sessions/{id}", "sessions_get", s.sessionsHandler.HandleGet)
	handle("PATCH /api/sessions/{id}", "sessions_end", s.sessionsHandler.HandleEnd)
	handle("POST /api/sessions/{id}/events", "sessions_events", s.sessionsHandler.HandlePostEvent)

	handle("POST /api/assessments", "assessments_create", s.assessmentHandler.HandleCreate)
	handle("GET /api/assessments/active", "assessments_active", s.assessmentHandler.HandleListActive)
	handle("GET /api/assessments/instructor", "assessments_instructor", s.assessmentHandler.HandleListMine)
	handle("PATCH /api/assessments/{id}", "assessments_update", s.assessmentHandler.HandleUpdate)

	handle("GET /api/analytics/risk", "analytics_risk", s.analyticsHandler.HandleRiskBoard)
	handle("GET /api/analytics/risk/{id}", "analytics_session", s.analyticsHandler.HandleSessionRisk)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status. Internal errors are logged and their
// message is not exposed.
func writeError(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("request_id", RequestID(ctx)), logger.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// decodeOptionalBody is decodeBody for requests whose body may be empty.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	err := decodeBody(w, r, op, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
