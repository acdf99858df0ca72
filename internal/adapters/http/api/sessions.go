package api

import (
	"net/http"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// SessionsHandler serves the session lifecycle routes.
type SessionsHandler struct {
	deps   SessionService
	logger logger.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionService, log logger.Logger) *SessionsHandler {
	return &SessionsHandler{deps: deps, logger: log}
}

type createSessionRequest struct {
	AssessmentID int64      `json:"assessmentId"`
	StartTime    *time.Time `json:"startTime"`
	ConsentGiven bool       `json:"consentGiven"`
}

type endSessionRequest struct {
	EndTime *time.Time `json:"endTime"`
}

// eventRequest is a behavioral event with an optional idempotency id.
type eventRequest struct {
	EventID string `json:"eventId"`
	model.BehavioralEvent
}

type ackResponse struct {
	Status string `json:"status"`
}

// HandleCreate handles POST /api/sessions. Students only; the session
// belongs to the caller.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	ctx := r.Context()

	who, err := requireRole(r, op, model.RoleStudent)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	var req createSessionRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	in := model.NewSession{AssessmentID: req.AssessmentID, UserID: who.UserID, ConsentGiven: req.ConsentGiven}
	if req.StartTime != nil {
		in.StartTime = req.StartTime.UTC()
	}
	s, err := h.deps.CreateSession(ctx, in)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// HandleGet handles GET /api/sessions/{id}. Visible to its owner,
// instructors and admins.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	ctx := r.Context()

	who, err := identityFrom(r)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	id, err := pathID(r, op)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	s, err := h.deps.GetSession(ctx, id)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	if who.Role == model.RoleStudent && s.UserID != who.UserID {
		writeError(ctx, w, h.logger, model.NewKind(op, model.ErrForbidden))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleEnd handles PATCH /api/sessions/{id}. Owner only.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_session"
	ctx := r.Context()

	id, err := h.ownedSession(r, op)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	var req endSessionRequest
	if err := decodeOptionalBody(w, r, op, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	var end time.Time
	if req.EndTime != nil {
		end = req.EndTime.UTC()
	}
	s, err := h.deps.EndSession(ctx, id, end)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandlePostEvent handles POST /api/sessions/{id}/events. The event is
// queued the same way as a WebSocket frame and recorded asynchronously.
func (h *SessionsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	ctx := r.Context()

	id, err := h.ownedSession(r, op)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	var req eventRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		metrics.RecordEventDecodeError()
		writeError(ctx, w, h.logger, err)
		return
	}

	metrics.RecordEventReceived("http")
	env := model.Envelope{SessionID: id, EventID: req.EventID, Event: req.BehavioralEvent}
	if err := h.deps.Ingest(ctx, env); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// ownedSession resolves {id} and checks the caller is the student who owns it.
func (h *SessionsHandler) ownedSession(r *http.Request, op string) (int64, error) {
	who, err := requireRole(r, op, model.RoleStudent)
	if err != nil {
		return 0, err
	}
	id, err := pathID(r, op)
	if err != nil {
		return 0, err
	}
	s, err := h.deps.GetSession(r.Context(), id)
	if err != nil {
		return 0, err
	}
	if s.UserID != who.UserID {
		return 0, model.NewKind(op, model.ErrForbidden)
	}
	return id, nil
}
