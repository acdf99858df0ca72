package api

import (
	"net/http"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
)

// AssessmentsHandler serves assessment management routes.
type AssessmentsHandler struct {
	deps   AssessmentService
	logger logger.Logger
}

// NewAssessmentsHandler creates a new assessments handler.
func NewAssessmentsHandler(deps AssessmentService, log logger.Logger) *AssessmentsHandler {
	return &AssessmentsHandler{deps: deps, logger: log}
}

type createAssessmentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

// HandleCreate handles POST /api/assessments. Instructors only.
func (h *AssessmentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_assessment"
	ctx := r.Context()

	who, err := requireRole(r, op, model.RoleInstructor)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	var req createAssessmentRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	a, err := h.deps.CreateAssessment(ctx, who.UserID, model.Assessment{
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
	})
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleListActive handles GET /api/assessments/active.
func (h *AssessmentsHandler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identityFrom(r); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	list, err := h.deps.ActiveAssessments(ctx)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListMine handles GET /api/assessments/instructor.
func (h *AssessmentsHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_instructor_assessments"
	ctx := r.Context()

	who, err := requireRole(r, op, model.RoleInstructor)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	list, err := h.deps.InstructorAssessments(ctx, who.UserID)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleUpdate handles PATCH /api/assessments/{id}. Only the owning
// instructor may change an assessment.
func (h *AssessmentsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_assessment"
	ctx := r.Context()

	who, err := requireRole(r, op, model.RoleInstructor)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	id, err := pathID(r, op)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	var patch model.AssessmentPatch
	if err := decodeBody(w, r, op, &patch); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	a, err := h.deps.UpdateAssessment(ctx, who.UserID, id, patch)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
