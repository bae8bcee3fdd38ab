package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/workflow"
)

type AssignmentHandler struct {
	engine *workflow.Engine
	tasks  *store.TaskStore
}

func NewAssignmentHandler(engine *workflow.Engine, tasks *store.TaskStore) *AssignmentHandler {
	return &AssignmentHandler{engine: engine, tasks: tasks}
}

type createAssignmentRequest struct {
	TaskID     int64      `json:"task_id"`
	AssignedTo int64      `json:"assigned_to"`
	DueDate    *time.Time `json:"due_date"`
}

func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	assignment, err := h.engine.CreateAssignment(r.Context(), workflow.CreateAssignmentParams{
		TaskID:     req.TaskID,
		AssignedTo: req.AssignedTo,
		AssignedBy: actorID,
		DueDate:    req.DueDate,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

func (h *AssignmentHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid member id"})
		return
	}

	assignments, err := h.tasks.ListAssignmentsByMember(memberID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list assignments"})
		return
	}
	if assignments == nil {
		assignments = []model.TaskAssignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

// ListPendingReview is the parent review queue for one family's submitted
// work.
func (h *AssignmentHandler) ListPendingReview(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid family id"})
		return
	}

	assignments, err := h.tasks.ListPendingReviewByFamily(familyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list assignments"})
		return
	}
	if assignments == nil {
		assignments = []model.TaskAssignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *AssignmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	assignment, err := h.engine.StartAssignment(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type submitRequest struct {
	PhotoURL string `json:"photo_url"`
	Notes    string `json:"notes"`
}

func (h *AssignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	assignment, err := h.engine.SubmitAssignment(r.Context(), id, workflow.SubmissionParams{
		PhotoURL: req.PhotoURL,
		Notes:    req.Notes,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

type reviewResponse struct {
	Assignment *model.TaskAssignment `json:"assignment"`
	Points     *ledger.BalanceChange `json:"points,omitempty"`
}

func (h *AssignmentHandler) Review(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	decision := workflow.ReviewDecision(req.Decision)
	if decision != workflow.DecisionApproved && decision != workflow.DecisionRejected {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decision must be approved or rejected"})
		return
	}

	var assignment *model.TaskAssignment
	var change *ledger.BalanceChange
	err = withConflictRetry(r.Context(), func(ctx context.Context) error {
		var rerr error
		assignment, change, rerr = h.engine.ReviewAssignment(ctx, id, decision, actorID, req.Comments)
		return rerr
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponse{Assignment: assignment, Points: change})
}

func (h *AssignmentHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	subs, err := h.tasks.ListSubmissions(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list submissions"})
		return
	}
	if subs == nil {
		subs = []model.TaskSubmission{}
	}
	writeJSON(w, http.StatusOK, subs)
}
