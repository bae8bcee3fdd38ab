package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/workflow"
)

type RedemptionHandler struct {
	engine  *workflow.Engine
	rewards *store.RewardStore
}

func NewRedemptionHandler(engine *workflow.Engine, rewards *store.RewardStore) *RedemptionHandler {
	return &RedemptionHandler{engine: engine, rewards: rewards}
}

type requestRedemptionRequest struct {
	RewardID int64 `json:"reward_id"`
}

func (h *RedemptionHandler) Request(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req requestRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	redemption, err := h.engine.RequestRedemption(r.Context(), req.RewardID, actorID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, redemption)
}

func (h *RedemptionHandler) ListByChild(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid member id"})
		return
	}

	redemptions, err := h.rewards.ListRedemptionsByChild(childID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list redemptions"})
		return
	}
	if redemptions == nil {
		redemptions = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}

// ListPendingByFamily is the parent review queue, oldest request first.
func (h *RedemptionHandler) ListPendingByFamily(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid family id"})
		return
	}

	redemptions, err := h.rewards.ListPendingRedemptionsByFamily(familyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list redemptions"})
		return
	}
	if redemptions == nil {
		redemptions = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}

type redemptionReviewRequest struct {
	Notes string `json:"notes"`
}

type redemptionResponse struct {
	Redemption *model.RewardRedemption `json:"redemption"`
	Points     *ledger.BalanceChange   `json:"points,omitempty"`
}

func (h *RedemptionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req redemptionReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var redemption *model.RewardRedemption
	var change *ledger.BalanceChange
	err = withConflictRetry(r.Context(), func(ctx context.Context) error {
		var rerr error
		redemption, change, rerr = h.engine.ApproveRedemption(ctx, id, actorID, req.Notes)
		return rerr
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptionResponse{Redemption: redemption, Points: change})
}

func (h *RedemptionHandler) Deny(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req redemptionReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	redemption, err := h.engine.DenyRedemption(r.Context(), id, actorID, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

func (h *RedemptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	redemption, err := h.engine.CancelRedemption(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}
