package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
)

type RewardHandler struct {
	rewards *store.RewardStore
}

func NewRewardHandler(rewards *store.RewardStore) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

type rewardRequest struct {
	FamilyID          int64  `json:"family_id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	PointsRequired    int    `json:"points_required"`
	QuantityAvailable *int   `json:"quantity_available"`
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.PointsRequired < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "points_required must be >= 0"})
		return
	}
	if req.QuantityAvailable != nil && *req.QuantityAvailable < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity_available must be >= 0"})
		return
	}

	reward, err := h.rewards.Create(req.FamilyID, req.Name, req.Description, req.PointsRequired, req.QuantityAvailable)
	if err != nil {
		log.Printf("failed to create reward: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create reward"})
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid family id"})
		return
	}

	rewards, err := h.rewards.ListByFamily(familyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list rewards"})
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.rewards.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get reward"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reward not found"})
		return
	}

	var patch model.RewardPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if patch.PointsRequired != nil && *patch.PointsRequired < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "points_required must be >= 0"})
		return
	}

	reward, err := h.rewards.Update(id, patch)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update reward"})
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.rewards.Delete(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete reward"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
