package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
)

type FamilyMemberHandler struct {
	members *store.FamilyMemberStore
}

func NewFamilyMemberHandler(members *store.FamilyMemberStore) *FamilyMemberHandler {
	return &FamilyMemberHandler{members: members}
}

type memberRequest struct {
	UserID   int64  `json:"user_id"`
	FamilyID int64  `json:"family_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (h *FamilyMemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.UserID <= 0 || req.FamilyID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and family_id are required"})
		return
	}
	if req.Role != model.RoleParent && req.Role != model.RoleChild {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be parent or child"})
		return
	}

	member, err := h.members.Create(req.UserID, req.FamilyID, req.Name, req.Role)
	if err != nil {
		log.Printf("failed to create member: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create member"})
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid family id"})
		return
	}

	members, err := h.members.ListByFamily(familyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list members"})
		return
	}
	if members == nil {
		members = []model.FamilyMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *FamilyMemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.members.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get member"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	var patch model.MemberPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	member, err := h.members.Update(id, patch)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update member"})
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *FamilyMemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.members.Delete(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete member"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
