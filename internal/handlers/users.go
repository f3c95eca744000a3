package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Yashvi2874/tradetalents/internal/api/middleware"
	"github.com/Yashvi2874/tradetalents/internal/store"
)

// UpdateProfileRequest represents the profile update request. Empty
// fields keep their current value; clients send partial updates.
type UpdateProfileRequest struct {
	Name       string `json:"name"`
	University string `json:"university"`
	Bio        string `json:"bio"`
}

// GetProfile returns the authenticated user's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's profile fields.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := user.Name
	if n := sanitizeName(req.Name); n != "" {
		name = n
	}
	university := user.University
	if u := sanitizeName(req.University); u != "" {
		university = u
	}
	bio := user.Bio
	if req.Bio != "" {
		bio = req.Bio
	}

	updated, err := h.db.UpdateUserProfile(r.Context(), user.ID, name, university, bio)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	h.JSON(w, http.StatusOK, updated)
}

// GetUserSkills lists the skills attached to the authenticated user's
// profile.
func (h *Handler) GetUserSkills(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	skills, err := h.db.ListUserSkills(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list skills")
		return
	}
	h.JSON(w, http.StatusOK, skills)
}

// AddUserSkillRequest represents the attach-skill request.
type AddUserSkillRequest struct {
	SkillID string `json:"skillId"`
}

// AddUserSkill attaches an existing skill to the authenticated user's
// profile.
func (h *Handler) AddUserSkill(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req AddUserSkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	skillID, err := uuid.Parse(req.SkillID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid skill ID format")
		return
	}

	skill, err := h.db.GetSkill(r.Context(), skillID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if skill == nil {
		h.Error(w, http.StatusNotFound, "skill not found")
		return
	}

	if err := h.db.AddUserSkill(r.Context(), user.ID, skillID); err != nil {
		if errors.Is(err, store.ErrSkillAlreadyAdded) {
			h.Error(w, http.StatusBadRequest, "skill already added")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to add skill")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"message": "skill added successfully"})
}
