package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Yashvi2874/tradetalents/internal/api/middleware"
	"github.com/Yashvi2874/tradetalents/internal/models"
	"github.com/Yashvi2874/tradetalents/internal/store"
)

// SkillRequest represents the create/update skill request.
type SkillRequest struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Level       string   `json:"level"`
	Tags        []string `json:"tags"`
	Price       int      `json:"price"`
}

// ListSkills returns the public skill catalog, filtered and sorted by
// query parameters.
func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SkillFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sortBy"),
	}

	skills, err := h.db.ListSkills(r.Context(), filter)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list skills")
		return
	}
	h.JSON(w, http.StatusOK, skills)
}

// GetSkill returns a single skill by ID.
func (h *Handler) GetSkill(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid skill ID format")
		return
	}

	skill, err := h.db.GetSkill(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if skill == nil {
		h.Error(w, http.StatusNotFound, "skill not found")
		return
	}
	h.JSON(w, http.StatusOK, skill)
}

// CreateSkill creates a new skill listing (tutors only).
func (h *Handler) CreateSkill(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !user.CanTeach() {
		h.Error(w, http.StatusForbidden, "only tutors can create skills")
		return
	}

	var req SkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" || req.Category == "" || req.Description == "" {
		h.Error(w, http.StatusBadRequest, "name, category and description are required")
		return
	}
	if !models.ValidLevel(req.Level) {
		h.Error(w, http.StatusBadRequest, "level must be Beginner, Intermediate or Advanced")
		return
	}
	if req.Price < 0 {
		h.Error(w, http.StatusBadRequest, "price must not be negative")
		return
	}

	skill := &models.Skill{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Level:       req.Level,
		Tags:        req.Tags,
		TutorID:     user.ID,
		TutorName:   user.Name,
		Price:       req.Price,
	}
	if err := h.db.CreateSkill(r.Context(), skill); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create skill")
		return
	}

	h.JSON(w, http.StatusCreated, skill)
}

// UpdateSkill updates a skill owned by the authenticated tutor. Empty
// fields keep their current value.
func (h *Handler) UpdateSkill(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid skill ID format")
		return
	}

	skill, err := h.db.GetSkill(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if skill == nil {
		h.Error(w, http.StatusNotFound, "skill not found")
		return
	}
	if skill.TutorID != user.ID {
		h.Error(w, http.StatusForbidden, "not authorized to update this skill")
		return
	}

	var req SkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if n := sanitizeName(req.Name); n != "" {
		skill.Name = n
	}
	if req.Category != "" {
		skill.Category = req.Category
	}
	if req.Description != "" {
		skill.Description = req.Description
	}
	if req.Level != "" {
		if !models.ValidLevel(req.Level) {
			h.Error(w, http.StatusBadRequest, "level must be Beginner, Intermediate or Advanced")
			return
		}
		skill.Level = req.Level
	}
	if req.Tags != nil {
		skill.Tags = req.Tags
	}
	if req.Price > 0 {
		skill.Price = req.Price
	}

	if err := h.db.UpdateSkill(r.Context(), skill); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update skill")
		return
	}
	h.JSON(w, http.StatusOK, skill)
}

// DeleteSkill removes a skill owned by the authenticated tutor.
func (h *Handler) DeleteSkill(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid skill ID format")
		return
	}

	skill, err := h.db.GetSkill(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if skill == nil {
		h.Error(w, http.StatusNotFound, "skill not found")
		return
	}
	if skill.TutorID != user.ID {
		h.Error(w, http.StatusForbidden, "not authorized to delete this skill")
		return
	}

	if err := h.db.DeleteSkill(r.Context(), id); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete skill")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "skill removed"})
}
