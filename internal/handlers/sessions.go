package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Yashvi2874/tradetalents/internal/api/middleware"
	"github.com/Yashvi2874/tradetalents/internal/metrics"
	"github.com/Yashvi2874/tradetalents/internal/models"
	"github.com/Yashvi2874/tradetalents/internal/store"
)

// SessionRequest represents the create/update session request.
type SessionRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Price       int       `json:"price"`
	MaxStudents int       `json:"maxStudents"`
	Status      string    `json:"status"`
}

// ListSessions returns sessions where the caller is tutor or student.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sessions, err := h.db.ListSessionsForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	h.JSON(w, http.StatusOK, sessions)
}

// GetSession returns a session the caller participates in.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	session, err := h.db.GetSession(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}
	if session.TutorID != user.ID && !session.HasStudent(user.ID) {
		h.Error(w, http.StatusForbidden, "not authorized to access this session")
		return
	}
	h.JSON(w, http.StatusOK, session)
}

// CreateSession creates a new bookable session (tutors only) and
// announces it to all connected relay clients so calendar views update
// live.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !user.CanTeach() {
		h.Error(w, http.StatusForbidden, "only tutors can create sessions")
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Title = sanitizeName(req.Title)
	if req.Title == "" || req.Description == "" {
		h.Error(w, http.StatusBadRequest, "title and description are required")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() || !req.EndTime.After(req.StartTime) {
		h.Error(w, http.StatusBadRequest, "endTime must be after startTime")
		return
	}
	if req.Price < 0 {
		h.Error(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	if req.MaxStudents <= 0 {
		req.MaxStudents = 10
	}

	session := &models.Session{
		Title:       req.Title,
		Description: req.Description,
		TutorID:     user.ID,
		TutorName:   user.Name,
		Students:    []uuid.UUID{},
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Price:       req.Price,
		MaxStudents: req.MaxStudents,
	}
	if err := h.db.CreateSession(r.Context(), session); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if h.relay != nil {
		if summary, err := json.Marshal(session); err == nil {
			h.relay.AnnounceSessionCreated(summary, user.ID.String())
		}
	}

	metrics.SessionsCreated.Inc()
	h.JSON(w, http.StatusCreated, session)
}

// UpdateSession updates a session owned by the authenticated tutor.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	session, err := h.db.GetSession(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}
	if session.TutorID != user.ID {
		h.Error(w, http.StatusForbidden, "not authorized to update this session")
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if t := sanitizeName(req.Title); t != "" {
		session.Title = t
	}
	if req.Description != "" {
		session.Description = req.Description
	}
	if !req.StartTime.IsZero() {
		session.StartTime = req.StartTime
	}
	if !req.EndTime.IsZero() {
		session.EndTime = req.EndTime
	}
	if req.Price > 0 {
		session.Price = req.Price
	}
	if req.MaxStudents > 0 {
		session.MaxStudents = req.MaxStudents
	}
	if req.Status != "" {
		if !models.ValidStatus(req.Status) {
			h.Error(w, http.StatusBadRequest, "invalid session status")
			return
		}
		session.Status = req.Status
	}

	if err := h.db.UpdateSession(r.Context(), session); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	h.JSON(w, http.StatusOK, session)
}

// DeleteSession removes a session owned by the authenticated tutor.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	session, err := h.db.GetSession(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}
	if session.TutorID != user.ID {
		h.Error(w, http.StatusForbidden, "not authorized to delete this session")
		return
	}

	if err := h.db.DeleteSession(r.Context(), id); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "session removed"})
}

// JoinSessionResponse represents a successful enrollment.
type JoinSessionResponse struct {
	Message          string          `json:"message"`
	Session          *models.Session `json:"session"`
	RemainingCredits int             `json:"remainingCredits"`
}

// JoinSession enrolls the authenticated student, deducting the session
// price from their credit balance.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if user.Role != models.RoleStudent {
		h.Error(w, http.StatusForbidden, "only students can join sessions")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	session, remaining, err := h.db.EnrollStudent(r.Context(), id, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyEnrolled):
			h.Error(w, http.StatusBadRequest, "already enrolled in this session")
		case errors.Is(err, store.ErrSessionFull):
			h.Error(w, http.StatusBadRequest, "session is full")
		case errors.Is(err, store.ErrInsufficientCredits):
			h.Error(w, http.StatusBadRequest, "not enough credits")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to join session")
		}
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	metrics.SessionsJoined.Inc()
	metrics.CreditsSpent.Add(float64(session.Price))

	h.JSON(w, http.StatusOK, JoinSessionResponse{
		Message:          "successfully joined session",
		Session:          session,
		RemainingCredits: remaining,
	})
}
