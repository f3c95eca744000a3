package models

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Session is a bookable tutoring session. Its ID doubles as the chat room
// identifier on the relay.
type Session struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	TutorID     uuid.UUID   `json:"tutor_id"`
	TutorName   string      `json:"tutor_name,omitempty"`
	Students    []uuid.UUID `json:"students"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Price       int         `json:"price"`
	MaxStudents int         `json:"max_students"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ValidStatus reports whether status is one of the accepted session states.
func ValidStatus(status string) bool {
	switch status {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// HasStudent reports whether the user is enrolled in the session.
func (s *Session) HasStudent(userID uuid.UUID) bool {
	for _, id := range s.Students {
		if id == userID {
			return true
		}
	}
	return false
}

// IsFull reports whether the session has reached its enrollment cap.
func (s *Session) IsFull() bool {
	return len(s.Students) >= s.MaxStudents
}
