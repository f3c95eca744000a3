package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill levels.
const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

// Skill is a teachable subject listed by a tutor.
type Skill struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Level       string    `json:"level"`
	Tags        []string  `json:"tags"`
	TutorID     uuid.UUID `json:"tutor_id"`
	TutorName   string    `json:"tutor_name,omitempty"`
	Rating      float64   `json:"rating"`
	Students    int       `json:"students"`
	Price       int       `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidLevel reports whether level is one of the accepted skill levels.
func ValidLevel(level string) bool {
	switch level {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}
