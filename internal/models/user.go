package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
	RoleAdmin   = "admin"
)

// StartingCredits is granted to every new account so students can book
// their first sessions before teaching any of their own.
const StartingCredits = 5

// User represents a registered student or tutor.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	University   string    `json:"university,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Role         string    `json:"role"`
	Credits      int       `json:"credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanTeach reports whether the user may create skills and sessions.
func (u *User) CanTeach() bool {
	return u.Role == RoleTutor || u.Role == RoleAdmin
}
