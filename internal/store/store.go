package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Yashvi2874/tradetalents/internal/models"
)

// Business rule violations surfaced by the stores. Lookups that find
// nothing return (nil, nil) instead; absence is a normal result.
var (
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrSkillAlreadyAdded   = errors.New("skill already added")
	ErrAlreadyEnrolled     = errors.New("already enrolled in this session")
	ErrSessionFull         = errors.New("session is full")
	ErrInsufficientCredits = errors.New("not enough credits")
)

// Skill list sort orders.
const (
	SortPopular   = "popular"
	SortRating    = "rating"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
)

// SkillFilter narrows and orders skill listings.
type SkillFilter struct {
	Category string // exact category, "" or "all" for any
	Search   string // case-insensitive match on name, description, tags
	SortBy   string // one of the Sort constants, default SortPopular
}

// DataStore defines persistent storage for users, skills and sessions.
// Both SQLiteStore and PostgresStore implement this interface. Chat
// messages are deliberately absent: the relay never persists them.
type DataStore interface {
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, name, university, bio string) (*models.User, error)
	ListUserSkills(ctx context.Context, userID uuid.UUID) ([]models.Skill, error)
	AddUserSkill(ctx context.Context, userID, skillID uuid.UUID) error

	// Skill operations
	CreateSkill(ctx context.Context, skill *models.Skill) error
	GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error)
	ListSkills(ctx context.Context, filter SkillFilter) ([]models.Skill, error)
	UpdateSkill(ctx context.Context, skill *models.Skill) error
	DeleteSkill(ctx context.Context, id uuid.UUID) error

	// Session operations
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// EnrollStudent atomically checks capacity and balance, deducts the
	// session price from the student's credits and records the
	// enrollment. Returns the updated session and remaining credits.
	EnrollStudent(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, int, error)
}
