package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Yashvi2874/tradetalents/internal/models"
)

// PostgresStore handles PostgreSQL database operations for production
// deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		university TEXT DEFAULT '',
		bio TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		credits INTEGER NOT NULL DEFAULT 5,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS skills (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		level TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		tutor_id UUID NOT NULL REFERENCES users(id),
		rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		students INTEGER NOT NULL DEFAULT 0,
		price INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS user_skills (
		user_id UUID NOT NULL REFERENCES users(id),
		skill_id UUID NOT NULL REFERENCES skills(id),
		PRIMARY KEY (user_id, skill_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		tutor_id UUID NOT NULL REFERENCES users(id),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		price INTEGER NOT NULL DEFAULT 0,
		max_students INTEGER NOT NULL DEFAULT 10,
		status TEXT NOT NULL DEFAULT 'upcoming',
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS session_students (
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id),
		enrolled_at TIMESTAMPTZ DEFAULT now(),
		PRIMARY KEY (session_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_skills_category ON skills(category);
	CREATE INDEX IF NOT EXISTS idx_skills_tutor ON skills(tutor_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_tutor ON sessions(tutor_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts a new user record, filling in ID and timestamps.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, university, bio, role, credits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.University, user.Bio, user.Role, user.Credits).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func scanPGUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.University,
		&user.Bio,
		&user.Role,
		&user.Credits,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanPGUser(s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, university, bio, role, credits, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanPGUser(s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, university, bio, role, credits, created_at, updated_at
		FROM users WHERE email = $1
	`, email))
}

// UpdateUserProfile updates the mutable profile fields and returns the
// fresh record.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, name, university, bio string) (*models.User, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET name = $1, university = $2, bio = $3, updated_at = now()
		WHERE id = $4
	`, name, university, bio, id)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

const pgSkillSelect = `
	SELECT sk.id, sk.name, sk.category, sk.description, sk.level, sk.tags,
	       sk.tutor_id, u.name, sk.rating, sk.students, sk.price, sk.created_at, sk.updated_at
	FROM skills sk JOIN users u ON u.id = sk.tutor_id
`

// ListUserSkills returns the skills a user has attached to their profile.
func (s *PostgresStore) ListUserSkills(ctx context.Context, userID uuid.UUID) ([]models.Skill, error) {
	rows, err := s.pool.Query(ctx, pgSkillSelect+`
		JOIN user_skills us ON us.skill_id = sk.id
		WHERE us.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGSkills(rows)
}

// AddUserSkill attaches a skill to a user's profile.
func (s *PostgresStore) AddUserSkill(ctx context.Context, userID, skillID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_skills (user_id, skill_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, skillID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSkillAlreadyAdded
	}
	return nil
}

// CreateSkill inserts a new skill, filling in ID and timestamps.
func (s *PostgresStore) CreateSkill(ctx context.Context, skill *models.Skill) error {
	if skill.ID == uuid.Nil {
		skill.ID = uuid.New()
	}
	tags, err := json.Marshal(skill.Tags)
	if err != nil {
		return err
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO skills (id, name, category, description, level, tags, tutor_id, rating, students, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, skill.ID, skill.Name, skill.Category, skill.Description, skill.Level, string(tags),
		skill.TutorID, skill.Rating, skill.Students, skill.Price).
		Scan(&skill.CreatedAt, &skill.UpdatedAt)
}

// GetSkill retrieves a skill by ID, with the tutor's name joined in.
func (s *PostgresStore) GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error) {
	rows, err := s.pool.Query(ctx, pgSkillSelect+` WHERE sk.id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skills, err := collectPGSkills(rows)
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, nil
	}
	return &skills[0], nil
}

// ListSkills returns skills matching the filter, ordered per SortBy.
func (s *PostgresStore) ListSkills(ctx context.Context, filter SkillFilter) ([]models.Skill, error) {
	query := pgSkillSelect
	var clauses []string
	var args []any

	if filter.Category != "" && filter.Category != "all" {
		args = append(args, filter.Category)
		clauses = append(clauses, "sk.category = $1")
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(lower(sk.name) LIKE %s OR lower(sk.description) LIKE %s OR lower(sk.tags) LIKE %s)", p, p, p))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY " + skillOrder(filter.SortBy)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGSkills(rows)
}

// UpdateSkill rewrites the mutable skill fields.
func (s *PostgresStore) UpdateSkill(ctx context.Context, skill *models.Skill) error {
	tags, err := json.Marshal(skill.Tags)
	if err != nil {
		return err
	}
	skill.UpdatedAt = time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		UPDATE skills SET name = $1, category = $2, description = $3, level = $4, tags = $5, price = $6, updated_at = $7
		WHERE id = $8
	`, skill.Name, skill.Category, skill.Description, skill.Level, string(tags), skill.Price, skill.UpdatedAt, skill.ID)
	return err
}

// DeleteSkill removes a skill and any profile attachments to it.
func (s *PostgresStore) DeleteSkill(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_skills WHERE skill_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM skills WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateSession inserts a new session, filling in ID and timestamps.
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = models.StatusUpcoming
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, title, description, tutor_id, start_time, end_time, price, max_students, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, session.ID, session.Title, session.Description, session.TutorID,
		session.StartTime, session.EndTime, session.Price, session.MaxStudents, session.Status).
		Scan(&session.CreatedAt, &session.UpdatedAt)
}

// GetSession retrieves a session with its enrolled students.
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session := &models.Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT se.id, se.title, se.description, se.tutor_id, u.name, se.start_time, se.end_time,
		       se.price, se.max_students, se.status, se.created_at, se.updated_at
		FROM sessions se JOIN users u ON u.id = se.tutor_id
		WHERE se.id = $1
	`, id).Scan(
		&session.ID,
		&session.Title,
		&session.Description,
		&session.TutorID,
		&session.TutorName,
		&session.StartTime,
		&session.EndTime,
		&session.Price,
		&session.MaxStudents,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM session_students WHERE session_id = $1 ORDER BY enrolled_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	session.Students = []uuid.UUID{}
	for rows.Next() {
		var studentID uuid.UUID
		if err := rows.Scan(&studentID); err != nil {
			return nil, err
		}
		session.Students = append(session.Students, studentID)
	}
	return session, rows.Err()
}

// ListSessionsForUser returns sessions where the user is the tutor or an
// enrolled student. Two queries total: one for the session rows, one for
// every enrollment across them.
func (s *PostgresStore) ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT se.id, se.title, se.description, se.tutor_id, u.name, se.start_time, se.end_time,
		       se.price, se.max_students, se.status, se.created_at, se.updated_at
		FROM sessions se
		JOIN users u ON u.id = se.tutor_id
		LEFT JOIN session_students ss ON ss.session_id = se.id
		WHERE se.tutor_id = $1 OR ss.user_id = $1
		ORDER BY se.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var session models.Session
		err := rows.Scan(
			&session.ID,
			&session.Title,
			&session.Description,
			&session.TutorID,
			&session.TutorName,
			&session.StartTime,
			&session.EndTime,
			&session.Price,
			&session.MaxStudents,
			&session.Status,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		session.Students = []uuid.UUID{}
		index[session.ID] = len(sessions)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	ids := make([]string, 0, len(sessions))
	for id := range index {
		ids = append(ids, id.String())
	}
	srows, err := s.pool.Query(ctx, `
		SELECT session_id, user_id FROM session_students
		WHERE session_id = ANY($1::uuid[])
		ORDER BY enrolled_at
	`, ids)
	if err != nil {
		return nil, err
	}
	defer srows.Close()

	for srows.Next() {
		var sessID, studentID uuid.UUID
		if err := srows.Scan(&sessID, &studentID); err != nil {
			return nil, err
		}
		i := index[sessID]
		sessions[i].Students = append(sessions[i].Students, studentID)
	}
	return sessions, srows.Err()
}

// UpdateSession rewrites the mutable session fields.
func (s *PostgresStore) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET title = $1, description = $2, start_time = $3, end_time = $4, price = $5, max_students = $6, status = $7, updated_at = $8
		WHERE id = $9
	`, session.Title, session.Description, session.StartTime, session.EndTime,
		session.Price, session.MaxStudents, session.Status, session.UpdatedAt, session.ID)
	return err
}

// DeleteSession removes a session and its enrollments.
func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// EnrollStudent atomically enrolls a student, deducting the session price
// from their credits. The session row is locked for the duration so two
// concurrent joins cannot oversell a session or overdraw an account.
func (s *PostgresStore) EnrollStudent(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var price, maxStudents, enrolled int
	err = tx.QueryRow(ctx, `
		SELECT price, max_students,
		       (SELECT COUNT(*) FROM session_students WHERE session_id = sessions.id)
		FROM sessions WHERE id = $1
		FOR UPDATE
	`, sessionID).Scan(&price, &maxStudents, &enrolled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var already int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM session_students WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID).Scan(&already); err != nil {
		return nil, 0, err
	}
	if already > 0 {
		return nil, 0, ErrAlreadyEnrolled
	}
	if enrolled >= maxStudents {
		return nil, 0, ErrSessionFull
	}

	var credits int
	if err := tx.QueryRow(ctx, `
		SELECT credits FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&credits); err != nil {
		return nil, 0, err
	}
	if credits < price {
		return nil, 0, ErrInsufficientCredits
	}

	remaining := credits - price
	if _, err := tx.Exec(ctx, `
		UPDATE users SET credits = $1, updated_at = now() WHERE id = $2
	`, remaining, userID); err != nil {
		return nil, 0, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO session_students (session_id, user_id) VALUES ($1, $2)
	`, sessionID, userID); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	return session, remaining, nil
}

// collectPGSkills scans skill rows produced by pgSkillSelect.
func collectPGSkills(rows pgx.Rows) ([]models.Skill, error) {
	skills := []models.Skill{}
	for rows.Next() {
		var skill models.Skill
		var tags string
		err := rows.Scan(
			&skill.ID,
			&skill.Name,
			&skill.Category,
			&skill.Description,
			&skill.Level,
			&tags,
			&skill.TutorID,
			&skill.TutorName,
			&skill.Rating,
			&skill.Students,
			&skill.Price,
			&skill.CreatedAt,
			&skill.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &skill.Tags); err != nil {
			skill.Tags = nil
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

var _ DataStore = (*PostgresStore)(nil)
