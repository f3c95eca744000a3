package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Yashvi2874/tradetalents/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default store
// for development and small deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/tradetalents.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/tradetalents.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		university TEXT DEFAULT '',
		bio TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		credits INTEGER NOT NULL DEFAULT 5,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		level TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		tutor_id TEXT NOT NULL REFERENCES users(id),
		rating REAL NOT NULL DEFAULT 0,
		students INTEGER NOT NULL DEFAULT 0,
		price INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_skills (
		user_id TEXT NOT NULL REFERENCES users(id),
		skill_id TEXT NOT NULL REFERENCES skills(id),
		PRIMARY KEY (user_id, skill_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		tutor_id TEXT NOT NULL REFERENCES users(id),
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		price INTEGER NOT NULL DEFAULT 0,
		max_students INTEGER NOT NULL DEFAULT 10,
		status TEXT NOT NULL DEFAULT 'upcoming',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS session_students (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		enrolled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_skills_category ON skills(category);
	CREATE INDEX IF NOT EXISTS idx_skills_tutor ON skills(tutor_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_tutor ON sessions(tutor_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser inserts a new user record, filling in ID and timestamps.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, university, bio, role, credits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID.String(), user.Name, user.Email, user.PasswordHash, user.University, user.Bio, user.Role, user.Credits, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(
		&idStr,
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, university, bio, role, credits, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, university, bio, role, credits, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// UpdateUserProfile updates the mutable profile fields and returns the
// fresh record.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, name, university, bio string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = ?, university = ?, bio = ?, updated_at = ?
		WHERE id = ?
	`, name, university, bio, time.Now().UTC(), id.String())
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// ListUserSkills returns the skills a user has attached to their profile.
func (s *SQLiteStore) ListUserSkills(ctx context.Context, userID uuid.UUID) ([]models.Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sk.id, sk.name, sk.category, sk.description, sk.level, sk.tags,
		       sk.tutor_id, u.name, sk.rating, sk.students, sk.price, sk.created_at, sk.updated_at
		FROM user_skills us
		JOIN skills sk ON sk.id = us.skill_id
		JOIN users u ON u.id = sk.tutor_id
		WHERE us.user_id = ?
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSkills(rows)
}

// AddUserSkill attaches a skill to a user's profile.
func (s *SQLiteStore) AddUserSkill(ctx context.Context, userID, skillID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_skills (user_id, skill_id) VALUES (?, ?)
	`, userID.String(), skillID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSkillAlreadyAdded
	}
	return nil
}

// CreateSkill inserts a new skill, filling in ID and timestamps.
func (s *SQLiteStore) CreateSkill(ctx context.Context, skill *models.Skill) error {
	if skill.ID == uuid.Nil {
		skill.ID = uuid.New()
	}
	now := time.Now().UTC()
	skill.CreatedAt = now
	skill.UpdatedAt = now

	tags, err := json.Marshal(skill.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skills (id, name, category, description, level, tags, tutor_id, rating, students, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, skill.ID.String(), skill.Name, skill.Category, skill.Description, skill.Level, string(tags),
		skill.TutorID.String(), skill.Rating, skill.Students, skill.Price, now, now)
	return err
}

// GetSkill retrieves a skill by ID, with the tutor's name joined in.
func (s *SQLiteStore) GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sk.id, sk.name, sk.category, sk.description, sk.level, sk.tags,
		       sk.tutor_id, u.name, sk.rating, sk.students, sk.price, sk.created_at, sk.updated_at
		FROM skills sk JOIN users u ON u.id = sk.tutor_id
		WHERE sk.id = ?
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skills, err := collectSkills(rows)
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, nil
	}
	return &skills[0], nil
}

// ListSkills returns skills matching the filter, ordered per SortBy.
func (s *SQLiteStore) ListSkills(ctx context.Context, filter SkillFilter) ([]models.Skill, error) {
	query := `
		SELECT sk.id, sk.name, sk.category, sk.description, sk.level, sk.tags,
		       sk.tutor_id, u.name, sk.rating, sk.students, sk.price, sk.created_at, sk.updated_at
		FROM skills sk JOIN users u ON u.id = sk.tutor_id
	`
	var clauses []string
	var args []any

	if filter.Category != "" && filter.Category != "all" {
		clauses = append(clauses, "sk.category = ?")
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		clauses = append(clauses, "(lower(sk.name) LIKE ? OR lower(sk.description) LIKE ? OR lower(sk.tags) LIKE ?)")
		args = append(args, needle, needle, needle)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY " + skillOrder(filter.SortBy)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSkills(rows)
}

// skillOrder maps a SortBy value to an ORDER BY clause. Unknown values
// fall back to most popular, matching the public catalog's default.
func skillOrder(sortBy string) string {
	switch sortBy {
	case SortRating:
		return "sk.rating DESC"
	case SortPriceLow:
		return "sk.price ASC"
	case SortPriceHigh:
		return "sk.price DESC"
	default:
		return "sk.students DESC"
	}
}

// UpdateSkill rewrites the mutable skill fields.
func (s *SQLiteStore) UpdateSkill(ctx context.Context, skill *models.Skill) error {
	tags, err := json.Marshal(skill.Tags)
	if err != nil {
		return err
	}
	skill.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE skills SET name = ?, category = ?, description = ?, level = ?, tags = ?, price = ?, updated_at = ?
		WHERE id = ?
	`, skill.Name, skill.Category, skill.Description, skill.Level, string(tags), skill.Price, skill.UpdatedAt, skill.ID.String())
	return err
}

// DeleteSkill removes a skill and any profile attachments to it.
func (s *SQLiteStore) DeleteSkill(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_skills WHERE skill_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateSession inserts a new session, filling in ID and timestamps.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = models.StatusUpcoming
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, description, tutor_id, start_time, end_time, price, max_students, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID.String(), session.Title, session.Description, session.TutorID.String(),
		session.StartTime, session.EndTime, session.Price, session.MaxStudents, session.Status, now, now)
	return err
}

// GetSession retrieves a session with its enrolled students.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session := &models.Session{}
	var idStr, tutorStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT se.id, se.title, se.description, se.tutor_id, u.name, se.start_time, se.end_time,
		       se.price, se.max_students, se.status, se.created_at, se.updated_at
		FROM sessions se JOIN users u ON u.id = se.tutor_id
		WHERE se.id = ?
	`, id.String()).Scan(
		&idStr,
		&session.Title,
		&session.Description,
		&tutorStr,
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	session.ID = uuid.MustParse(idStr)
	session.TutorID = uuid.MustParse(tutorStr)

	if session.Students, err = s.sessionStudents(ctx, idStr); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) sessionStudents(ctx context.Context, sessionID string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM session_students WHERE session_id = ? ORDER BY enrolled_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []uuid.UUID{}
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		students = append(students, uuid.MustParse(idStr))
	}
	return students, rows.Err()
}

// ListSessionsForUser returns sessions where the user is the tutor or an
// enrolled student. Two queries total: one for the session rows, one for
// every enrollment across them.
func (s *SQLiteStore) ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT se.id, se.title, se.description, se.tutor_id, u.name, se.start_time, se.end_time,
		       se.price, se.max_students, se.status, se.created_at, se.updated_at
		FROM sessions se
		JOIN users u ON u.id = se.tutor_id
		LEFT JOIN session_students ss ON ss.session_id = se.id
		WHERE se.tutor_id = ? OR ss.user_id = ?
		ORDER BY se.id
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	index := make(map[string]int)
	for rows.Next() {
		var session models.Session
		var idStr, tutorStr string
		err := rows.Scan(
			&idStr,
			&session.Title,
			&session.Description,
			&tutorStr,
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
		session.ID = uuid.MustParse(idStr)
		session.TutorID = uuid.MustParse(tutorStr)
		session.Students = []uuid.UUID{}
		index[idStr] = len(sessions)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	args := make([]any, 0, len(sessions))
	placeholders := make([]string, 0, len(sessions))
	for idStr := range index {
		placeholders = append(placeholders, "?")
		args = append(args, idStr)
	}
	srows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id FROM session_students
		WHERE session_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY enrolled_at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer srows.Close()

	for srows.Next() {
		var sessStr, userStr string
		if err := srows.Scan(&sessStr, &userStr); err != nil {
			return nil, err
		}
		i := index[sessStr]
		sessions[i].Students = append(sessions[i].Students, uuid.MustParse(userStr))
	}
	return sessions, srows.Err()
}

// UpdateSession rewrites the mutable session fields.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, description = ?, start_time = ?, end_time = ?, price = ?, max_students = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, session.Title, session.Description, session.StartTime, session.EndTime,
		session.Price, session.MaxStudents, session.Status, session.UpdatedAt, session.ID.String())
	return err
}

// DeleteSession removes a session and its enrollments.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_students WHERE session_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// EnrollStudent atomically enrolls a student: capacity and balance are
// checked and the credit deduction applied inside one transaction, so two
// concurrent joins cannot oversell a session or overdraw an account.
func (s *SQLiteStore) EnrollStudent(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var price, maxStudents, enrolled int
	err = tx.QueryRowContext(ctx, `
		SELECT price, max_students,
		       (SELECT COUNT(*) FROM session_students WHERE session_id = sessions.id)
		FROM sessions WHERE id = ?
	`, sessionID.String()).Scan(&price, &maxStudents, &enrolled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var already int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM session_students WHERE session_id = ? AND user_id = ?
	`, sessionID.String(), userID.String()).Scan(&already); err != nil {
		return nil, 0, err
	}
	if already > 0 {
		return nil, 0, ErrAlreadyEnrolled
	}
	if enrolled >= maxStudents {
		return nil, 0, ErrSessionFull
	}

	var credits int
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID.String()).Scan(&credits); err != nil {
		return nil, 0, err
	}
	if credits < price {
		return nil, 0, ErrInsufficientCredits
	}

	remaining := credits - price
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET credits = ?, updated_at = ? WHERE id = ?
	`, remaining, time.Now().UTC(), userID.String()); err != nil {
		return nil, 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_students (session_id, user_id) VALUES (?, ?)
	`, sessionID.String(), userID.String()); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	return session, remaining, nil
}

// collectSkills scans skill rows produced by the standard skill SELECT.
func collectSkills(rows *sql.Rows) ([]models.Skill, error) {
	skills := []models.Skill{}
	for rows.Next() {
		var skill models.Skill
		var idStr, tutorStr, tags string
		err := rows.Scan(
			&idStr,
			&skill.Name,
			&skill.Category,
			&skill.Description,
			&skill.Level,
			&tags,
			&tutorStr,
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
		skill.ID = uuid.MustParse(idStr)
		skill.TutorID = uuid.MustParse(tutorStr)
		if err := json.Unmarshal([]byte(tags), &skill.Tags); err != nil {
			skill.Tags = nil
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

var _ DataStore = (*SQLiteStore)(nil)
