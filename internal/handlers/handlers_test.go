package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Yashvi2874/tradetalents/internal/api/middleware"
	"github.com/Yashvi2874/tradetalents/internal/auth"
	"github.com/Yashvi2874/tradetalents/internal/models"
	"github.com/Yashvi2874/tradetalents/internal/relay"
	"github.com/Yashvi2874/tradetalents/internal/store"
)

// fixture wires a Handler against a throwaway SQLite database and an
// in-memory relay.
type fixture struct {
	h     *Handler
	db    *store.SQLiteStore
	relay *relay.Relay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)

	rl := relay.New(zerolog.Nop())
	tokens := auth.NewTokenManager("test-secret")
	return &fixture{
		h:     NewHandler(db, nil, tokens, rl),
		db:    db,
		relay: rl,
	}
}

func (f *fixture) createUser(t *testing.T, email, role string, credits int) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Credits:      credits,
	}
	if err := f.db.CreateUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user
}

// request builds an authenticated JSON request with chi URL params.
func request(t *testing.T, method, target string, body any, user *models.User, params map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")

	ctx := r.Context()
	if user != nil {
		ctx = context.WithValue(ctx, middleware.UserContextKey, user)
	}
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	return r.WithContext(ctx)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.h.Register(rec, request(t, http.MethodPost, "/api/auth/register", RegisterRequest{
		Name: "Alice", Email: "alice@uni.edu", Password: "password123", Role: models.RoleTutor,
	}, nil, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[AuthResponse](t, rec)
	if resp.Token == "" {
		t.Fatal("no token issued")
	}
	if resp.User.Credits != models.StartingCredits {
		t.Fatalf("starting credits not granted: %d", resp.User.Credits)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatal("password material leaked in response")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing name", RegisterRequest{Email: "a@uni.edu", Password: "password123"}},
		{"bad email", RegisterRequest{Name: "A", Email: "not-an-email", Password: "password123"}},
		{"short password", RegisterRequest{Name: "A", Email: "a@uni.edu", Password: "short"}},
		{"bad role", RegisterRequest{Name: "A", Email: "a@uni.edu", Password: "password123", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.h.Register(rec, request(t, http.MethodPost, "/api/auth/register", tt.req, nil, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "dup@uni.edu", models.RoleStudent, 5)

	rec := httptest.NewRecorder()
	f.h.Register(rec, request(t, http.MethodPost, "/api/auth/register", RegisterRequest{
		Name: "Dup", Email: "dup@uni.edu", Password: "password123",
	}, nil, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice@uni.edu", models.RoleStudent, 5)

	rec := httptest.NewRecorder()
	f.h.Login(rec, request(t, http.MethodPost, "/api/auth/login", LoginRequest{
		Email: "alice@uni.edu", Password: "correct horse",
	}, nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decode[AuthResponse](t, rec).Token == "" {
		t.Fatal("no token issued")
	}

	rec = httptest.NewRecorder()
	f.h.Login(rec, request(t, http.MethodPost, "/api/auth/login", LoginRequest{
		Email: "alice@uni.edu", Password: "wrong",
	}, nil, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.Login(rec, request(t, http.MethodPost, "/api/auth/login", LoginRequest{
		Email: "nobody@uni.edu", Password: "correct horse",
	}, nil, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: expected 401, got %d", rec.Code)
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "alice@uni.edu", models.RoleStudent, 5)

	rec := httptest.NewRecorder()
	f.h.UpdateProfile(rec, request(t, http.MethodPut, "/api/users/profile", UpdateProfileRequest{
		Bio: "studying math",
	}, user, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[models.User](t, rec)
	if got.Bio != "studying math" {
		t.Fatalf("bio not updated: %+v", got)
	}
	if got.Name != user.Name {
		t.Fatalf("omitted field overwritten: %+v", got)
	}
}

func TestCreateSkillRequiresTutor(t *testing.T) {
	f := newFixture(t)
	student := f.createUser(t, "stud@uni.edu", models.RoleStudent, 5)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)

	body := SkillRequest{Name: "Calculus", Category: "math", Description: "limits", Level: models.LevelBeginner, Price: 2}

	rec := httptest.NewRecorder()
	f.h.CreateSkill(rec, request(t, http.MethodPost, "/api/skills", body, student, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.CreateSkill(rec, request(t, http.MethodPost, "/api/skills", body, tutor, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("tutor: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	skill := decode[models.Skill](t, rec)
	if skill.TutorID != tutor.ID || skill.TutorName != tutor.Name {
		t.Fatalf("tutor not attributed: %+v", skill)
	}
}

func TestUpdateSkillOwnership(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t, "owner@uni.edu", models.RoleTutor, 5)
	other := f.createUser(t, "other@uni.edu", models.RoleTutor, 5)

	skill := &models.Skill{
		Name: "Guitar", Category: "music", Description: "chords",
		Level: models.LevelBeginner, TutorID: owner.ID, TutorName: owner.Name,
	}
	if err := f.db.CreateSkill(context.Background(), skill); err != nil {
		t.Fatal(err)
	}
	params := map[string]string{"id": skill.ID.String()}

	rec := httptest.NewRecorder()
	f.h.UpdateSkill(rec, request(t, http.MethodPut, "/api/skills/"+skill.ID.String(), SkillRequest{Price: 9}, other, params))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner update: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.DeleteSkill(rec, request(t, http.MethodDelete, "/api/skills/"+skill.ID.String(), nil, other, params))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.UpdateSkill(rec, request(t, http.MethodPut, "/api/skills/"+skill.ID.String(), SkillRequest{Price: 9}, owner, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: expected 200, got %d", rec.Code)
	}
}

// recordingSink captures relay deliveries for one fake connection.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Deliver(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestCreateSessionBroadcastsCalendarUpdate(t *testing.T) {
	f := newFixture(t)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)

	sink := &recordingSink{}
	f.relay.Register("conn-1", "u1", "Watcher", sink)

	now := time.Now().UTC()
	rec := httptest.NewRecorder()
	f.h.CreateSession(rec, request(t, http.MethodPost, "/api/sessions", SessionRequest{
		Title: "Calc study group", Description: "weekly",
		StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour), Price: 1,
	}, tutor, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if n := sink.count(relay.EventCalendarUpdated); n != 1 {
		t.Fatalf("expected 1 calendar-updated broadcast, got %d", n)
	}
	session := decode[models.Session](t, rec)
	if session.MaxStudents != 10 {
		t.Fatalf("default capacity not applied: %d", session.MaxStudents)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)
	student := f.createUser(t, "stud@uni.edu", models.RoleStudent, 5)
	now := time.Now().UTC()

	rec := httptest.NewRecorder()
	f.h.CreateSession(rec, request(t, http.MethodPost, "/api/sessions", SessionRequest{
		Title: "X", Description: "y", StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
	}, student, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student create: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.CreateSession(rec, request(t, http.MethodPost, "/api/sessions", SessionRequest{
		Title: "X", Description: "y", StartTime: now.Add(2 * time.Hour), EndTime: now.Add(time.Hour),
	}, tutor, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted times: expected 400, got %d", rec.Code)
	}
}

func TestJoinSession(t *testing.T) {
	f := newFixture(t)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)
	student := f.createUser(t, "stud@uni.edu", models.RoleStudent, 5)

	now := time.Now().UTC()
	session := &models.Session{
		Title: "Calc", Description: "weekly", TutorID: tutor.ID,
		StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
		Price: 3, MaxStudents: 10,
	}
	if err := f.db.CreateSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	params := map[string]string{"id": session.ID.String()}

	rec := httptest.NewRecorder()
	f.h.JoinSession(rec, request(t, http.MethodPost, "/api/sessions/x/join", nil, tutor, params))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tutor join: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.JoinSession(rec, request(t, http.MethodPost, "/api/sessions/x/join", nil, student, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[JoinSessionResponse](t, rec)
	if resp.RemainingCredits != 2 {
		t.Fatalf("expected 2 credits remaining, got %d", resp.RemainingCredits)
	}

	rec = httptest.NewRecorder()
	f.h.JoinSession(rec, request(t, http.MethodPost, "/api/sessions/x/join", nil, student, params))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("double join: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.JoinSession(rec, request(t, http.MethodPost, "/api/sessions/x/join", nil, student,
		map[string]string{"id": "00000000-0000-0000-0000-000000000001"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session: expected 404, got %d", rec.Code)
	}
}

func TestGetSessionAccess(t *testing.T) {
	f := newFixture(t)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)
	outsider := f.createUser(t, "out@uni.edu", models.RoleStudent, 5)

	now := time.Now().UTC()
	session := &models.Session{
		Title: "Calc", Description: "weekly", TutorID: tutor.ID,
		StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour), MaxStudents: 10,
	}
	if err := f.db.CreateSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	params := map[string]string{"id": session.ID.String()}

	rec := httptest.NewRecorder()
	f.h.GetSession(rec, request(t, http.MethodGet, "/api/sessions/x", nil, outsider, params))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.GetSession(rec, request(t, http.MethodGet, "/api/sessions/x", nil, tutor, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("tutor: expected 200, got %d", rec.Code)
	}
}

func TestListSkillsQueryParams(t *testing.T) {
	f := newFixture(t)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)
	for i, name := range []string{"Calculus", "Guitar"} {
		skill := &models.Skill{
			Name: name, Category: []string{"math", "music"}[i], Description: "d",
			Level: models.LevelBeginner, TutorID: tutor.ID,
		}
		if err := f.db.CreateSkill(context.Background(), skill); err != nil {
			t.Fatal(err)
		}
	}

	rec := httptest.NewRecorder()
	f.h.ListSkills(rec, request(t, http.MethodGet, "/api/skills?category=music", nil, nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	skills := decode[[]models.Skill](t, rec)
	if len(skills) != 1 || skills[0].Name != "Guitar" {
		t.Fatalf("category filter not applied: %+v", skills)
	}
}

func TestAddUserSkill(t *testing.T) {
	f := newFixture(t)
	tutor := f.createUser(t, "tutor@uni.edu", models.RoleTutor, 5)
	student := f.createUser(t, "stud@uni.edu", models.RoleStudent, 5)

	skill := &models.Skill{
		Name: "Calculus", Category: "math", Description: "d",
		Level: models.LevelBeginner, TutorID: tutor.ID,
	}
	if err := f.db.CreateSkill(context.Background(), skill); err != nil {
		t.Fatal(err)
	}

	body := AddUserSkillRequest{SkillID: skill.ID.String()}
	rec := httptest.NewRecorder()
	f.h.AddUserSkill(rec, request(t, http.MethodPost, "/api/users/skills", body, student, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.h.AddUserSkill(rec, request(t, http.MethodPost, "/api/users/skills", body, student, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate attach: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.h.AddUserSkill(rec, request(t, http.MethodPost, "/api/users/skills",
		AddUserSkillRequest{SkillID: fmt.Sprintf("%036d", 1)}, student, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: expected 400, got %d", rec.Code)
	}
}
