package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/handler"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository/memstore"
	"github.com/rurallearn/rurallearn-backend/internal/router"
	"github.com/rurallearn/rurallearn-backend/internal/service"
	"github.com/rurallearn/rurallearn-backend/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

type server struct {
	t      *testing.T
	engine *gin.Engine
	auth   *service.AuthService
	db     *memstore.DB
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{
		GinMode:         gin.TestMode,
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}

	db := memstore.New()
	bank := service.NewQuestionBank(db.Tests(), nil, time.Hour, log)
	authSvc := service.NewAuthService(cfg, db.Users(), time.Now, log)
	testSvc := service.NewTestService(db.Tests(), bank, log)
	sessionSvc := service.NewTestSessionService(db.Sessions(), db.Attempts(), bank, db.Drafts(), db.Queue(), db.Events(), time.Now, log)
	attemptSvc := service.NewAttemptService(db.Attempts(), bank, db.Queue(), log)

	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc, log),
		Test:          handler.NewTestHandler(testSvc, sessionSvc, log),
		StudentPortal: handler.NewStudentPortalHandler(testSvc, sessionSvc, attemptSvc, log),
		Monitor:       handler.NewMonitorHandler(nil, sessionSvc, log),
		WS:            handler.NewWSHandler(sessionSvc, log, nil),
		System:        handler.NewSystemHandler(map[string]handler.Pinger{"postgres": func(context.Context) error { return nil }}, nil, log),
	}

	return &server{
		t:      t,
		engine: router.SetupRouter(authSvc, handlers, nil, cfg, log),
		auth:   authSvc,
		db:     db,
	}
}

func (s *server) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (s *server) register(name, email string, role model.Role) *model.LoginResponse {
	s.t.Helper()
	res, err := s.auth.Register(context.Background(), name, email, "password123", role)
	require.NoError(s.t, err)
	return res
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *server) createMock(teacherToken string, maxInfractions int) *model.Test {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/teacher/tests", teacherToken, gin.H{
		"title":            "Chemistry Mock",
		"kind":             "mock",
		"exam_type":        "NEET",
		"duration_minutes": 30,
		"proctor_rules":    gin.H{"max_infractions": maxInfractions},
		"questions": []gin.H{
			{"text": "Q1", "options": []string{"a", "b", "c"}, "correct_index": 1, "topic": "Organic"},
			{"text": "Q2", "options": []string{"a", "b"}, "correct_index": 0, "marks": 2, "negative_marks": 0.5, "topic": "Physical"},
		},
	})
	require.Equal(s.t, http.StatusCreated, code, env.Error)
	return decode[struct{ Test *model.Test }](s.t, env.Data).Test
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)

	code, env := s.do(http.MethodPost, "/api/v1/auth/signup", "", gin.H{
		"name": "Ravi", "email": "ravi@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/signup", "", gin.H{
		"name": "Ravi", "email": "RAVI@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "EMAIL_TAKEN", env.Error.Code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ravi@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ravi@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	login := decode[model.LoginResponse](t, env.Data)
	assert.Equal(t, model.RoleStudent, login.User.Role)

	code, env = s.do(http.MethodGet, "/api/v1/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "ravi@example.com")
	assert.NotContains(t, string(env.Data), "password")

	code, env = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	pair := decode[model.TokenPair](t, env.Data)
	assert.NotEmpty(t, pair.AccessToken)

	code, env = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", env.Error.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/logout", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthValidationAndTokens(t *testing.T) {
	s := newServer(t)

	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "email")
	assert.Contains(t, env.Error.Fields, "password")

	code, env = s.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_REQUIRED", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/v1/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)

	student := s.register("Meera", "meera@example.com", model.RoleStudent)
	code, env = s.do(http.MethodGet, "/api/v1/auth/me", student.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)
}

func TestRoleGates(t *testing.T) {
	s := newServer(t)
	student := s.register("Meera", "meera@example.com", model.RoleStudent)
	teacher := s.register("Mr. Das", "das@example.com", model.RoleTeacher)

	code, env := s.do(http.MethodPost, "/api/v1/teacher/tests", student.AccessToken, gin.H{})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "TEACHER_ACCESS_ONLY", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/v1/student/attempts", teacher.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "STUDENT_ACCESS_ONLY", env.Error.Code)
}

func TestProctoredSessionFlow(t *testing.T) {
	s := newServer(t)
	teacher := s.register("Mr. Das", "das@example.com", model.RoleTeacher)
	student := s.register("Meera", "meera@example.com", model.RoleStudent)
	test := s.createMock(teacher.AccessToken, 2)

	code, env := s.do(http.MethodGet, "/api/v1/student/tests/"+test.ID.String(), student.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "correct_index")

	code, env = s.do(http.MethodPost, "/api/v1/student/tests/"+test.ID.String()+"/sessions", student.AccessToken, nil)
	require.Equal(t, http.StatusCreated, code)
	sess := decode[struct{ Session *model.TestSession }](t, env.Data).Session
	base := "/api/v1/student/sessions/" + sess.ID.String()

	code, env = s.do(http.MethodPost, base+"/infractions", student.AccessToken, gin.H{"type": "tab_switch"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_SESSION_STATE", env.Error.Code)

	code, env = s.do(http.MethodPost, base+"/start", student.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	started := decode[model.StartSessionResponse](t, env.Data)
	assert.Equal(t, 2, started.AntiCheatPolicy.MaxInfractions)

	other := s.register("Arjun", "arjun@example.com", model.RoleStudent)
	code, env = s.do(http.MethodGet, base, other.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ACCESS_DENIED", env.Error.Code)

	code, env = s.do(http.MethodPost, base+"/infractions", student.AccessToken, gin.H{"type": "screenshot"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error.Fields, "type")

	code, env = s.do(http.MethodPut, base+"/answers", student.AccessToken, gin.H{
		"answers": []gin.H{{"question_id": test.Questions[1].ID, "selected_index": 0, "time_taken_sec": 12}},
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(http.MethodPost, base+"/infractions", student.AccessToken, gin.H{"type": "tab_switch"})
	require.Equal(t, http.StatusOK, code)
	first := decode[model.InfractionResponse](t, env.Data)
	assert.False(t, first.AutoSubmitted)

	code, env = s.do(http.MethodPost, base+"/infractions", student.AccessToken, gin.H{"type": "window_blur"})
	require.Equal(t, http.StatusOK, code)
	second := decode[model.InfractionResponse](t, env.Data)
	assert.True(t, second.AutoSubmitted)
	assert.Equal(t, 2, second.InfractionCount)

	code, env = s.do(http.MethodPost, base+"/submit", student.AccessToken, gin.H{"answers": []gin.H{}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_SESSION_STATE", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/v1/student/attempts", student.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	attempts := decode[struct{ Attempts []model.Attempt }](t, env.Data).Attempts
	require.Len(t, attempts, 1)
	assert.Equal(t, 2.0, attempts[0].Score)

	code, env = s.do(http.MethodGet, "/api/v1/teacher/tests/"+test.ID.String()+"/sessions", teacher.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"state":"submitted"`)
}

func TestSubmitSession(t *testing.T) {
	s := newServer(t)
	teacher := s.register("Mr. Das", "das@example.com", model.RoleTeacher)
	student := s.register("Meera", "meera@example.com", model.RoleStudent)
	test := s.createMock(teacher.AccessToken, 3)

	_, env := s.do(http.MethodPost, "/api/v1/student/tests/"+test.ID.String()+"/sessions", student.AccessToken, nil)
	sess := decode[struct{ Session *model.TestSession }](t, env.Data).Session
	base := "/api/v1/student/sessions/" + sess.ID.String()
	code, _ := s.do(http.MethodPost, base+"/start", student.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodPost, base+"/submit", student.AccessToken, gin.H{
		"answers": []gin.H{{"question_id": uuid.New(), "selected_index": 0}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "UNKNOWN_QUESTION", env.Error.Code)

	code, env = s.do(http.MethodPost, base+"/submit", student.AccessToken, gin.H{
		"answers": []gin.H{{"question_id": test.Questions[0].ID}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error.Fields, "answers[0].selected_index")

	code, env = s.do(http.MethodPost, base+"/submit", student.AccessToken, gin.H{
		"answers": []gin.H{
			{"question_id": test.Questions[0].ID, "selected_index": 1, "time_taken_sec": 30},
			{"question_id": test.Questions[1].ID, "selected_index": 1, "time_taken_sec": 45},
		},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	res := decode[model.SubmissionResult](t, env.Data)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
	assert.Equal(t, 3.0, res.MaxScore)
	assert.Equal(t, 75, res.TimeStats.TotalSeconds)
	assert.Len(t, res.ResultsDetail, 2)

	code, env = s.do(http.MethodPost, base+"/submit", student.AccessToken, gin.H{"answers": []gin.H{}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_SESSION_STATE", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/v1/student/attempts/"+res.AttemptID.String(), student.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), res.AttemptID.String())
}

func TestQuizSubmission(t *testing.T) {
	s := newServer(t)
	teacher := s.register("Mr. Das", "das@example.com", model.RoleTeacher)
	student := s.register("Meera", "meera@example.com", model.RoleStudent)

	code, env := s.do(http.MethodPost, "/api/v1/teacher/tests", teacher.AccessToken, gin.H{
		"title": "Quick Quiz", "kind": "quiz", "duration_minutes": 10,
		"questions": []gin.H{{"text": "Q", "options": []string{"x", "y"}, "correct_index": 1}},
	})
	require.Equal(t, http.StatusCreated, code)
	quiz := decode[struct{ Test *model.Test }](t, env.Data).Test

	path := "/api/v1/student/quizzes/" + quiz.ID.String() + "/submit"
	body := gin.H{"answers": []gin.H{{"question_id": quiz.Questions[0].ID, "selected_index": 1}}}

	code, env = s.do(http.MethodPost, path, student.AccessToken, body)
	require.Equal(t, http.StatusCreated, code)
	assert.InDelta(t, 1.0, decode[model.SubmissionResult](t, env.Data).Score, 1e-9)

	code, env = s.do(http.MethodPost, path, student.AccessToken, body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_SUBMITTED", env.Error.Code)
}

func TestCreateTest_Validation(t *testing.T) {
	s := newServer(t)
	teacher := s.register("Mr. Das", "das@example.com", model.RoleTeacher)

	code, env := s.do(http.MethodPost, "/api/v1/teacher/tests", teacher.AccessToken, gin.H{
		"title": "Bad", "kind": "mock", "duration_minutes": 10,
		"questions": []gin.H{{"text": "Q", "options": []string{"x", "y"}, "correct_index": 5}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestMalformedIDAndNotFound(t *testing.T) {
	s := newServer(t)
	student := s.register("Meera", "meera@example.com", model.RoleStudent)

	code, env := s.do(http.MethodGet, "/api/v1/student/sessions/not-a-uuid", student.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	code, env = s.do(http.MethodPost, "/api/v1/student/sessions/"+uuid.NewString()+"/start", student.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	code, env := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"postgres":"up"`)
}
