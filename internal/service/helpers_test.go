package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository/memstore"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	db       *memstore.DB
	clock    *fakeClock
	bank     *QuestionBank
	tests    *TestService
	sessions *TestSessionService
	attempts *AttemptService
	analysis *AnalysisService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	db := memstore.New()
	clock := newFakeClock()
	bank := NewQuestionBank(db.Tests(), nil, time.Hour, log)

	return &fixture{
		db:       db,
		clock:    clock,
		bank:     bank,
		tests:    NewTestService(db.Tests(), bank, log),
		sessions: NewTestSessionService(db.Sessions(), db.Attempts(), bank, db.Drafts(), db.Queue(), db.Events(), clock.Now, log),
		attempts: NewAttemptService(db.Attempts(), bank, db.Queue(), log),
		analysis: NewAnalysisService(db.Attempts(), bank, nil, clock.Now, log),
	}
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }

// createTest authors a three-question test worth 1 mark each with a 0.25
// penalty for wrong answers. Correct options are 0, 1 and 2.
func (f *fixture) createTest(t *testing.T, kind model.TestKind, rules model.ProctorRules) *model.Test {
	t.Helper()
	req := &model.CreateTestRequest{
		Title:           "Physics Mock 1",
		Kind:            kind,
		ExamType:        "JEE",
		DurationMinutes: 60,
		ProctorRules:    rules,
	}
	topics := []string{"Kinematics", "Optics", "Kinematics"}
	for i := 0; i < 3; i++ {
		req.Questions = append(req.Questions, model.CreateQuestionRequest{
			Text:          "Question",
			Options:       []string{"A", "B", "C", "D"},
			CorrectIndex:  intPtr(i),
			Marks:         floatPtr(1),
			NegativeMarks: floatPtr(0.25),
			Difficulty:    model.DifficultyMedium,
			Topic:         topics[i],
		})
	}
	test, err := f.tests.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	return test
}

// runningSession issues and starts a session for a fresh student.
func (f *fixture) runningSession(t *testing.T, test *model.Test) (sessionID, studentID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	studentID = uuid.New()
	sess, err := f.sessions.Issue(ctx, test.ID, studentID)
	require.NoError(t, err)
	_, err = f.sessions.Start(ctx, sess.ID, studentID)
	require.NoError(t, err)
	return sess.ID, studentID
}

func answer(q model.Question, selected, secs int) model.Answer {
	return model.Answer{QuestionID: q.ID, SelectedIndex: selected, TimeTakenSec: secs}
}
