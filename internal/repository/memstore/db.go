// Package memstore implements the service store interfaces in process
// memory. Conditional writes keep the same compare-and-swap semantics as the
// PostgreSQL repositories, so service tests exercise the real race rules.
package memstore

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// DB is a set of in-memory tables guarded by one mutex.
type DB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*model.User
	tests    map[uuid.UUID]*model.Test
	sessions map[uuid.UUID]*model.TestSession
	attempts map[uuid.UUID]*model.Attempt
	drafts   map[uuid.UUID]map[uuid.UUID]model.Answer
	queue    []uuid.UUID
	events   []model.ProctorEvent
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		users:    make(map[uuid.UUID]*model.User),
		tests:    make(map[uuid.UUID]*model.Test),
		sessions: make(map[uuid.UUID]*model.TestSession),
		attempts: make(map[uuid.UUID]*model.Attempt),
		drafts:   make(map[uuid.UUID]map[uuid.UUID]model.Answer),
	}
}

func cloneSession(s *model.TestSession) *model.TestSession {
	c := *s
	c.Infractions = append([]model.Infraction{}, s.Infractions...)
	if s.AllowedActions != nil {
		a := *s.AllowedActions
		c.AllowedActions = &a
	}
	if s.AntiCheatPolicy != nil {
		p := *s.AntiCheatPolicy
		c.AntiCheatPolicy = &p
	}
	return &c
}

func cloneTest(t *model.Test) *model.Test {
	c := *t
	c.Questions = make([]model.Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Options = append([]string{}, q.Options...)
		c.Questions[i] = q
	}
	return &c
}

func cloneAttempt(a *model.Attempt) *model.Attempt {
	c := *a
	c.Answers = append([]model.Answer{}, a.Answers...)
	c.Detailed = append([]model.QuestionResult{}, a.Detailed...)
	c.TimeStats.PerQuestion = append([]model.QuestionTime{}, a.TimeStats.PerQuestion...)
	return &c
}
