package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
)

// TestStore is the in-memory test definition store.
type TestStore struct{ db *DB }

// Tests returns the DB's test store.
func (db *DB) Tests() *TestStore { return &TestStore{db: db} }

func (s *TestStore) Create(_ context.Context, t *model.Test) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	for i := range t.Questions {
		t.Questions[i].ID = uuid.New()
		t.Questions[i].TestID = t.ID
	}
	s.db.tests[t.ID] = cloneTest(t)
	return nil
}

func (s *TestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	t, ok := s.db.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTest(t), nil
}
