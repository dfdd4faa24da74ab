package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
)

// AttemptStore is the in-memory attempt store.
type AttemptStore struct{ db *DB }

// Attempts returns the DB's attempt store.
func (db *DB) Attempts() *AttemptStore { return &AttemptStore{db: db} }

// insertAttempt enforces the same uniqueness rules as the attempts table.
// Caller holds db.mu.
func (db *DB) insertAttempt(a *model.Attempt) error {
	for _, existing := range db.attempts {
		if a.SessionID != nil && existing.SessionID != nil && *existing.SessionID == *a.SessionID {
			return repository.ErrDuplicate
		}
		if a.Kind == model.TestKindQuiz && existing.Kind == model.TestKindQuiz &&
			existing.StudentID == a.StudentID && existing.TestID == a.TestID {
			return repository.ErrDuplicate
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	db.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (s *AttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.insertAttempt(a)
}

func (s *AttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (s *AttemptStore) ListByStudent(_ context.Context, studentID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var all []model.Attempt
	for _, a := range s.db.attempts {
		if a.StudentID == studentID {
			all = append(all, *cloneAttempt(a))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return []model.Attempt{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (s *AttemptStore) Annotate(_ context.Context, id uuid.UUID, ann model.AttemptAnnotation) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.attempts[id]
	if !ok || a.AnalyzedAt != nil {
		return false, nil
	}
	band := ann.PredictedPerformance
	pct := ann.Percentile
	at := ann.AnalyzedAt
	a.Remediation = append([]byte{}, ann.Remediation...)
	a.PredictedPerformance = &band
	a.Percentile = &pct
	a.AnalyzedAt = &at
	return true, nil
}

func (s *AttemptStore) Percentile(_ context.Context, testID uuid.UUID, score float64) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var below, total int
	for _, a := range s.db.attempts {
		if a.TestID != testID {
			continue
		}
		total++
		if a.Score < score {
			below++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(below) * 100 / float64(total), nil
}
