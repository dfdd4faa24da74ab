package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
)

// SessionStore is the in-memory test session store.
type SessionStore struct{ db *DB }

// Sessions returns the DB's session store.
func (db *DB) Sessions() *SessionStore { return &SessionStore{db: db} }

func (s *SessionStore) Create(_ context.Context, sess *model.TestSession) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	sess.ID = uuid.New()
	sess.State = model.SessionStateCreated
	sess.Infractions = []model.Infraction{}
	sess.CreatedAt = time.Now()
	sess.UpdatedAt = sess.CreatedAt
	s.db.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.TestSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	sess, ok := s.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) ListByTest(_ context.Context, testID uuid.UUID) ([]model.TestSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []model.TestSession
	for _, sess := range s.db.sessions {
		if sess.TestID == testID {
			out = append(out, *cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) Start(_ context.Context, id uuid.UUID, startedAt, expiresAt time.Time,
	actions model.AllowedActions, policy model.AntiCheatPolicy) (*model.TestSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	sess, ok := s.db.sessions[id]
	if !ok || sess.State != model.SessionStateCreated {
		return nil, repository.ErrStateConflict
	}
	sess.State = model.SessionStateRunning
	sess.StartedAt = &startedAt
	sess.ExpiresAt = &expiresAt
	sess.AllowedActions = &actions
	sess.AntiCheatPolicy = &policy
	sess.UpdatedAt = startedAt
	return cloneSession(sess), nil
}

func (s *SessionStore) RecordInfraction(_ context.Context, id uuid.UUID, inf model.Infraction, now time.Time) (*model.TestSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	sess, ok := s.db.sessions[id]
	if !ok || !runningAt(sess, now) {
		return nil, repository.ErrStateConflict
	}
	sess.Infractions = append(sess.Infractions, inf)
	sess.InfractionCount++
	if sess.AntiCheatPolicy != nil && sess.InfractionCount >= sess.AntiCheatPolicy.MaxInfractions {
		reason := model.SubmitReasonInfractions
		sess.State = model.SessionStateSubmitted
		sess.SubmittedAt = &now
		sess.SubmitReason = &reason
	}
	sess.UpdatedAt = now
	return cloneSession(sess), nil
}

func (s *SessionStore) SubmitWithAttempt(_ context.Context, id uuid.UUID, now time.Time, a *model.Attempt) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	sess, ok := s.db.sessions[id]
	if !ok || !runningAt(sess, now) {
		return repository.ErrStateConflict
	}
	if err := s.db.insertAttempt(a); err != nil {
		return err
	}
	reason := model.SubmitReasonManual
	sess.State = model.SessionStateSubmitted
	sess.SubmittedAt = &now
	sess.SubmitReason = &reason
	sess.UpdatedAt = now
	return nil
}

func runningAt(sess *model.TestSession, now time.Time) bool {
	return sess.State == model.SessionStateRunning && sess.ExpiresAt != nil && sess.ExpiresAt.After(now)
}
