package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// DraftStore keeps autosaved answers in memory. TTLs are ignored.
type DraftStore struct{ db *DB }

// Drafts returns the DB's draft store.
func (db *DB) Drafts() *DraftStore { return &DraftStore{db: db} }

func (s *DraftStore) Save(_ context.Context, sessionID uuid.UUID, answers []model.Answer, _ time.Duration) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	d, ok := s.db.drafts[sessionID]
	if !ok {
		d = make(map[uuid.UUID]model.Answer)
		s.db.drafts[sessionID] = d
	}
	for _, a := range answers {
		d[a.QuestionID] = a
	}
	return nil
}

func (s *DraftStore) Load(_ context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]model.Answer, 0, len(s.db.drafts[sessionID]))
	for _, a := range s.db.drafts[sessionID] {
		out = append(out, a)
	}
	return out, nil
}

func (s *DraftStore) Clear(_ context.Context, sessionID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.drafts, sessionID)
	return nil
}

// Queue records enqueued attempt ids.
type Queue struct{ db *DB }

// Queue returns the DB's analysis queue.
func (db *DB) Queue() *Queue { return &Queue{db: db} }

func (q *Queue) Enqueue(_ context.Context, attemptID uuid.UUID) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	q.db.queue = append(q.db.queue, attemptID)
	return nil
}

// Enqueued returns every attempt id queued so far.
func (q *Queue) Enqueued() []uuid.UUID {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	return append([]uuid.UUID{}, q.db.queue...)
}

// Events records published proctor events.
type Events struct{ db *DB }

// Events returns the DB's event recorder.
func (db *DB) Events() *Events { return &Events{db: db} }

func (e *Events) Publish(_ context.Context, ev model.ProctorEvent) error {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	e.db.events = append(e.db.events, ev)
	return nil
}

// Published returns every event published so far.
func (e *Events) Published() []model.ProctorEvent {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	return append([]model.ProctorEvent{}, e.db.events...)
}
