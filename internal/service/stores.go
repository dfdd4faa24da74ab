package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

// UserStore is the identity store.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error
	RotateRefreshTokenHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error)
}

// TestStore holds test definitions with their questions.
type TestStore interface {
	Create(ctx context.Context, t *model.Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

// SessionStore persists test sessions. Start, RecordInfraction and
// SubmitWithAttempt are conditional writes that return
// repository.ErrStateConflict when the session is not in the source state.
type SessionStore interface {
	Create(ctx context.Context, s *model.TestSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestSession, error)
	Start(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time, actions model.AllowedActions, policy model.AntiCheatPolicy) (*model.TestSession, error)
	RecordInfraction(ctx context.Context, id uuid.UUID, inf model.Infraction, now time.Time) (*model.TestSession, error)
	SubmitWithAttempt(ctx context.Context, id uuid.UUID, now time.Time, a *model.Attempt) error
}

// AttemptStore persists graded attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]model.Attempt, int, error)
	Annotate(ctx context.Context, id uuid.UUID, ann model.AttemptAnnotation) (bool, error)
	Percentile(ctx context.Context, testID uuid.UUID, score float64) (float64, error)
}

// DraftStore keeps autosaved answers of running sessions.
type DraftStore interface {
	Save(ctx context.Context, sessionID uuid.UUID, answers []model.Answer, ttl time.Duration) error
	Load(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	Clear(ctx context.Context, sessionID uuid.UUID) error
}

// AnalysisQueue schedules best-effort attempt analysis.
type AnalysisQueue interface {
	Enqueue(ctx context.Context, attemptID uuid.UUID) error
}

// EventPublisher broadcasts proctoring events to monitors.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.ProctorEvent) error
}

// AnswerKeySource resolves the authoritative answer key of a test.
type AnswerKeySource interface {
	AnswerKey(ctx context.Context, testID uuid.UUID) (model.AnswerKey, error)
}
