package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// TestSessionRepository handles test session data access. Every state change
// is a conditional UPDATE so that concurrent requests cannot both win.
type TestSessionRepository struct {
	pool *pgxpool.Pool
}

// NewTestSessionRepository creates a new TestSessionRepository.
func NewTestSessionRepository(pool *pgxpool.Pool) *TestSessionRepository {
	return &TestSessionRepository{pool: pool}
}

const sessionColumns = `id, test_id, student_id, state, started_at, expires_at, submitted_at, submit_reason,
	infraction_count, infractions, allowed_actions, anti_cheat_policy, created_at, updated_at`

func scanSession(row pgx.Row) (*model.TestSession, error) {
	s := &model.TestSession{}
	err := row.Scan(&s.ID, &s.TestID, &s.StudentID, &s.State, &s.StartedAt, &s.ExpiresAt, &s.SubmittedAt,
		&s.SubmitReason, &s.InfractionCount, &s.Infractions, &s.AllowedActions, &s.AntiCheatPolicy,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

// Create inserts a session in the created state.
func (r *TestSessionRepository) Create(ctx context.Context, s *model.TestSession) error {
	s.State = model.SessionStateCreated
	s.Infractions = []model.Infraction{}
	return r.pool.QueryRow(ctx,
		`INSERT INTO test_sessions (test_id, student_id, state)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		s.TestID, s.StudentID, s.State,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID retrieves a session.
func (r *TestSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1`, id))
}

// ListByTest returns every session issued for a test, newest first.
func (r *TestSessionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE test_id = $1 ORDER BY created_at DESC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.TestSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Start moves a session from created to running.
// Returns ErrStateConflict if the session is no longer in the created state.
func (r *TestSessionRepository) Start(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time,
	actions model.AllowedActions, policy model.AntiCheatPolicy) (*model.TestSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE test_sessions
		 SET state = 'running', started_at = $2, expires_at = $3,
		     allowed_actions = $4, anti_cheat_policy = $5, updated_at = $2
		 WHERE id = $1 AND state = 'created'
		 RETURNING `+sessionColumns,
		id, startedAt, expiresAt, actions, policy))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrStateConflict
	}
	return s, err
}

// RecordInfraction appends an infraction and increments the counter in a
// single statement. When the new count reaches the policy's threshold the
// same statement moves the session to submitted.
// Returns ErrStateConflict if the session is not running or has expired.
func (r *TestSessionRepository) RecordInfraction(ctx context.Context, id uuid.UUID, inf model.Infraction, now time.Time) (*model.TestSession, error) {
	entry, err := json.Marshal([]model.Infraction{inf})
	if err != nil {
		return nil, fmt.Errorf("marshal infraction: %w", err)
	}

	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE test_sessions
		 SET infractions = infractions || $2::jsonb,
		     infraction_count = infraction_count + 1,
		     state = CASE WHEN infraction_count + 1 >= (anti_cheat_policy->>'max_infractions')::int
		                  THEN 'submitted' ELSE state END,
		     submitted_at = CASE WHEN infraction_count + 1 >= (anti_cheat_policy->>'max_infractions')::int
		                  THEN $3 ELSE submitted_at END,
		     submit_reason = CASE WHEN infraction_count + 1 >= (anti_cheat_policy->>'max_infractions')::int
		                  THEN 'infractions' ELSE submit_reason END,
		     updated_at = $3
		 WHERE id = $1 AND state = 'running' AND expires_at > $3
		 RETURNING `+sessionColumns,
		id, string(entry), now))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrStateConflict
	}
	return s, err
}

// SubmitWithAttempt moves a running session to submitted and records the
// graded attempt in the same transaction. The conditional update runs first,
// so a losing concurrent submitter inserts nothing.
// Returns ErrStateConflict if the session is not running or has expired.
func (r *TestSessionRepository) SubmitWithAttempt(ctx context.Context, id uuid.UUID, now time.Time, a *model.Attempt) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE test_sessions
			 SET state = 'submitted', submitted_at = $2, submit_reason = 'manual', updated_at = $2
			 WHERE id = $1 AND state = 'running' AND expires_at > $2`,
			id, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStateConflict
		}
		return insertAttempt(ctx, tx, a)
	})
}
