package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// AttemptRepository handles graded attempts. Attempts are never updated
// except for the single analysis annotation and are never deleted.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, student_id, test_id, session_id, kind, answers, score, max_score, detailed, time_stats,
	remediation, predicted_performance, percentile, analyzed_at, created_at`

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAttempt(ctx context.Context, q queryRower, a *model.Attempt) error {
	err := q.QueryRow(ctx,
		`INSERT INTO attempts (student_id, test_id, session_id, kind, answers, score, max_score, detailed, time_stats)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		a.StudentID, a.TestID, a.SessionID, a.Kind, a.Answers, a.Score, a.MaxScore, a.Detailed, a.TimeStats,
	).Scan(&a.ID, &a.CreatedAt)
	return mapErr(err)
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var remediation []byte
	err := row.Scan(&a.ID, &a.StudentID, &a.TestID, &a.SessionID, &a.Kind, &a.Answers, &a.Score, &a.MaxScore,
		&a.Detailed, &a.TimeStats, &remediation, &a.PredictedPerformance, &a.Percentile, &a.AnalyzedAt, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(remediation) > 0 {
		a.Remediation = remediation
	}
	return a, nil
}

// Create inserts an attempt. Returns ErrDuplicate when the student already
// has a quiz attempt for this test or the session already has an attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return insertAttempt(ctx, r.pool, a)
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// ListByStudent returns a page of a student's attempts, newest first, and the total count.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE student_id = $1`, studentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE student_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := make([]model.Attempt, 0, limit)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

// Annotate writes the analysis fields once. Reports false if the attempt was
// already annotated (or does not exist).
func (r *AttemptRepository) Annotate(ctx context.Context, id uuid.UUID, ann model.AttemptAnnotation) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET remediation = $2, predicted_performance = $3, percentile = $4, analyzed_at = $5
		 WHERE id = $1 AND analyzed_at IS NULL`,
		id, []byte(ann.Remediation), ann.PredictedPerformance, ann.Percentile, ann.AnalyzedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Percentile returns the share of the test's attempts (in percent) that
// scored strictly below score.
func (r *AttemptRepository) Percentile(ctx context.Context, testID uuid.UUID, score float64) (float64, error) {
	var below, total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE score < $2), COUNT(*) FROM attempts WHERE test_id = $1`,
		testID, score,
	).Scan(&below, &total)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(below) * 100 / float64(total), nil
}
