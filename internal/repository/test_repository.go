package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// TestRepository handles test definitions and their questions.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// Create inserts a test and all of its questions in one transaction.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO tests (author_id, title, kind, exam_type, duration_minutes,
			                    max_infractions, require_full_screen, allow_tab_switch, allow_blur)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, created_at, updated_at`,
			t.AuthorID, t.Title, t.Kind, t.ExamType, t.DurationMinutes,
			t.ProctorRules.MaxInfractions, t.ProctorRules.RequireFullScreen,
			t.ProctorRules.AllowTabSwitch, t.ProctorRules.AllowBlur,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert test: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range t.Questions {
			q := &t.Questions[i]
			q.TestID = t.ID
			batch.Queue(
				`INSERT INTO questions (test_id, position, text, options, correct_index,
				                        marks, negative_marks, difficulty, topic, explanation)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 RETURNING id`,
				q.TestID, q.Position, q.Text, q.Options, q.CorrectIndex,
				q.Marks, q.NegativeMarks, q.Difficulty, q.Topic, q.Explanation,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&q.ID)
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a test with its questions ordered by position.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, author_id, title, kind, exam_type, duration_minutes,
		        max_infractions, require_full_screen, allow_tab_switch, allow_blur,
		        created_at, updated_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.AuthorID, &t.Title, &t.Kind, &t.ExamType, &t.DurationMinutes,
		&t.ProctorRules.MaxInfractions, &t.ProctorRules.RequireFullScreen,
		&t.ProctorRules.AllowTabSwitch, &t.ProctorRules.AllowBlur,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, position, text, options, correct_index,
		        marks, negative_marks, difficulty, topic, explanation
		 FROM questions WHERE test_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Position, &q.Text, &q.Options, &q.CorrectIndex,
			&q.Marks, &q.NegativeMarks, &q.Difficulty, &q.Topic, &q.Explanation); err != nil {
			return nil, err
		}
		t.Questions = append(t.Questions, q)
	}
	return t, rows.Err()
}
