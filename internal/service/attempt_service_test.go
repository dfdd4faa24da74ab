package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitQuiz_OncePerStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quiz := f.createTest(t, model.TestKindQuiz, model.ProctorRules{})
	student := uuid.New()
	q := quiz.Questions

	res, err := f.attempts.SubmitQuiz(ctx, quiz.ID, student, []model.Answer{
		answer(q[0], 0, 5),
		answer(q[1], 1, 5),
		answer(q[2], 0, 5),
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.75, res.Score, 1e-9)
	assert.Equal(t, []uuid.UUID{res.AttemptID}, f.db.Queue().Enqueued())

	_, err = f.attempts.SubmitQuiz(ctx, quiz.ID, student, nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = f.attempts.SubmitQuiz(ctx, quiz.ID, uuid.New(), nil)
	assert.NoError(t, err)
}

func TestSubmitQuiz_RejectsMockAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mock := f.createTest(t, model.TestKindMock, model.ProctorRules{})

	_, err := f.attempts.SubmitQuiz(ctx, mock.ID, uuid.New(), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "quiz_id")

	_, err = f.attempts.SubmitQuiz(ctx, uuid.New(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttemptGet_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quiz := f.createTest(t, model.TestKindQuiz, model.ProctorRules{})
	student := uuid.New()

	res, err := f.attempts.SubmitQuiz(ctx, quiz.ID, student, nil)
	require.NoError(t, err)

	a, err := f.attempts.Get(ctx, res.AttemptID, student)
	require.NoError(t, err)
	assert.Equal(t, quiz.ID, a.TestID)

	_, err = f.attempts.Get(ctx, res.AttemptID, uuid.New())
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.attempts.Get(ctx, uuid.New(), student)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttemptList_Paginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := uuid.New()
	for i := 0; i < 5; i++ {
		quiz := f.createTest(t, model.TestKindQuiz, model.ProctorRules{})
		_, err := f.attempts.SubmitQuiz(ctx, quiz.ID, student, nil)
		require.NoError(t, err)
	}

	page, pg, err := f.attempts.List(ctx, student, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 2, pg.Page)
	assert.Equal(t, 5, pg.TotalItems)
	assert.Equal(t, 3, pg.TotalPages)

	last, _, err := f.attempts.List(ctx, student, 3, 2)
	require.NoError(t, err)
	assert.Len(t, last, 1)

	none, pg, err := f.attempts.List(ctx, uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
	assert.Equal(t, 1, pg.Page)
	assert.Equal(t, 10, pg.PerPage)
}
