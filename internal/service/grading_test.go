package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeQuestionKey() ([]uuid.UUID, model.AnswerKey) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := model.AnswerKey{
		ids[0]: {CorrectIndex: 0, Marks: 1, NegativeMarks: 0.25, Difficulty: model.DifficultyEasy, Topic: "Algebra"},
		ids[1]: {CorrectIndex: 1, Marks: 1, NegativeMarks: 0.25, Difficulty: model.DifficultyMedium, Topic: "Algebra"},
		ids[2]: {CorrectIndex: 2, Marks: 1, NegativeMarks: 0.25, Difficulty: model.DifficultyHard, Topic: "Geometry"},
	}
	return ids, key
}

func TestGrade_CorrectWrongUnattempted(t *testing.T) {
	ids, key := threeQuestionKey()
	answers := []model.Answer{
		{QuestionID: ids[0], SelectedIndex: 0, TimeTakenSec: 30},
		{QuestionID: ids[1], SelectedIndex: 3, TimeTakenSec: 45},
		{QuestionID: ids[2], SelectedIndex: model.NotAttempted, TimeTakenSec: 5},
	}

	res, err := Grade(answers, key)
	require.NoError(t, err)

	assert.InDelta(t, 0.75, res.Score, 1e-9)
	assert.Equal(t, 3.0, res.MaxScore)
	require.Len(t, res.Detailed, 3)

	assert.Equal(t, model.QuestionResult{Index: 0, QuestionID: ids[0], Given: 0, Correct: 0, IsCorrect: true, MarksAwarded: 1}, res.Detailed[0])
	assert.Equal(t, model.QuestionResult{Index: 1, QuestionID: ids[1], Given: 3, Correct: 1, IsCorrect: false, MarksAwarded: -0.25}, res.Detailed[1])
	assert.Equal(t, model.QuestionResult{Index: 2, QuestionID: ids[2], Given: -1, Correct: 2, IsCorrect: false, MarksAwarded: 0}, res.Detailed[2])

	assert.Equal(t, 80, res.Time.TotalSeconds)
	require.Len(t, res.Time.PerQuestion, 3)
	assert.Equal(t, model.QuestionTime{QuestionID: ids[2], Seconds: 5, Difficulty: model.DifficultyHard}, res.Time.PerQuestion[2])
}

func TestGrade_ClampsNegativeTotalToZero(t *testing.T) {
	ids, key := threeQuestionKey()
	answers := []model.Answer{
		{QuestionID: ids[0], SelectedIndex: 3},
		{QuestionID: ids[1], SelectedIndex: 3},
		{QuestionID: ids[2], SelectedIndex: 3},
	}

	res, err := Grade(answers, key)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	for _, r := range res.Detailed {
		assert.Equal(t, -0.25, r.MarksAwarded)
	}
}

func TestGrade_NegativeMarksOffsetBeforeClamp(t *testing.T) {
	ids, key := threeQuestionKey()
	answers := []model.Answer{
		{QuestionID: ids[0], SelectedIndex: 0},
		{QuestionID: ids[1], SelectedIndex: 0},
		{QuestionID: ids[2], SelectedIndex: 0},
	}

	res, err := Grade(answers, key)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
}

func TestGrade_Deterministic(t *testing.T) {
	ids, key := threeQuestionKey()
	answers := []model.Answer{
		{QuestionID: ids[2], SelectedIndex: 2, TimeTakenSec: 12},
		{QuestionID: ids[0], SelectedIndex: 1, TimeTakenSec: 7},
	}

	first, err := Grade(answers, key)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Grade(answers, key)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGrade_UnknownQuestionRejectsWholeSubmission(t *testing.T) {
	ids, key := threeQuestionKey()
	stranger := uuid.New()
	answers := []model.Answer{
		{QuestionID: ids[0], SelectedIndex: 0},
		{QuestionID: stranger, SelectedIndex: 1},
	}

	res, err := Grade(answers, key)
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrUnknownQuestion)

	var uq *UnknownQuestionError
	require.True(t, errors.As(err, &uq))
	assert.Equal(t, stranger, uq.QuestionID)
}

func TestGrade_RejectsMalformedAnswers(t *testing.T) {
	ids, key := threeQuestionKey()

	tests := []struct {
		name    string
		answers []model.Answer
		field   string
	}{
		{
			name: "duplicate question",
			answers: []model.Answer{
				{QuestionID: ids[0], SelectedIndex: 0},
				{QuestionID: ids[0], SelectedIndex: 1},
			},
			field: "answers[1].question_id",
		},
		{
			name:    "index below sentinel",
			answers: []model.Answer{{QuestionID: ids[1], SelectedIndex: -2}},
			field:   "answers[0].selected_index",
		},
		{
			name:    "negative time",
			answers: []model.Answer{{QuestionID: ids[1], SelectedIndex: 1, TimeTakenSec: -1}},
			field:   "answers[0].time_taken_sec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Grade(tt.answers, key)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestGrade_EmptySubmission(t *testing.T) {
	_, key := threeQuestionKey()

	res, err := Grade(nil, key)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 3.0, res.MaxScore)
	assert.Empty(t, res.Detailed)
	assert.Equal(t, 0, res.Time.TotalSeconds)
}

func TestGrade_RoundsToStoredPrecision(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := model.AnswerKey{
		ids[0]: {CorrectIndex: 0, Marks: 1, NegativeMarks: 0.333},
		ids[1]: {CorrectIndex: 0, Marks: 1, NegativeMarks: 0.333},
		ids[2]: {CorrectIndex: 0, Marks: 1, NegativeMarks: 0.333},
	}
	answers := []model.Answer{
		{QuestionID: ids[0], SelectedIndex: 0},
		{QuestionID: ids[1], SelectedIndex: 0},
		{QuestionID: ids[2], SelectedIndex: 1},
	}

	res, err := Grade(answers, key)
	require.NoError(t, err)
	assert.Equal(t, -0.33, res.Detailed[2].MarksAwarded)
	assert.Equal(t, 1.67, res.Score)
	assert.Equal(t, 3.0, res.MaxScore)
}
