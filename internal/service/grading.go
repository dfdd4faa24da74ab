package service

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// GradeResult is the deterministic outcome of grading one submission.
type GradeResult struct {
	Score    float64
	MaxScore float64
	Detailed []model.QuestionResult
	Time     model.TimeStats
}

// Grade scores answers against key. It is a pure function: the same inputs
// always produce the same result. Any answer referencing a question outside
// key rejects the whole submission with an *UnknownQuestionError.
//
// A correct answer earns the question's marks, NotAttempted earns 0 and any
// other answer loses the question's negative marks. The total is clamped at
// 0 only after every question has been summed. Marks and totals are kept at
// two decimals, the precision of the questions and attempts columns.
func Grade(answers []model.Answer, key model.AnswerKey) (*GradeResult, error) {
	seen := make(map[uuid.UUID]struct{}, len(answers))
	for i, a := range answers {
		if _, ok := key[a.QuestionID]; !ok {
			return nil, &UnknownQuestionError{QuestionID: a.QuestionID}
		}
		if _, dup := seen[a.QuestionID]; dup {
			return nil, fieldError(fmt.Sprintf("answers[%d].question_id", i), "question answered more than once")
		}
		seen[a.QuestionID] = struct{}{}
		if a.SelectedIndex < model.NotAttempted {
			return nil, fieldError(fmt.Sprintf("answers[%d].selected_index", i), "must be -1 or a valid option index")
		}
		if a.TimeTakenSec < 0 {
			return nil, fieldError(fmt.Sprintf("answers[%d].time_taken_sec", i), "must not be negative")
		}
	}

	res := &GradeResult{
		Detailed: make([]model.QuestionResult, 0, len(answers)),
		Time:     model.TimeStats{PerQuestion: make([]model.QuestionTime, 0, len(answers))},
	}
	res.MaxScore = maxScore(key)

	var raw float64
	for i, a := range answers {
		k := key[a.QuestionID]

		r := model.QuestionResult{
			Index:      i,
			QuestionID: a.QuestionID,
			Given:      a.SelectedIndex,
			Correct:    k.CorrectIndex,
		}
		switch {
		case a.SelectedIndex == k.CorrectIndex:
			r.IsCorrect = true
			r.MarksAwarded = RoundMarks(k.Marks)
		case a.SelectedIndex == model.NotAttempted:
			r.MarksAwarded = 0
		default:
			r.MarksAwarded = -RoundMarks(k.NegativeMarks)
		}
		raw += r.MarksAwarded
		res.Detailed = append(res.Detailed, r)

		res.Time.TotalSeconds += a.TimeTakenSec
		res.Time.PerQuestion = append(res.Time.PerQuestion, model.QuestionTime{
			QuestionID: a.QuestionID,
			Seconds:    a.TimeTakenSec,
			Difficulty: k.Difficulty,
		})
	}

	res.Score = max(RoundMarks(raw), 0)
	return res, nil
}

// maxScore sums marks in a fixed id order so the float result is stable.
func maxScore(key model.AnswerKey) float64 {
	ids := make([]uuid.UUID, 0, len(key))
	for id := range key {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	var total float64
	for _, id := range ids {
		total += RoundMarks(key[id].Marks)
	}
	return RoundMarks(total)
}

// RoundMarks rounds v to two decimals.
func RoundMarks(v float64) float64 {
	return math.Round(v*100) / 100
}
