package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotAttempted is the SelectedIndex sentinel for a skipped question.
const NotAttempted = -1

// Answer is one graded input: the chosen option for a question.
type Answer struct {
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedIndex int       `json:"selected_index"`
	TimeTakenSec  int       `json:"time_taken_sec"`
}

// QuestionResult is the per-question grading record.
type QuestionResult struct {
	Index        int       `json:"index"`
	QuestionID   uuid.UUID `json:"question_id"`
	Given        int       `json:"given"`
	Correct      int       `json:"correct"`
	IsCorrect    bool      `json:"is_correct"`
	MarksAwarded float64   `json:"marks_awarded"`
}

// QuestionTime annotates a question's time with its declared difficulty.
type QuestionTime struct {
	QuestionID uuid.UUID  `json:"question_id"`
	Seconds    int        `json:"seconds"`
	Difficulty Difficulty `json:"difficulty"`
}

// TimeStats aggregates answer timing.
type TimeStats struct {
	TotalSeconds int            `json:"total_seconds"`
	PerQuestion  []QuestionTime `json:"per_question"`
}

// Attempt is an append-only record of a graded submission.
type Attempt struct {
	ID                   uuid.UUID        `json:"id"`
	StudentID            uuid.UUID        `json:"student_id"`
	TestID               uuid.UUID        `json:"test_id"`
	SessionID            *uuid.UUID       `json:"session_id,omitempty"`
	Kind                 TestKind         `json:"kind"`
	Answers              []Answer         `json:"answers"`
	Score                float64          `json:"score"`
	MaxScore             float64          `json:"max_score"`
	Detailed             []QuestionResult `json:"detailed"`
	TimeStats            TimeStats        `json:"time_stats"`
	Remediation          json.RawMessage  `json:"remediation,omitempty"`
	PredictedPerformance *string          `json:"predicted_performance,omitempty"`
	Percentile           *float64         `json:"percentile,omitempty"`
	AnalyzedAt           *time.Time       `json:"analyzed_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// SubmissionResult is returned to the student after grading.
type SubmissionResult struct {
	AttemptID     uuid.UUID        `json:"attempt_id"`
	Score         float64          `json:"score"`
	MaxScore      float64          `json:"max_score"`
	TimeStats     TimeStats        `json:"time_stats"`
	ResultsDetail []QuestionResult `json:"results_detail"`
}

// AttemptAnnotation is the single follow-up update written by analysis.
type AttemptAnnotation struct {
	Remediation          json.RawMessage
	PredictedPerformance string
	Percentile           float64
	AnalyzedAt           time.Time
}

// AnalysisJob is queued after an attempt is recorded.
type AnalysisJob struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}
