package model

import (
	"time"

	"github.com/google/uuid"
)

// TestKind distinguishes proctored mock tests from directly submitted quizzes.
type TestKind string

const (
	TestKindMock TestKind = "mock"
	TestKindQuiz TestKind = "quiz"
)

// Difficulty is a question's declared difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ProctorRules are the per-test anti-cheat overrides. Nil fields fall back
// to the platform defaults when a session starts.
type ProctorRules struct {
	MaxInfractions    *int  `json:"max_infractions,omitempty" binding:"omitempty,min=1,max=20"`
	RequireFullScreen *bool `json:"require_full_screen,omitempty"`
	AllowTabSwitch    *bool `json:"allow_tab_switch,omitempty"`
	AllowBlur         *bool `json:"allow_blur,omitempty"`
}

// Test is a test definition together with its question set.
type Test struct {
	ID              uuid.UUID    `json:"id"`
	AuthorID        uuid.UUID    `json:"author_id"`
	Title           string       `json:"title"`
	Kind            TestKind     `json:"kind"`
	ExamType        string       `json:"exam_type"`
	DurationMinutes int          `json:"duration_minutes"`
	ProctorRules    ProctorRules `json:"proctor_rules"`
	Questions       []Question   `json:"questions,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Question is a single multiple-choice question including its answer.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	TestID        uuid.UUID  `json:"test_id"`
	Position      int        `json:"position"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectIndex  int        `json:"correct_index"`
	Marks         float64    `json:"marks"`
	NegativeMarks float64    `json:"negative_marks"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic"`
	Explanation   string     `json:"explanation,omitempty"`
}

// CreateTestRequest is the payload a teacher sends to author a test.
type CreateTestRequest struct {
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	Kind            TestKind                `json:"kind" binding:"required,oneof=mock quiz"`
	ExamType        string                  `json:"exam_type" binding:"omitempty,max=50"`
	DurationMinutes int                     `json:"duration_minutes" binding:"required,min=1,max=600"`
	ProctorRules    ProctorRules            `json:"proctor_rules"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,max=300,dive"`
}

// CreateQuestionRequest describes one question inside CreateTestRequest.
type CreateQuestionRequest struct {
	Text          string     `json:"text" binding:"required,max=5000"`
	Options       []string   `json:"options" binding:"required,min=2,max=10,dive,required,max=1000"`
	CorrectIndex  *int       `json:"correct_index" binding:"required,min=0"`
	Marks         *float64   `json:"marks" binding:"omitempty,gt=0"`
	NegativeMarks *float64   `json:"negative_marks" binding:"omitempty,min=0"`
	Difficulty    Difficulty `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Topic         string     `json:"topic" binding:"omitempty,max=100"`
	Explanation   string     `json:"explanation" binding:"omitempty,max=5000"`
}

// TestPaper is what students see: the test without correct answers.
type TestPaper struct {
	TestID          uuid.UUID            `json:"test_id"`
	Title           string               `json:"title"`
	Kind            TestKind             `json:"kind"`
	ExamType        string               `json:"exam_type"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID            uuid.UUID  `json:"id"`
	Position      int        `json:"position"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	Marks         float64    `json:"marks"`
	NegativeMarks float64    `json:"negative_marks"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic"`
}

// KeyEntry is the authoritative grading data for one question.
type KeyEntry struct {
	CorrectIndex  int        `json:"correct_index"`
	Marks         float64    `json:"marks"`
	NegativeMarks float64    `json:"negative_marks"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic"`
}

// AnswerKey maps question id to its grading data.
type AnswerKey map[uuid.UUID]KeyEntry

// Paper strips answers and explanations from a test.
func (t *Test) Paper() *TestPaper {
	p := &TestPaper{
		TestID:          t.ID,
		Title:           t.Title,
		Kind:            t.Kind,
		ExamType:        t.ExamType,
		DurationMinutes: t.DurationMinutes,
		Questions:       make([]QuestionForStudent, 0, len(t.Questions)),
	}
	for _, q := range t.Questions {
		p.Questions = append(p.Questions, QuestionForStudent{
			ID:            q.ID,
			Position:      q.Position,
			Text:          q.Text,
			Options:       q.Options,
			Marks:         q.Marks,
			NegativeMarks: q.NegativeMarks,
			Difficulty:    q.Difficulty,
			Topic:         q.Topic,
		})
	}
	return p
}

// AnswerKey builds the grading table from the test's questions.
func (t *Test) AnswerKey() AnswerKey {
	key := make(AnswerKey, len(t.Questions))
	for _, q := range t.Questions {
		key[q.ID] = KeyEntry{
			CorrectIndex:  q.CorrectIndex,
			Marks:         q.Marks,
			NegativeMarks: q.NegativeMarks,
			Difficulty:    q.Difficulty,
			Topic:         q.Topic,
		}
	}
	return key
}
