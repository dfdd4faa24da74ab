package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// TestService handles test authoring and the student-facing paper.
type TestService struct {
	tests TestStore
	bank  *QuestionBank
	log   zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(tests TestStore, bank *QuestionBank, log zerolog.Logger) *TestService {
	return &TestService{
		tests: tests,
		bank:  bank,
		log:   log.With().Str("component", "test_service").Logger(),
	}
}

// Create stores a new test authored by authorID.
func (s *TestService) Create(ctx context.Context, authorID uuid.UUID, req *model.CreateTestRequest) (*model.Test, error) {
	t := &model.Test{
		AuthorID:        authorID,
		Title:           strings.TrimSpace(req.Title),
		Kind:            req.Kind,
		ExamType:        strings.TrimSpace(req.ExamType),
		DurationMinutes: req.DurationMinutes,
		ProctorRules:    req.ProctorRules,
		Questions:       make([]model.Question, 0, len(req.Questions)),
	}
	if t.ExamType == "" {
		t.ExamType = "Custom"
	}

	for i, q := range req.Questions {
		if *q.CorrectIndex >= len(q.Options) {
			return nil, fieldError(fmt.Sprintf("questions[%d].correct_index", i), "must reference one of the options")
		}
		mq := model.Question{
			Position:     i + 1,
			Text:         strings.TrimSpace(q.Text),
			Options:      q.Options,
			CorrectIndex: *q.CorrectIndex,
			Marks:        1,
			Difficulty:   q.Difficulty,
			Topic:        strings.TrimSpace(q.Topic),
			Explanation:  q.Explanation,
		}
		// Rounded before the insert so the cached key matches the stored rows.
		if q.Marks != nil {
			mq.Marks = RoundMarks(*q.Marks)
		}
		if q.NegativeMarks != nil {
			mq.NegativeMarks = RoundMarks(*q.NegativeMarks)
		}
		if mq.Marks <= 0 {
			return nil, fieldError(fmt.Sprintf("questions[%d].marks", i), "must be at least 0.01")
		}
		if mq.Difficulty == "" {
			mq.Difficulty = model.DifficultyMedium
		}
		if mq.Topic == "" {
			mq.Topic = "General"
		}
		t.Questions = append(t.Questions, mq)
	}

	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	s.bank.Warm(ctx, t)

	s.log.Info().
		Str("test_id", t.ID.String()).
		Str("kind", string(t.Kind)).
		Int("questions", len(t.Questions)).
		Msg("Test created")
	return t, nil
}

// GetForAuthor returns a test with answers to its author.
func (s *TestService) GetForAuthor(ctx context.Context, testID, authorID uuid.UUID) (*model.Test, error) {
	t, err := s.bank.Test(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.AuthorID != authorID {
		return nil, ErrAccessDenied
	}
	return t, nil
}

// Paper returns a test without answers for students.
func (s *TestService) Paper(ctx context.Context, testID uuid.UUID) (*model.TestPaper, error) {
	t, err := s.bank.Test(ctx, testID)
	if err != nil {
		return nil, err
	}
	return t.Paper(), nil
}
