package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
	"github.com/rurallearn/rurallearn-backend/internal/response"
)

// AttemptService handles quiz submission and a student's attempt history.
type AttemptService struct {
	attempts AttemptStore
	bank     *QuestionBank
	queue    AnalysisQueue
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, bank *QuestionBank, queue AnalysisQueue, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		bank:     bank,
		queue:    queue,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// SubmitQuiz grades a quiz submission and records it. A student may submit
// each quiz once; later submissions fail with ErrAlreadySubmitted.
func (s *AttemptService) SubmitQuiz(ctx context.Context, quizID, studentID uuid.UUID, answers []model.Answer) (*model.SubmissionResult, error) {
	t, err := s.bank.Test(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if t.Kind != model.TestKindQuiz {
		return nil, fieldError("quiz_id", "mock tests must be taken through a session")
	}

	key, err := s.bank.AnswerKey(ctx, quizID)
	if err != nil {
		return nil, err
	}
	graded, err := Grade(answers, key)
	if err != nil {
		return nil, err
	}

	attempt := newAttempt(studentID, quizID, model.TestKindQuiz, answers, graded)
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if err := s.queue.Enqueue(ctx, attempt.ID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to queue attempt analysis")
	}

	return &model.SubmissionResult{
		AttemptID:     attempt.ID,
		Score:         graded.Score,
		MaxScore:      graded.MaxScore,
		TimeStats:     graded.Time,
		ResultsDetail: graded.Detailed,
	}, nil
}

// Get returns one of the student's attempts.
func (s *AttemptService) Get(ctx context.Context, attemptID, studentID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.StudentID != studentID {
		return nil, ErrAccessDenied
	}
	return a, nil
}

// List returns a page of the student's attempts, newest first.
func (s *AttemptService) List(ctx context.Context, studentID uuid.UUID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attempts.ListByStudent(ctx, studentID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	return attempts, response.NewPagination(page, perPage, total), nil
}
