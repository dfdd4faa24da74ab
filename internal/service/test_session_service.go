package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
)

// draftGrace keeps autosaved answers around a little past the deadline.
const draftGrace = time.Hour

// TestSessionService drives the proctored session lifecycle:
// created → running → submitted, with infraction-triggered auto-submit.
//
// Every transition first reads the session to report NotFound, AccessDenied
// or a wrong state precisely, then commits through a conditional write in the
// store. A request that loses a race at the store is told
// ErrInvalidSessionState, exactly as if it had arrived later.
type TestSessionService struct {
	sessions SessionStore
	attempts AttemptStore
	bank     *QuestionBank
	drafts   DraftStore
	queue    AnalysisQueue
	events   EventPublisher
	now      Clock
	log      zerolog.Logger
}

// NewTestSessionService creates a new TestSessionService.
func NewTestSessionService(
	sessions SessionStore,
	attempts AttemptStore,
	bank *QuestionBank,
	drafts DraftStore,
	queue AnalysisQueue,
	events EventPublisher,
	clock Clock,
	log zerolog.Logger,
) *TestSessionService {
	return &TestSessionService{
		sessions: sessions,
		attempts: attempts,
		bank:     bank,
		drafts:   drafts,
		queue:    queue,
		events:   events,
		now:      clock,
		log:      log.With().Str("component", "test_session_service").Logger(),
	}
}

// Issue creates a new session in the created state for a mock test.
func (s *TestSessionService) Issue(ctx context.Context, testID, studentID uuid.UUID) (*model.TestSession, error) {
	t, err := s.bank.Test(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.Kind != model.TestKindMock {
		return nil, fieldError("test_id", "sessions can only be issued for mock tests")
	}

	sess := &model.TestSession{TestID: testID, StudentID: studentID}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("test_id", testID.String()).
		Str("student_id", studentID.String()).
		Msg("Session issued")
	return sess, nil
}

// Get returns a session owned by studentID.
func (s *TestSessionService) Get(ctx context.Context, sessionID, studentID uuid.UUID) (*model.TestSession, error) {
	return s.load(ctx, sessionID, studentID)
}

// Start moves a created session to running, fixing its deadline and
// resolving the anti-cheat policy from the test's proctor rules.
func (s *TestSessionService) Start(ctx context.Context, sessionID, studentID uuid.UUID) (*model.StartSessionResponse, error) {
	sess, err := s.load(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(sess.State, model.SessionStateRunning) {
		return nil, ErrInvalidSessionState
	}

	t, err := s.bank.Test(ctx, sess.TestID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(time.Duration(t.DurationMinutes) * time.Minute)
	policy := ResolvePolicy(t.ProctorRules)
	actions := DefaultAllowedActions()

	started, err := s.sessions.Start(ctx, sessionID, now, expiresAt, actions, policy)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrInvalidSessionState
		}
		return nil, fmt.Errorf("start session: %w", err)
	}

	s.publish(ctx, model.ProctorEvent{
		Type:      model.ProctorEventStarted,
		TestID:    started.TestID,
		SessionID: started.ID,
		StudentID: started.StudentID,
		At:        now,
	})

	return &model.StartSessionResponse{
		SessionID:       started.ID,
		StartedAt:       now,
		ExpiresAt:       expiresAt,
		ServerTime:      now,
		AllowedActions:  actions,
		AntiCheatPolicy: policy,
	}, nil
}

// LogInfraction records a proctoring violation on a running session. The
// increment and any threshold-triggered submission are one atomic write;
// only the request that crosses the threshold reports autoSubmitted.
func (s *TestSessionService) LogInfraction(ctx context.Context, sessionID, studentID uuid.UUID, kind string, at *time.Time) (*model.InfractionResponse, error) {
	sess, err := s.loadRunning(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	inf := model.Infraction{Type: kind, Timestamp: now}
	if at != nil && !at.IsZero() {
		inf.Timestamp = clampToSession(at.UTC(), sess.StartedAt, now)
	}

	updated, err := s.sessions.RecordInfraction(ctx, sess.ID, inf, now)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrInvalidSessionState
		}
		return nil, fmt.Errorf("record infraction: %w", err)
	}

	autoSubmitted := updated.State == model.SessionStateSubmitted

	s.log.Info().
		Str("session_id", updated.ID.String()).
		Str("type", kind).
		Int("count", updated.InfractionCount).
		Bool("auto_submitted", autoSubmitted).
		Msg("Infraction recorded")

	s.publish(ctx, model.ProctorEvent{
		Type:            model.ProctorEventInfraction,
		TestID:          updated.TestID,
		SessionID:       updated.ID,
		StudentID:       updated.StudentID,
		InfractionType:  kind,
		InfractionCount: updated.InfractionCount,
		At:              now,
	})

	if autoSubmitted {
		// best-effort: the submitted state has already committed. A failure
		// below leaves the session submitted without an attempt and is logged.
		s.recordAutoSubmission(ctx, updated, now)
	}

	return &model.InfractionResponse{
		Acknowledged:    true,
		AutoSubmitted:   autoSubmitted,
		InfractionCount: updated.InfractionCount,
	}, nil
}

// Autosave stores in-progress answers for a running session.
func (s *TestSessionService) Autosave(ctx context.Context, sessionID, studentID uuid.UUID, answers []model.Answer) error {
	sess, err := s.loadRunning(ctx, sessionID, studentID)
	if err != nil {
		return err
	}

	key, err := s.bank.AnswerKey(ctx, sess.TestID)
	if err != nil {
		return err
	}
	for _, a := range answers {
		if _, ok := key[a.QuestionID]; !ok {
			return &UnknownQuestionError{QuestionID: a.QuestionID}
		}
	}

	ttl := sess.ExpiresAt.Sub(s.now()) + draftGrace
	if err := s.drafts.Save(ctx, sess.ID, answers, ttl); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Submit grades the final answers and moves the session to submitted. The
// transition and the attempt insert commit together; of several concurrent
// submissions exactly one succeeds. Grading happens first, so a rejected
// submission leaves the session running.
func (s *TestSessionService) Submit(ctx context.Context, sessionID, studentID uuid.UUID, answers []model.Answer) (*model.SubmissionResult, error) {
	sess, err := s.loadRunning(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}

	key, err := s.bank.AnswerKey(ctx, sess.TestID)
	if err != nil {
		return nil, err
	}
	graded, err := Grade(answers, key)
	if err != nil {
		return nil, err
	}

	attempt := newAttempt(sess.StudentID, sess.TestID, model.TestKindMock, answers, graded)
	attempt.SessionID = &sess.ID

	now := s.now().UTC()
	if err := s.sessions.SubmitWithAttempt(ctx, sess.ID, now, attempt); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrInvalidSessionState
		}
		return nil, fmt.Errorf("submit session: %w", err)
	}

	s.afterAttempt(ctx, sess.ID, attempt)
	s.publish(ctx, model.ProctorEvent{
		Type:            model.ProctorEventSubmitted,
		TestID:          sess.TestID,
		SessionID:       sess.ID,
		StudentID:       sess.StudentID,
		InfractionCount: sess.InfractionCount,
		Score:           &attempt.Score,
		At:              now,
	})

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("attempt_id", attempt.ID.String()).
		Float64("score", attempt.Score).
		Msg("Session submitted")

	return &model.SubmissionResult{
		AttemptID:     attempt.ID,
		Score:         graded.Score,
		MaxScore:      graded.MaxScore,
		TimeStats:     graded.Time,
		ResultsDetail: graded.Detailed,
	}, nil
}

// ListForTest returns every session of a test to its author.
func (s *TestSessionService) ListForTest(ctx context.Context, testID, authorID uuid.UUID) ([]model.TestSession, error) {
	t, err := s.bank.Test(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.AuthorID != authorID {
		return nil, ErrAccessDenied
	}
	sessions, err := s.sessions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.TestSession{}
	}
	return sessions, nil
}

// recordAutoSubmission grades whatever was autosaved when the infraction
// threshold forced submission. Only the request whose write crossed the
// threshold gets here, and session_id is unique on attempts, so at most one
// attempt is recorded. Failures are logged; the transition already committed.
func (s *TestSessionService) recordAutoSubmission(ctx context.Context, sess *model.TestSession, now time.Time) {
	log := s.log.With().Str("session_id", sess.ID.String()).Logger()

	s.publish(ctx, model.ProctorEvent{
		Type:            model.ProctorEventAutoSubmitted,
		TestID:          sess.TestID,
		SessionID:       sess.ID,
		StudentID:       sess.StudentID,
		InfractionCount: sess.InfractionCount,
		At:              now,
	})

	t, err := s.bank.Test(ctx, sess.TestID)
	if err != nil {
		log.Error().Err(err).Msg("Auto-submit: load test failed")
		return
	}
	drafts, err := s.drafts.Load(ctx, sess.ID)
	if err != nil {
		log.Error().Err(err).Msg("Auto-submit: load drafts failed")
		return
	}

	answers := orderDrafts(t, drafts)
	graded, err := Grade(answers, t.AnswerKey())
	if err != nil {
		log.Error().Err(err).Msg("Auto-submit: grading drafts failed")
		return
	}

	attempt := newAttempt(sess.StudentID, sess.TestID, model.TestKindMock, answers, graded)
	attempt.SessionID = &sess.ID
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			log.Error().Err(err).Msg("Auto-submit: record attempt failed")
		}
		return
	}

	log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("answers", len(answers)).
		Float64("score", attempt.Score).
		Msg("Auto-submitted session graded from drafts")
	s.afterAttempt(ctx, sess.ID, attempt)
}

// orderDrafts keeps drafts that belong to the test, in question order.
func orderDrafts(t *model.Test, drafts []model.Answer) []model.Answer {
	byID := make(map[uuid.UUID]model.Answer, len(drafts))
	for _, d := range drafts {
		byID[d.QuestionID] = d
	}
	answers := make([]model.Answer, 0, len(drafts))
	for _, q := range t.Questions {
		if d, ok := byID[q.ID]; ok {
			answers = append(answers, d)
		}
	}
	return answers
}

func (s *TestSessionService) afterAttempt(ctx context.Context, sessionID uuid.UUID, a *model.Attempt) {
	if err := s.drafts.Clear(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to clear drafts")
	}
	if err := s.queue.Enqueue(ctx, a.ID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to queue attempt analysis")
	}
}

func (s *TestSessionService) publish(ctx context.Context, ev model.ProctorEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("session_id", ev.SessionID.String()).Msg("Failed to publish proctor event")
	}
}

func (s *TestSessionService) load(ctx context.Context, sessionID, studentID uuid.UUID) (*model.TestSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.StudentID != studentID {
		return nil, ErrAccessDenied
	}
	return sess, nil
}

// loadRunning loads a session that must be running and not past its deadline.
func (s *TestSessionService) loadRunning(ctx context.Context, sessionID, studentID uuid.UUID) (*model.TestSession, error) {
	sess, err := s.load(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if sess.State != model.SessionStateRunning || sess.Expired(s.now()) {
		return nil, ErrInvalidSessionState
	}
	return sess, nil
}

// clampToSession bounds a client-reported time to [startedAt, now].
func clampToSession(at time.Time, startedAt *time.Time, now time.Time) time.Time {
	if startedAt != nil && at.Before(*startedAt) {
		return startedAt.UTC()
	}
	if at.After(now) {
		return now
	}
	return at
}

func newAttempt(studentID, testID uuid.UUID, kind model.TestKind, answers []model.Answer, g *GradeResult) *model.Attempt {
	return &model.Attempt{
		StudentID: studentID,
		TestID:    testID,
		Kind:      kind,
		Answers:   answers,
		Score:     g.Score,
		MaxScore:  g.MaxScore,
		Detailed:  g.Detailed,
		TimeStats: g.Time,
	}
}
