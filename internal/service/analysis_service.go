package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/ai"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
)

// Analyzer turns an attempt summary into a remediation report.
type Analyzer interface {
	Analyze(ctx context.Context, in model.AnalysisInput) (*model.Analysis, error)
}

// AnalysisService annotates recorded attempts with remediation, predicted
// performance and percentile. Annotation is best-effort and happens at most
// once per attempt; the recorded score is never touched.
type AnalysisService struct {
	attempts AttemptStore
	bank     *QuestionBank
	analyzer Analyzer
	fallback Analyzer
	now      Clock
	log      zerolog.Logger
}

// NewAnalysisService creates a new AnalysisService. A nil analyzer selects
// the rule-based analyzer.
func NewAnalysisService(attempts AttemptStore, bank *QuestionBank, analyzer Analyzer, clock Clock, log zerolog.Logger) *AnalysisService {
	if analyzer == nil {
		analyzer = ai.RuleAnalyzer{}
	}
	return &AnalysisService{
		attempts: attempts,
		bank:     bank,
		analyzer: analyzer,
		fallback: ai.RuleAnalyzer{},
		now:      clock,
		log:      log.With().Str("component", "analysis_service").Logger(),
	}
}

// Analyze computes and stores the annotation for one attempt. It returns
// nil without doing anything when the attempt is already annotated.
func (s *AnalysisService) Analyze(ctx context.Context, attemptID uuid.UUID) error {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get attempt: %w", err)
	}
	if a.AnalyzedAt != nil {
		return nil
	}

	t, err := s.bank.Test(ctx, a.TestID)
	if err != nil {
		return err
	}

	pct, err := s.attempts.Percentile(ctx, a.TestID, a.Score)
	if err != nil {
		return fmt.Errorf("percentile: %w", err)
	}

	in := BuildAnalysisInput(t, a)
	report, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Analyzer failed, using rule-based report")
		if report, err = s.fallback.Analyze(ctx, in); err != nil {
			return fmt.Errorf("fallback analysis: %w", err)
		}
	}

	remediation, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal remediation: %w", err)
	}
	band := report.PredictedBand
	if band == "" {
		band = ai.PredictedBand(a.Score, a.MaxScore)
	}

	ok, err := s.attempts.Annotate(ctx, a.ID, model.AttemptAnnotation{
		Remediation:          remediation,
		PredictedPerformance: band,
		Percentile:           pct,
		AnalyzedAt:           s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("annotate attempt: %w", err)
	}
	if !ok {
		s.log.Debug().Str("attempt_id", attemptID.String()).Msg("Attempt already annotated")
		return nil
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("band", band).
		Float64("percentile", pct).
		Int("weak_topics", len(report.WeakTopics)).
		Msg("Attempt analyzed")
	return nil
}

// BuildAnalysisInput summarizes an attempt per topic. Every question of the
// test counts towards its topic's total, answered or not.
func BuildAnalysisInput(t *model.Test, a *model.Attempt) model.AnalysisInput {
	type agg struct {
		stat    model.TopicStat
		seconds int
	}
	byTopic := make(map[string]*agg)
	topicOf := make(map[uuid.UUID]string, len(t.Questions))
	var order []string

	for _, q := range t.Questions {
		topicOf[q.ID] = q.Topic
		g, ok := byTopic[q.Topic]
		if !ok {
			g = &agg{stat: model.TopicStat{Topic: q.Topic}}
			byTopic[q.Topic] = g
			order = append(order, q.Topic)
		}
		g.stat.Total++
	}

	for _, r := range a.Detailed {
		g, ok := byTopic[topicOf[r.QuestionID]]
		if !ok {
			continue
		}
		if r.Given != model.NotAttempted {
			g.stat.Attempted++
		}
		if r.IsCorrect {
			g.stat.Correct++
		}
	}
	for _, qt := range a.TimeStats.PerQuestion {
		if g, ok := byTopic[topicOf[qt.QuestionID]]; ok {
			g.seconds += qt.Seconds
		}
	}

	sort.Strings(order)
	topics := make([]model.TopicStat, 0, len(order))
	for _, name := range order {
		g := byTopic[name]
		if g.stat.Attempted > 0 {
			g.stat.AvgSeconds = float64(g.seconds) / float64(g.stat.Attempted)
		}
		topics = append(topics, g.stat)
	}

	return model.AnalysisInput{
		TestTitle: t.Title,
		ExamType:  t.ExamType,
		Score:     a.Score,
		MaxScore:  a.MaxScore,
		Topics:    topics,
		TimeStats: a.TimeStats,
	}
}
