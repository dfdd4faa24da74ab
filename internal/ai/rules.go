package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// WeakTopicThreshold is the accuracy (percent) under which a topic is weak.
const WeakTopicThreshold = 60.0

// RuleAnalyzer produces a deterministic report without calling a model.
type RuleAnalyzer struct{}

// Analyze flags topics under WeakTopicThreshold accuracy and derives the
// predicted band from the score percentage.
func (RuleAnalyzer) Analyze(_ context.Context, in model.AnalysisInput) (*model.Analysis, error) {
	out := &model.Analysis{
		WeakTopics:          []model.WeakTopic{},
		TimeRecommendations: []string{},
		OverallSuggestions:  []string{},
		PredictedBand:       PredictedBand(in.Score, in.MaxScore),
	}

	for _, t := range in.Topics {
		if t.Total == 0 {
			continue
		}
		acc := float64(t.Correct) * 100 / float64(t.Total)
		if acc >= WeakTopicThreshold {
			continue
		}
		priority := "medium"
		if acc < 30 {
			priority = "high"
		}
		out.WeakTopics = append(out.WeakTopics, model.WeakTopic{
			Topic:    t.Topic,
			Priority: priority,
			Accuracy: acc,
			Reason:   fmt.Sprintf("%d of %d questions answered correctly", t.Correct, t.Total),
		})
	}
	sort.SliceStable(out.WeakTopics, func(i, j int) bool {
		return out.WeakTopics[i].Accuracy < out.WeakTopics[j].Accuracy
	})

	var slowest *model.TopicStat
	for i := range in.Topics {
		if in.Topics[i].Attempted == 0 {
			continue
		}
		if slowest == nil || in.Topics[i].AvgSeconds > slowest.AvgSeconds {
			slowest = &in.Topics[i]
		}
	}
	if slowest != nil && slowest.AvgSeconds > 0 {
		out.TimeRecommendations = append(out.TimeRecommendations,
			fmt.Sprintf("You spent %.0fs per question on %s; practise timed sets on this topic.", slowest.AvgSeconds, slowest.Topic))
	}

	for _, w := range out.WeakTopics {
		out.OverallSuggestions = append(out.OverallSuggestions, fmt.Sprintf("Revise %s before your next test.", w.Topic))
	}
	if len(out.OverallSuggestions) == 0 {
		out.OverallSuggestions = append(out.OverallSuggestions, "Keep practising with full-length mock tests.")
	}
	return out, nil
}

// PredictedBand maps a score percentage to a performance band.
func PredictedBand(score, maxScore float64) string {
	if maxScore <= 0 {
		return "Needs Improvement"
	}
	pct := score * 100 / maxScore
	switch {
	case pct >= 85:
		return "Excellent"
	case pct >= 70:
		return "Good"
	case pct >= 50:
		return "Average"
	default:
		return "Needs Improvement"
	}
}
