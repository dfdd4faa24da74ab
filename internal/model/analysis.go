package model

// WeakTopic is a topic the student should revisit.
type WeakTopic struct {
	Topic    string  `json:"topic"`
	Priority string  `json:"priority"`
	Accuracy float64 `json:"accuracy"`
	Reason   string  `json:"reason"`
}

// Analysis is the remediation report attached to an attempt.
type Analysis struct {
	WeakTopics          []WeakTopic `json:"weak_topics"`
	TimeRecommendations []string    `json:"time_recommendations"`
	PredictedBand       string      `json:"predicted_band"`
	OverallSuggestions  []string    `json:"overall_suggestions"`
}

// TopicStat is the per-topic summary fed to an analyzer.
type TopicStat struct {
	Topic      string  `json:"topic"`
	Attempted  int     `json:"attempted"`
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// AnalysisInput is everything an analyzer sees about one attempt.
type AnalysisInput struct {
	TestTitle string      `json:"test_title"`
	ExamType  string      `json:"exam_type"`
	Score     float64     `json:"score"`
	MaxScore  float64     `json:"max_score"`
	Topics    []TopicStat `json:"topics"`
	TimeStats TimeStats   `json:"time_stats"`
}
