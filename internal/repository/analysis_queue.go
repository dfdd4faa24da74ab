package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// AnalysisQueue pushes recorded attempts onto the Redis list consumed by
// the analysis worker.
type AnalysisQueue struct {
	rdb *redis.Client
}

// NewAnalysisQueue creates a new AnalysisQueue.
func NewAnalysisQueue(rdb *redis.Client) *AnalysisQueue {
	return &AnalysisQueue{rdb: rdb}
}

// Enqueue schedules analysis of an attempt.
func (q *AnalysisQueue) Enqueue(ctx context.Context, attemptID uuid.UUID) error {
	payload, err := json.Marshal(model.AnalysisJob{AttemptID: attemptID})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.AnalyzeAttemptsQueue, payload).Err()
}

// Len returns the number of attempts waiting for analysis.
func (q *AnalysisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, config.WorkerKey.AnalyzeAttemptsQueue).Result()
}
