package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// ProctorFeed publishes session events on a per-test Redis channel so that
// any server instance can stream them to the teacher's monitor.
type ProctorFeed struct {
	rdb *redis.Client
}

// NewProctorFeed creates a new ProctorFeed.
func NewProctorFeed(rdb *redis.Client) *ProctorFeed {
	return &ProctorFeed{rdb: rdb}
}

// Publish broadcasts an event to the test's monitor channel.
func (f *ProctorFeed) Publish(ctx context.Context, ev model.ProctorEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(ev.TestID.String()), payload).Err()
}

// Subscribe opens a subscription to a test's monitor channel. The caller
// must close the returned PubSub.
func (f *ProctorFeed) Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub {
	return f.rdb.Subscribe(ctx, config.CacheKey.TestMonitorChannel(testID.String()))
}
