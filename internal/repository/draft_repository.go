package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// DraftRepository stores autosaved answers of running sessions in a Redis
// hash keyed by question id. Later saves for the same question overwrite
// earlier ones.
type DraftRepository struct {
	rdb *redis.Client
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(rdb *redis.Client) *DraftRepository {
	return &DraftRepository{rdb: rdb}
}

// Save merges answers into the session's draft and refreshes its TTL.
func (r *DraftRepository) Save(ctx context.Context, sessionID uuid.UUID, answers []model.Answer, ttl time.Duration) error {
	if len(answers) == 0 {
		return nil
	}
	key := config.CacheKey.SessionDraftKey(sessionID.String())

	fields := make(map[string]any, len(answers))
	for _, a := range answers {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal draft answer: %w", err)
		}
		fields[a.QuestionID.String()] = b
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Load returns every autosaved answer of a session in no particular order.
func (r *DraftRepository) Load(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.SessionDraftKey(sessionID.String())).Result()
	if err != nil {
		return nil, err
	}
	answers := make([]model.Answer, 0, len(raw))
	for _, v := range raw {
		var a model.Answer
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			continue
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// Clear deletes a session's draft.
func (r *DraftRepository) Clear(ctx context.Context, sessionID uuid.UUID) error {
	return r.rdb.Del(ctx, config.CacheKey.SessionDraftKey(sessionID.String())).Err()
}
