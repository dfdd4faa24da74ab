package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
)

// QuestionBank serves test definitions and answer keys. Answer keys are
// cached in Redis; a nil client or any Redis failure falls through to the
// test store.
type QuestionBank struct {
	tests TestStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewQuestionBank creates a new QuestionBank. rdb may be nil.
func NewQuestionBank(tests TestStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionBank {
	return &QuestionBank{
		tests: tests,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "question_bank").Logger(),
	}
}

// Test loads a test with its questions.
func (b *QuestionBank) Test(ctx context.Context, testID uuid.UUID) (*model.Test, error) {
	t, err := b.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	return t, nil
}

// AnswerKey returns the authoritative answer key of a test.
func (b *QuestionBank) AnswerKey(ctx context.Context, testID uuid.UUID) (model.AnswerKey, error) {
	if key, ok := b.cached(ctx, testID); ok {
		return key, nil
	}

	t, err := b.Test(ctx, testID)
	if err != nil {
		return nil, err
	}
	key := t.AnswerKey()
	b.store(ctx, testID, key)
	return key, nil
}

// Warm caches a freshly created test's answer key.
func (b *QuestionBank) Warm(ctx context.Context, t *model.Test) {
	b.store(ctx, t.ID, t.AnswerKey())
}

func (b *QuestionBank) cached(ctx context.Context, testID uuid.UUID) (model.AnswerKey, bool) {
	if b.rdb == nil {
		return nil, false
	}
	raw, err := b.rdb.Get(ctx, config.CacheKey.AnswerKey(testID.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Answer key cache read failed")
		}
		return nil, false
	}
	var key model.AnswerKey
	if err := json.Unmarshal(raw, &key); err != nil {
		b.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Answer key cache entry corrupt")
		return nil, false
	}
	return key, true
}

func (b *QuestionBank) store(ctx context.Context, testID uuid.UUID, key model.AnswerKey) {
	if b.rdb == nil {
		return
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return
	}
	if err := b.rdb.Set(ctx, config.CacheKey.AnswerKey(testID.String()), raw, b.ttl).Err(); err != nil {
		b.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Answer key cache write failed")
	}
}
