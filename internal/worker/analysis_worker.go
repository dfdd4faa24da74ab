package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
)

const (
	AnalysisPollTimeout = 1 * time.Second
	AnalysisJobTimeout  = 90 * time.Second
)

// AttemptAnalyzer annotates one attempt. Satisfied by *service.AnalysisService.
type AttemptAnalyzer interface {
	Analyze(ctx context.Context, attemptID uuid.UUID) error
}

// AnalysisWorker drains the analysis queue. Analysis is best-effort: a
// failed job is logged and dropped, never retried against the score.
type AnalysisWorker struct {
	rdb         *redis.Client
	analyzer    AttemptAnalyzer
	concurrency int
	log         zerolog.Logger
}

// NewAnalysisWorker creates a worker running concurrency consumers.
func NewAnalysisWorker(rdb *redis.Client, analyzer AttemptAnalyzer, concurrency int, log zerolog.Logger) *AnalysisWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AnalysisWorker{
		rdb:         rdb,
		analyzer:    analyzer,
		concurrency: concurrency,
		log:         log.With().Str("component", "analysis_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled and every consumer has finished its
// current job.
func (w *AnalysisWorker) Start(ctx context.Context) {
	w.log.Info().Int("concurrency", w.concurrency).Msg("AnalysisWorker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()

	w.log.Info().Msg("AnalysisWorker stopped")
}

func (w *AnalysisWorker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, AnalysisPollTimeout, config.WorkerKey.AnalyzeAttemptsQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(AnalysisPollTimeout)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		// A job already popped is finished even during shutdown.
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AnalysisJobTimeout)
		w.handle(jobCtx, item[1])
		cancel()
	}
}

// handle runs one queued job. It never returns an error: the attempt and
// its score are already committed.
func (w *AnalysisWorker) handle(ctx context.Context, raw string) {
	var job model.AnalysisJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.AttemptID == uuid.Nil {
		w.log.Error().Err(err).Str("payload", raw).Msg("Invalid analysis job")
		return
	}

	start := time.Now()
	if err := w.analyzer.Analyze(ctx, job.AttemptID); err != nil {
		w.log.Warn().Err(err).Str("attempt_id", job.AttemptID.String()).Msg("Attempt analysis failed")
		return
	}
	w.log.Debug().
		Str("attempt_id", job.AttemptID.String()).
		Dur("took", time.Since(start)).
		Msg("Attempt analysis done")
}
