package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type recordingAnalyzer struct {
	ids []uuid.UUID
	err error
}

func (r *recordingAnalyzer) Analyze(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return r.err
}

func TestHandle_DispatchesValidJobs(t *testing.T) {
	a := &recordingAnalyzer{}
	w := NewAnalysisWorker(nil, a, 0, zerolog.Nop())
	id := uuid.New()

	w.handle(context.Background(), `{"attempt_id":"`+id.String()+`"}`)
	assert.Equal(t, []uuid.UUID{id}, a.ids)
	assert.Equal(t, 1, w.concurrency)
}

func TestHandle_DropsMalformedJobs(t *testing.T) {
	a := &recordingAnalyzer{}
	w := NewAnalysisWorker(nil, a, 1, zerolog.Nop())

	w.handle(context.Background(), `not json`)
	w.handle(context.Background(), `{}`)
	assert.Empty(t, a.ids)
}

func TestHandle_SwallowsAnalyzerErrors(t *testing.T) {
	a := &recordingAnalyzer{err: errors.New("model timeout")}
	w := NewAnalysisWorker(nil, a, 1, zerolog.Nop())

	assert.NotPanics(t, func() {
		w.handle(context.Background(), `{"attempt_id":"`+uuid.NewString()+`"}`)
	})
	assert.Len(t, a.ids, 1)
}
