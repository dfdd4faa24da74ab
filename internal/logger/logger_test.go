package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	plainLog := WithTrace(context.Background(), base)
	plainLog.Info().Msg("plain")
	var plain map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &plain))
	assert.NotContains(t, plain, "trace_id")

	buf.Reset()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tracedLog := WithTrace(ctx, base)
	tracedLog.Info().Msg("traced")
	var traced map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &traced))
	assert.Equal(t, sc.TraceID().String(), traced["trace_id"])
	assert.Equal(t, sc.SpanID().String(), traced["span_id"])
}
