package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core, false)

	ctx := WithQueueName(WithCorrelationID(context.Background(), "c-1"), "orders")
	log.ErrorWithContext(ctx, "handler failed", errors.New("boom"), map[string]interface{}{"attempt": 2})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "c-1", fields[CorrelationIDField])
	assert.Equal(t, "orders", fields[QueueNameField])
	assert.Equal(t, "boom", fields["error"])
	assert.EqualValues(t, 2, fields["attempt"])
}

func TestTraceFieldsOnlyWhenEnabled(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	core, logs := observer.New(zapcore.InfoLevel)
	NewWithCore(core, true).InfoWithContext(ctx, "traced", nil)
	NewWithCore(core, false).InfoWithContext(ctx, "untraced", nil)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, traceID.String(), logs.All()[0].ContextMap()["trace_id"])
	assert.Equal(t, spanID.String(), logs.All()[0].ContextMap()["span_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "trace_id")
}

func TestLaterFieldMapsOverrideEarlierOnes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewWithCore(core, false).Info("merged", nil,
		map[string]interface{}{"k": "first"},
		map[string]interface{}{"k": "second"},
	)

	require.Equal(t, 1, logs.Len())
	assert.Len(t, logs.All()[0].Context, 1)
	assert.Equal(t, "second", logs.All()[0].ContextMap()["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel(Debug))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(Warning))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(Error))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
