package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := L
	L = zap.New(core)
	t.Cleanup(func() { L = prev })
	return logs
}

func TestPlayerFields(t *testing.T) {
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")

	full := zapcore.NewMapObjectEncoder()
	for _, f := range Player("Notch", id, "lobby") {
		f.AddTo(full)
	}
	assert.Equal(t, map[string]any{
		"username": "Notch",
		"uuid":     id.String(),
		"backend":  "lobby",
	}, full.Fields)

	// before login success neither is known
	partial := Player("Notch", uuid.Nil, "")
	require.Len(t, partial, 1)
	assert.Equal(t, "username", partial[0].Key)
}

func TestCtxAddsTraceIDs(t *testing.T) {
	logs := observe(t)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	Ctx(ctx).Warn("Backend dial failed", zap.String("backend", "survival"))
	Ctx(context.Background()).Info("Configuration updated")

	entries := logs.All()
	require.Len(t, entries, 2)

	traced := entries[0].ContextMap()
	assert.Equal(t, sc.TraceID().String(), traced["trace_id"])
	assert.Equal(t, sc.SpanID().String(), traced["span_id"])
	assert.Equal(t, "survival", traced["backend"])

	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestConnectionLogger(t *testing.T) {
	logs := observe(t)

	Connection(42, "10.0.0.7:51234").Info("Player logged in", Player("Notch", uuid.Nil, "lobby")...)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(42), fields["session_id"])
	assert.Equal(t, "10.0.0.7:51234", fields["remote_addr"])
	assert.Equal(t, "lobby", fields["backend"])
}

func TestInitFallsBackToInfo(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	require.NoError(t, Init("chatty", "console"))
	assert.False(t, L.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, L.Core().Enabled(zapcore.InfoLevel))
}
