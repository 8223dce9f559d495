package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func record(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec))
	prev := Tracer
	Tracer = tp.Tracer("test")
	t.Cleanup(func() {
		Tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestSpansAreNoopsWithoutInit(t *testing.T) {
	prev := Tracer
	Tracer = nil
	t.Cleanup(func() { Tracer = prev })

	ctx, span := StartSwitch(context.Background(), "Notch", "lobby", "survival")
	assert.False(t, span.IsRecording())
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
	Finish(span, errors.New("dial refused"))
}

func TestSwitchSpan(t *testing.T) {
	rec := record(t)

	ctx, conn := StartConnection(context.Background(), "10.0.0.7:51234")
	_, sw := StartSwitch(ctx, "Notch", "lobby", "survival")
	Finish(sw, nil)
	Finish(conn, nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	s := ended[0]
	assert.Equal(t, "proxy.switch", s.Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), s.Parent().SpanID())
	assert.ElementsMatch(t, []attribute.KeyValue{
		Username.String("Notch"),
		FromBackend.String("lobby"),
		ToBackend.String("survival"),
	}, s.Attributes())
	assert.Equal(t, codes.Unset, s.Status().Code)
}

func TestFinishRecordsError(t *testing.T) {
	rec := record(t)

	_, span := StartLogin(context.Background())
	Finish(span, errors.New("session check: timeout"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "session check: timeout", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}
