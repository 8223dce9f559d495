// Package logger holds the process-wide zap logger and the field sets the
// proxy logs players, connections and traces with.
package logger

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L discards everything until Init runs, so packages can log from tests
var L = zap.NewNop()

// Init replaces L. format is "json" (default) or "console"; an unknown level
// falls back to info.
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig = encoderConfig(format)
	if format == "console" {
		cfg.Encoding = "console"
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	L = l
	return nil
}

func encoderConfig(format string) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return enc
}

// Sync flushes buffered entries
func Sync() {
	_ = L.Sync()
}

// Connection returns a logger bound to one client connection
func Connection(sessionID int64, remoteAddr string) *zap.Logger {
	return L.With(zap.Int64("session_id", sessionID), zap.String("remote_addr", remoteAddr))
}

// Player returns the fields identifying a player. The uuid is left out when
// it is not known yet and the backend when the player has none.
func Player(username string, id uuid.UUID, backend string) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	fields = append(fields, zap.String("username", username))
	if id != uuid.Nil {
		fields = append(fields, zap.Stringer("uuid", id))
	}
	if backend != "" {
		fields = append(fields, zap.String("backend", backend))
	}
	return fields
}

// Ctx returns L carrying the trace and span ids of the span in ctx, or L
// itself when ctx has no sampled span.
func Ctx(ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return L
	}
	return L.With(zap.Stringer("trace_id", sc.TraceID()), zap.Stringer("span_id", sc.SpanID()))
}
