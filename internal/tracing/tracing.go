// Package tracing exports proxy spans to Jaeger. Connection, login and
// backend switch each get a span; without Init every span is a no-op.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys
const (
	RemoteAddr  = attribute.Key("net.peer.addr")
	Username    = attribute.Key("player.username")
	FromBackend = attribute.Key("switch.from")
	ToBackend   = attribute.Key("switch.to")
)

var (
	// Tracer is nil until Init configures an exporter
	Tracer trace.Tracer

	provider *tracesdk.TracerProvider
)

// Init exports spans to the Jaeger collector at endpoint, e.g.
// "http://jaeger:14268/api/traces". An empty endpoint keeps tracing off.
func Init(serviceName, serviceVersion, endpoint string) error {
	if endpoint == "" {
		return nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return fmt.Errorf("create jaeger exporter: %w", err)
	}

	provider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(serviceResource(serviceName, serviceVersion)),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	Tracer = provider.Tracer(serviceName)
	return nil
}

func serviceResource(name, version string) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, semconv.ServiceInstanceID(host))
	}
	own := resource.NewWithAttributes(semconv.SchemaURL, attrs...)
	res, err := resource.Merge(resource.Default(), own)
	if err != nil {
		// the sdk default may carry a different schema url
		return own
	}
	return res
}

func start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartConnection opens the span covering one client connection
func StartConnection(ctx context.Context, remoteAddr string) (context.Context, trace.Span) {
	return start(ctx, "proxy.connection", RemoteAddr.String(remoteAddr))
}

// StartLogin opens the login span. The username is added once login start arrives.
func StartLogin(ctx context.Context) (context.Context, trace.Span) {
	return start(ctx, "proxy.login")
}

// StartSwitch opens the span of a backend switch, ended by Finish
func StartSwitch(ctx context.Context, username, from, to string) (context.Context, trace.Span) {
	return start(ctx, "proxy.switch",
		Username.String(username),
		FromBackend.String(from),
		ToBackend.String(to))
}

// Finish ends span, marking it failed when err is non-nil
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Shutdown flushes pending spans
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
