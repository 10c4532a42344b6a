package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/dshills/cmdkit/pkg/domain/telemetry"
)

// TracerName is the instrumentation scope of cmdkit spans.
const TracerName = "github.com/dshills/cmdkit"

// Span attribute keys.
const (
	AttrCommandID   = attribute.Key("cmdkit.command.id")
	AttrCreator     = attribute.Key("cmdkit.command.creator")
	AttrModule      = attribute.Key("cmdkit.command.module")
	AttrExecutionID = attribute.Key("cmdkit.execution.id")
	AttrHost        = attribute.Key("cmdkit.host")
	AttrUndoable    = attribute.Key("cmdkit.command.undoable")
)

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when endpoint is empty Setup returns a no-op shutdown
// function and no global provider is registered.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName, endpoint string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns the cmdkit tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// EndSpan copies the outcome of a finalized record onto span and ends it.
func EndSpan(span trace.Span, rec *domain.Telemetry, err error) {
	if rec != nil {
		span.SetAttributes(AttrExecutionID.String(rec.ID.String()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
