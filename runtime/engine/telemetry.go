package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/anyfn/anyfn/runtime/engine"

// telemetry bundles the engine's OTEL instruments. Instruments use the global
// providers; configure them before constructing the engine (typically via
// clue.ConfigureOpenTelemetry in the host application).
type telemetry struct {
	tracer     trace.Tracer
	hits       metric.Int64Counter
	misses     metric.Int64Counter
	syntheses  metric.Int64Counter
	admitFails metric.Int64Counter
}

func newTelemetry() (*telemetry, error) {
	meter := otel.Meter(instrumentationName)
	t := &telemetry{tracer: otel.Tracer(instrumentationName)}
	var err error
	if t.hits, err = meter.Int64Counter("anyfn.cache.hits",
		metric.WithDescription("Artifact cache hits")); err != nil {
		return nil, err
	}
	if t.misses, err = meter.Int64Counter("anyfn.cache.misses",
		metric.WithDescription("Artifact cache misses")); err != nil {
		return nil, err
	}
	if t.syntheses, err = meter.Int64Counter("anyfn.syntheses",
		metric.WithDescription("Synthesizer invocations")); err != nil {
		return nil, err
	}
	if t.admitFails, err = meter.Int64Counter("anyfn.admission.failures",
		metric.WithDescription("Candidate sources rejected by admission")); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *telemetry) startGeneration(ctx context.Context, symbol, fp, attempt string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "anyfn.generate", trace.WithAttributes(
		attribute.String("anyfn.symbol", symbol),
		attribute.String("anyfn.fingerprint", fp),
		attribute.String("anyfn.attempt", attempt),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func symbolAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("anyfn.symbol", name))
}
