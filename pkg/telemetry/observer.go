package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// Observer turns entry lifecycle events into spans and metrics.
// Either part may be nil.
type Observer struct {
	tracer  *Tracer
	metrics *Metrics
}

var _ engine.Observer = (*Observer)(nil)

// NewObserver creates an observer.
func NewObserver(tracer *Tracer, metrics *Metrics) *Observer {
	return &Observer{tracer: tracer, metrics: metrics}
}

// EntryStarted opens the entry span.
func (o *Observer) EntryStarted(ctx context.Context, section engine.Section, e engine.Entry) context.Context {
	if o.tracer == nil {
		return ctx
	}
	ctx, _ = o.tracer.StartEntry(ctx, section, e)
	return ctx
}

// EntryFinished closes the entry span and counts the outcome.
func (o *Observer) EntryFinished(ctx context.Context, out engine.Outcome) {
	if o.metrics != nil {
		o.metrics.ObserveEntry(out)
	}
	if o.tracer == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(AttrStatus.String(string(out.Status)))
	if out.Version != "" {
		span.SetAttributes(AttrInstalled.String(out.Version))
	}
	if out.Verification != "" {
		span.SetAttributes(AttrVerification.String(out.Verification))
	}
	if out.Status == engine.StatusFailure {
		if out.Err != nil {
			span.SetAttributes(
				AttrErrorClass.String(string(out.Err.Class)),
				AttrErrorCode.String(out.Err.Code),
			)
			RecordError(span, out.Err)
		} else {
			span.SetStatus(codes.Error, out.Reason)
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
