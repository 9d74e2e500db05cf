package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// Span attribute keys.
var (
	AttrRunID        = attribute.Key("devbox.run_id")
	AttrSection      = attribute.Key("devbox.section")
	AttrEntry        = attribute.Key("devbox.entry")
	AttrRequired     = attribute.Key("devbox.version.required")
	AttrInstalled    = attribute.Key("devbox.version.installed")
	AttrStatus       = attribute.Key("devbox.status")
	AttrErrorClass   = attribute.Key("error.class")
	AttrErrorCode    = attribute.Key("error.code")
	AttrVerification = attribute.Key("devbox.verification")
)

// Tracer owns the trace provider for one run.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	file     *os.File
}

// NewTracer creates a tracer. With the none exporter spans are created but
// never exported.
func NewTracer(ctx context.Context, cfg TracingConfig, runID string) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		AttrRunID.String(runID),
	)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	t := &Tracer{}
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch strings.ToLower(cfg.Exporter) {
	case ExporterFile:
		exporter, t.file, err = createFileExporter(cfg.File)
	case ExporterOTLP:
		exporter, err = createOTLPExporter(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	if exporter != nil {
		bopts := []sdktrace.BatchSpanProcessorOption{}
		if cfg.ExportTimeout > 0 {
			bopts = append(bopts, sdktrace.WithExportTimeout(cfg.ExportTimeout))
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, bopts...))
	}

	t.provider = sdktrace.NewTracerProvider(opts...)
	t.tracer = t.provider.Tracer(ServiceName)
	return t, nil
}

func createFileExporter(path string) (sdktrace.SpanExporter, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return exp, f, nil
}

func createOTLPExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// StartRun starts the root span of a run.
func (t *Tracer) StartRun(ctx context.Context, rc engine.RunContext) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "devbox.run", trace.WithAttributes(
		AttrRunID.String(rc.RunID),
		attribute.Bool("devbox.dry_run", rc.DryRun),
		attribute.Bool("devbox.force", rc.Force),
	))
}

// StartEntry starts a span for one entry.
func (t *Tracer) StartEntry(ctx context.Context, section engine.Section, e engine.Entry) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "devbox.entry "+e.ID(), trace.WithAttributes(
		AttrSection.String(string(section)),
		AttrEntry.String(e.Name),
		AttrRequired.String(e.RequiredVersion()),
	))
}

// EndRun closes the run span with the final status.
func EndRun(span trace.Span, res *engine.Result, err error) {
	if res != nil {
		span.SetAttributes(
			attribute.String("devbox.run_status", string(res.Status)),
			attribute.Int("devbox.failed", len(res.Summary.Failed)),
			attribute.Int("devbox.total", res.Summary.Total),
		)
		if len(res.Summary.Failed) > 0 {
			span.SetStatus(codes.Error, fmt.Sprintf("%d entries failed", len(res.Summary.Failed)))
		}
	}
	RecordError(span, err)
	span.End()
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes pending spans and closes the trace file.
func (t *Tracer) Shutdown(ctx context.Context) error {
	var err error
	if t.provider != nil {
		err = t.provider.Shutdown(ctx)
	}
	if t.file != nil {
		if cerr := t.file.Close(); err == nil {
			err = cerr
		}
		t.file = nil
	}
	return err
}
