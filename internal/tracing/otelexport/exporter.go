// Package otelexport mirrors run spans to an OpenTelemetry OTLP backend.
package otelexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

const defaultServiceName = "vidcoach"

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "vidcoach")
	Version     string            // reported as service.version
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts run spans to OTel spans and exports them via OTLP.
// It implements tracing.SpanExporter.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("OTLP endpoint is required")
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q (want grpc or http)", cfg.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithIDGenerator(archiveIDs{}),
	)
	return newExporter(tp), nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	return res, nil
}

func newExporter(tp *sdktrace.TracerProvider) *Exporter {
	return &Exporter{provider: tp, tracer: tp.Tracer("vidcoach")}
}

// ExportSpans converts spans and hands them to the OTel batcher.
func (e *Exporter) ExportSpans(ctx context.Context, spans []store.SpanData) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s store.SpanData) {
	traceID := uuidToTraceID(s.TraceID)

	parentCtx := ctx
	if s.ParentSpanID != nil {
		parentCtx = trace.ContextWithRemoteSpanContext(parentCtx, trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     uuidToSpanID(*s.ParentSpanID),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		}))
	}

	kind := trace.SpanKindInternal
	if s.SpanType == store.SpanTypeLLMCall {
		kind = trace.SpanKindClient
	}

	parentCtx = context.WithValue(parentCtx, archiveIDKey{}, s)
	_, span := e.tracer.Start(parentCtx, spanName(s),
		trace.WithTimestamp(s.StartTime),
		trace.WithSpanKind(kind),
		trace.WithAttributes(spanAttributes(s)...),
	)

	if s.Status == store.SpanStatusError {
		span.SetStatus(codes.Error, s.Error)
		if s.Error != "" {
			span.RecordError(errors.New(s.Error))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	endTime := s.StartTime.Add(time.Duration(s.DurationMS) * time.Millisecond)
	if s.EndTime != nil {
		endTime = *s.EndTime
	}
	span.End(trace.WithTimestamp(endTime))
}

func spanName(s store.SpanData) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.ToolName != "":
		return s.ToolName
	}
	return s.SpanType
}

// spanAttributes maps a span to gen_ai semantic attributes plus vidcoach.*
// correlation keys.
func spanAttributes(s store.SpanData) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("vidcoach.span_type", s.SpanType),
		attribute.String("vidcoach.run_id", s.TraceID.String()),
		attribute.String("vidcoach.span_id", s.ID.String()),
	}
	switch s.SpanType {
	case store.SpanTypeLLMCall:
		attrs = append(attrs, attribute.String("gen_ai.operation.name", "chat"))
	case store.SpanTypeToolCall:
		attrs = append(attrs, attribute.String("gen_ai.operation.name", "execute_tool"))
	}
	if s.Model != "" {
		attrs = append(attrs, attribute.String("gen_ai.request.model", s.Model))
	}
	if s.Provider != "" {
		attrs = append(attrs, attribute.String("gen_ai.system", s.Provider))
	}
	if s.InputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.input_tokens", s.InputTokens))
	}
	if s.OutputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.output_tokens", s.OutputTokens))
	}
	if s.FinishReason != "" {
		attrs = append(attrs, attribute.StringSlice("gen_ai.response.finish_reasons", []string{s.FinishReason}))
	}
	if s.ToolName != "" {
		attrs = append(attrs, attribute.String("gen_ai.tool.name", s.ToolName))
	}
	if s.ToolCallID != "" {
		attrs = append(attrs, attribute.String("gen_ai.tool.call.id", s.ToolCallID))
	}
	if s.DurationMS > 0 {
		attrs = append(attrs, attribute.Int("vidcoach.duration_ms", s.DurationMS))
	}
	if s.InputPreview != "" {
		attrs = append(attrs, attribute.String("vidcoach.input_preview", store.TruncatePreview(s.InputPreview)))
	}
	if s.OutputPreview != "" {
		attrs = append(attrs, attribute.String("vidcoach.output_preview", store.TruncatePreview(s.OutputPreview)))
	}
	return attrs
}

// Shutdown flushes remaining spans and stops the exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Debug("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}

type archiveIDKey struct{}

// archiveIDs makes the SDK reuse the archive ids: the run id becomes the
// trace id and each span id is derived from the span's uuid, so children
// exported with a remote parent land under the run span. Spans started
// without an archive span in ctx get random ids.
type archiveIDs struct{}

func (archiveIDs) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	if s, ok := ctx.Value(archiveIDKey{}).(store.SpanData); ok {
		return uuidToTraceID(s.TraceID), uuidToSpanID(s.ID)
	}
	id := store.GenNewID()
	return uuidToTraceID(id), uuidToSpanID(id)
}

func (archiveIDs) NewSpanID(ctx context.Context, _ trace.TraceID) trace.SpanID {
	if s, ok := ctx.Value(archiveIDKey{}).(store.SpanData); ok {
		return uuidToSpanID(s.ID)
	}
	return uuidToSpanID(store.GenNewID())
}

func uuidToTraceID(id [16]byte) trace.TraceID {
	return trace.TraceID(id)
}

// uuidToSpanID uses the last 8 bytes; the random tail of a v7 id.
func uuidToSpanID(id [16]byte) trace.SpanID {
	var sid trace.SpanID
	copy(sid[:], id[8:16])
	return sid
}
