// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an OpenTelemetry TracerProvider scoped to one Advance call's
// span tree: a root "workflow.advance" span with child spans for the lock
// acquisition, the agent invocation, and the checkpoint write it performs
// (§6.1).
type Tracer struct {
	provider      *sdktrace.TracerProvider
	tracer        trace.Tracer
	debugExporter *DebugExporter
}

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures NewTracer.
type TracerOption func(*tracerOptions)

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured primary exporter, for introspection via Manager.DebugExporter.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = d }
}

// WithCapturePayloads enables stage input/output payloads as span
// attributes; callers decide whether to honor it since payloads can be
// large (§6.1 CapturePayloads).
func WithCapturePayloads(capture bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = capture }
}

// NewTracer builds a Tracer from cfg. Only the "stdout" exporter is wired
// (go.opentelemetry.io/otel/exporters/stdout/stdouttrace); cfg.Validate
// rejects any other exporter name before this is reached.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	var options tracerOptions
	for _, opt := range opts {
		opt(&options)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String(AttrServiceName, cfg.ServiceName),
		attribute.String(AttrServiceVersion, cfg.ServiceVersion),
	))
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if options.debugExporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(
			sdktrace.NewSimpleSpanProcessor(options.debugExporter)))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	return &Tracer{
		provider:      provider,
		tracer:        provider.Tracer("github.com/kadirpekel/wikiforge"),
		debugExporter: options.debugExporter,
	}, nil
}

// Start opens a span named name, nil-safe for a disabled Tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartAdvance opens the root span for one Engine.Advance call.
func (t *Tracer) StartAdvance(ctx context.Context, workflowID string, currentStage string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanAdvance, trace.WithAttributes(
		attribute.String(AttrWorkflowID, workflowID),
		attribute.String(AttrStage, currentStage),
	))
}

// StartLockAcquire opens a child span for the lock acquisition phase.
func (t *Tracer) StartLockAcquire(ctx context.Context, resourceName string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanLockAcquire, trace.WithAttributes(
		attribute.String(AttrLockResource, resourceName),
	))
}

// StartAgentInvoke opens a child span for the agent's Process call.
func (t *Tracer) StartAgentInvoke(ctx context.Context, workflowID string, currentStage string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanAgentInvoke, trace.WithAttributes(
		attribute.String(AttrWorkflowID, workflowID),
		attribute.String(AttrStage, currentStage),
	))
}

// StartCheckpointSave opens a child span for a checkpoint write.
func (t *Tracer) StartCheckpointSave(ctx context.Context, workflowID string, kind string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanCheckpointSave, trace.WithAttributes(
		attribute.String(AttrWorkflowID, workflowID),
		attribute.String(AttrCheckpointKind, kind),
	))
}

// RecordError marks span as failed and attaches err, nil-safe on both args.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// DebugExporter returns the attached in-memory span exporter, or nil.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

var noopTracer = noop.NewTracerProvider().Tracer("noop")

func noopSpan() trace.Span {
	_, span := noopTracer.Start(context.Background(), "noop")
	return span
}
