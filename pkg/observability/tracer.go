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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerOption configures a Tracer at construction time.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured one, used to back a debug/inspection endpoint.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = d }
}

// WithCapturePayloads makes StartLLMCall add the prompt's character count
// ("llm.prompt_chars") to its span. Request and response bodies are not
// recorded, with or without this option.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = enabled }
}

// Tracer wraps an OpenTelemetry TracerProvider configured from a
// TracingConfig, exposing the span-naming conventions this module's
// engine/sandbox/orchestrator code uses.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debugExporter   *DebugExporter
	capturePayloads bool
}

// NewTracer builds a Tracer backed by the exporter named in cfg. Only
// "stdout" is wired to a real exporter; any other non-empty value is
// rejected by TracingConfig.Validate before NewTracer is ever called.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	options := &tracerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: create stdout exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String(AttrServiceName, cfg.ServiceName),
		attribute.String(AttrServiceVersion, cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)
	if options.debugExporter != nil {
		provider.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(options.debugExporter))
	}

	otel.SetTracerProvider(provider)

	return &Tracer{
		provider:        provider,
		tracer:          provider.Tracer("github.com/kadirpekel/oraculum"),
		debugExporter:   options.debugExporter,
		capturePayloads: options.capturePayloads,
	}, nil
}

// Start opens a plain span named name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartSearchRun opens the root span for one Ask/Compare/Discover call.
func (t *Tracer) StartSearchRun(ctx context.Context, mode, question string, maxIterations int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSearchRun, trace.WithAttributes(
		attribute.String("search.mode", mode),
		attribute.Int("search.max_iterations", maxIterations),
		attribute.Int("search.question_len", len(question)),
	))
}

// StartSandboxExecution opens a span around one sandbox.Execute call.
func (t *Tracer) StartSandboxExecution(ctx context.Context, variant string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSandboxExecution, trace.WithAttributes(
		attribute.String("sandbox.variant", variant),
	))
}

// StartLLMCall opens a span around one llm.Client.Chat call.
func (t *Tracer) StartLLMCall(ctx context.Context, model, caller string, promptChars int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.String("llm.caller", caller),
	}
	if t.capturePayloads {
		attrs = append(attrs, attribute.Int("llm.prompt_chars", promptChars))
	}
	return t.tracer.Start(ctx, SpanLLMRequest, trace.WithAttributes(attrs...))
}

// DebugExporter returns the attached in-memory span exporter, or nil.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
