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
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DebugExporter is a SpanExporter that retains recent spans in memory so
// a debug endpoint can inspect a run's search_run/sandbox_execution/
// llm_request spans without a real tracing backend. Thread-safe.
type DebugExporter struct {
	mu      sync.RWMutex
	spans   map[string]*DebugSpan
	maxSize int
}

// DebugSpan is a captured span, attributes stringified for easy display.
type DebugSpan struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    int64             `json:"start_time_unix_nano"`
	EndTime      int64             `json:"end_time_unix_nano"`
	DurationMs   float64           `json:"duration_ms"`
	Attributes   map[string]string `json:"attributes"`
	Status       string            `json:"status"`
	StatusMsg    string            `json:"status_message,omitempty"`
}

const defaultDebugExporterMaxSize = 1000

// NewDebugExporter creates a DebugExporter retaining the last 1000 spans.
func NewDebugExporter() *DebugExporter {
	return &DebugExporter{spans: make(map[string]*DebugSpan), maxSize: defaultDebugExporterMaxSize}
}

// ExportSpans implements sdktrace.SpanExporter, capturing only the span
// names this module emits via Tracer.
func (e *DebugExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, span := range spans {
		if !e.shouldCapture(span.Name()) {
			continue
		}
		ds := e.convertSpan(span)
		e.spans[ds.SpanID] = ds
		e.evictOldest()
	}
	return nil
}

func (e *DebugExporter) shouldCapture(name string) bool {
	switch name {
	case SpanSearchRun, SpanSandboxExecution, SpanLLMRequest:
		return true
	default:
		return false
	}
}

func (e *DebugExporter) convertSpan(span sdktrace.ReadOnlySpan) *DebugSpan {
	start := span.StartTime().UnixNano()
	end := span.EndTime().UnixNano()

	ds := &DebugSpan{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		StartTime:  start,
		EndTime:    end,
		DurationMs: float64(end-start) / 1e6,
		Attributes: make(map[string]string),
		Status:     span.Status().Code.String(),
		StatusMsg:  span.Status().Description,
	}
	if span.Parent().HasSpanID() {
		ds.ParentSpanID = span.Parent().SpanID().String()
	}
	for _, attr := range span.Attributes() {
		ds.Attributes[string(attr.Key)] = attr.Value.AsString()
	}
	return ds
}

// evictOldest drops the earliest-started spans until at most maxSize
// remain. Caller must hold the write lock.
func (e *DebugExporter) evictOldest() {
	for len(e.spans) > e.maxSize {
		oldestID := ""
		var oldestStart int64
		for id, s := range e.spans {
			if oldestID == "" || s.StartTime < oldestStart {
				oldestID, oldestStart = id, s.StartTime
			}
		}
		delete(e.spans, oldestID)
	}
}

// Shutdown implements sdktrace.SpanExporter.
func (e *DebugExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = make(map[string]*DebugSpan)
	return nil
}

// GetAllSpans returns every captured span.
func (e *DebugExporter) GetAllSpans() []*DebugSpan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*DebugSpan, 0, len(e.spans))
	for _, s := range e.spans {
		out = append(out, s)
	}
	return out
}

// GetSpansByTrace returns every captured span sharing traceID.
func (e *DebugExporter) GetSpansByTrace(traceID string) []*DebugSpan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*DebugSpan
	for _, s := range e.spans {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of captured spans.
func (e *DebugExporter) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.spans)
}

var _ sdktrace.SpanExporter = (*DebugExporter)(nil)
