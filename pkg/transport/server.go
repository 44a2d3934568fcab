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

// Package transport exposes the orchestrator over HTTP: a small REST
// surface for transcript ingestion and dataset loading, plus a single
// WebSocket endpoint that drives Ask/Compare/Discover and streams their
// event sequence back to the client.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/oraculum/pkg/observability"
	"github.com/kadirpekel/oraculum/pkg/orchestrator"
	"github.com/kadirpekel/oraculum/pkg/transcript"
)

// Server wires the orchestrator and an optional observability manager
// into a chi router. It owns no listener of its own; callers drive it
// with &http.Server{Handler: server.Router()} or httptest.
type Server struct {
	orch  *orchestrator.Orchestrator
	cache *transcript.Cache
	ing   transcript.Ingester
	obs   *observability.Manager
}

// New builds a Server. ing is the transcript ingester /transcribe uses;
// a real deployment supplies one backed by subtitle parsing, tests and
// demos use transcript.FakeIngester.
func New(orch *orchestrator.Orchestrator, cache *transcript.Cache, ing transcript.Ingester, obs *observability.Manager) *Server {
	return &Server{orch: orch, cache: cache, ing: ing, obs: obs}
}

// Router builds the chi router: REST endpoints plus the /ws streaming
// endpoint and, when enabled, the Prometheus /metrics endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/transcribe", s.handleTranscribe)
	r.Post("/ask", s.handleAsk)
	r.Post("/load-dataset", s.handleLoadDataset)
	r.Get("/dataset-info", s.handleDatasetInfo)
	r.Get("/eval-results", s.handleEvalResults)
	r.Get("/debug/traces", s.handleDebugTraces)
	r.Get("/ws", s.handleWebSocket)

	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Handle(s.obs.MetricsEndpoint(), s.obs.MetricsHandler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// responseWriter wraps http.ResponseWriter to capture the status code a
// handler wrote, so the metrics middleware can record it after the fact.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// metricsMiddleware records request counts and durations against the
// configured route pattern, read from chi's RouteContext once routing
// has matched rather than the raw (unbounded-cardinality) path.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.obs == nil || !s.obs.MetricsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.obs.Metrics().RecordHTTPRequest(r.Method, pattern, wrapped.statusCode, time.Since(start))
	})
}

func (s *Server) startSpan(ctx context.Context, mode, question string, maxIterations int) (context.Context, func()) {
	if s.obs == nil || !s.obs.TracingEnabled() {
		return ctx, func() {}
	}
	spanCtx, span := s.obs.Tracer().StartSearchRun(ctx, mode, question, maxIterations)
	return spanCtx, func() { span.End() }
}
