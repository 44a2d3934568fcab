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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the search engine,
// sandbox, LLM client, and HTTP/WebSocket transport.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	searchRuns        *prometheus.CounterVec
	searchIterations  *prometheus.HistogramVec
	searchDuration    *prometheus.HistogramVec
	searchActive      *prometheus.GaugeVec

	sandboxExecutions *prometheus.CounterVec
	sandboxDuration   *prometheus.HistogramVec
	sandboxTimeouts   *prometheus.CounterVec

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	discoveryRuns       *prometheus.CounterVec
	discoveryEvalMAE    *prometheus.HistogramVec
	discoveryEvalAcc    *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	wsConnections *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance from configuration, or
// returns a nil Metrics (valid for every method below) when disabled.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}
	m.initSearchMetrics()
	m.initSandboxMetrics()
	m.initLLMMetrics()
	m.initDiscoveryMetrics()
	m.initHTTPMetrics()
	return m, nil
}

func (m *Metrics) initSearchMetrics() {
	m.searchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "search", Name: "runs_total",
		Help: "Total number of search runs by mode (ask, compare, discover) and outcome",
	}, []string{"mode", "outcome"})

	m.searchIterations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "search", Name: "iterations",
		Help:    "Number of MCTS iterations completed per run",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	}, []string{"mode"})

	m.searchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "search", Name: "duration_seconds",
		Help:    "Wall-clock duration of a search run",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"mode"})

	m.searchActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.config.Namespace, Subsystem: "search", Name: "active",
		Help: "Number of search runs currently in progress",
	}, []string{"mode"})

	m.registry.MustRegister(m.searchRuns, m.searchIterations, m.searchDuration, m.searchActive)
}

func (m *Metrics) initSandboxMetrics() {
	m.sandboxExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "sandbox", Name: "executions_total",
		Help: "Total number of sandbox code executions by variant and outcome",
	}, []string{"variant", "outcome"})

	m.sandboxDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "sandbox", Name: "duration_seconds",
		Help:    "Sandbox execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"variant"})

	m.sandboxTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "sandbox", Name: "timeouts_total",
		Help: "Total number of sandbox executions abandoned after timing out",
	}, []string{"variant"})

	m.registry.MustRegister(m.sandboxExecutions, m.sandboxDuration, m.sandboxTimeouts)
}

func (m *Metrics) initLLMMetrics() {
	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total number of LLM chat completions by model and caller",
	}, []string{"model", "caller"})

	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help:    "LLM chat completion duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model", "caller"})

	m.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "tokens_total",
		Help: "Total number of tokens counted by pkg/tokencount, by direction",
	}, []string{"model", "direction"})

	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "errors_total",
		Help: "Total number of LLM chat completion errors by model and caller",
	}, []string{"model", "caller"})

	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmTokens, m.llmErrors)
}

func (m *Metrics) initDiscoveryMetrics() {
	m.discoveryRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "discovery", Name: "runs_total",
		Help: "Total number of rubric-discovery runs by outcome",
	}, []string{"outcome"})

	m.discoveryEvalMAE = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "discovery", Name: "eval_mae",
		Help:    "Mean absolute error of the winning rubric against the held-out eval split",
		Buckets: prometheus.LinearBuckets(0, 0.05, 20),
	}, []string{})

	m.discoveryEvalAcc = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "discovery", Name: "eval_accuracy",
		Help:    "Fraction of eval predictions within tolerance of their actual score",
		Buckets: prometheus.LinearBuckets(0, 0.05, 20),
	}, []string{})

	m.registry.MustRegister(m.discoveryRuns, m.discoveryEvalMAE, m.discoveryEvalAcc)
}

func (m *Metrics) initHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "http", Name: "requests_total",
		Help: "Total number of HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.wsConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.config.Namespace, Subsystem: "ws", Name: "connections",
		Help: "Number of currently open WebSocket streaming connections",
	}, []string{})

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.wsConnections)
}

func (m *Metrics) RecordSearchRun(mode, outcome string, iterations int, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchRuns.WithLabelValues(mode, outcome).Inc()
	m.searchIterations.WithLabelValues(mode).Observe(float64(iterations))
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *Metrics) IncSearchActive(mode string) {
	if m == nil {
		return
	}
	m.searchActive.WithLabelValues(mode).Inc()
}

func (m *Metrics) DecSearchActive(mode string) {
	if m == nil {
		return
	}
	m.searchActive.WithLabelValues(mode).Dec()
}

func (m *Metrics) RecordSandboxExecution(variant, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sandboxExecutions.WithLabelValues(variant, outcome).Inc()
	m.sandboxDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

func (m *Metrics) RecordSandboxTimeout(variant string) {
	if m == nil {
		return
	}
	m.sandboxTimeouts.WithLabelValues(variant).Inc()
}

func (m *Metrics) RecordLLMCall(model, caller string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model, caller).Inc()
	m.llmCallDuration.WithLabelValues(model, caller).Observe(duration.Seconds())
}

func (m *Metrics) RecordLLMTokens(model, direction string, count int) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues(model, direction).Add(float64(count))
}

func (m *Metrics) RecordLLMError(model, caller string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(model, caller).Inc()
}

func (m *Metrics) RecordDiscoveryRun(outcome string, evalMAE, evalAccuracy float64) {
	if m == nil {
		return
	}
	m.discoveryRuns.WithLabelValues(outcome).Inc()
	m.discoveryEvalMAE.WithLabelValues().Observe(evalMAE)
	m.discoveryEvalAcc.WithLabelValues().Observe(evalAccuracy)
}

func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := http.StatusText(statusCode)
	if status == "" {
		status = "unknown"
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.wsConnections.WithLabelValues().Inc()
}

func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.wsConnections.WithLabelValues().Dec()
}

// Handler returns the HTTP handler serving this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
