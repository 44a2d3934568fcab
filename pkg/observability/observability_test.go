package observability

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestMetrics_NilIsSafeForEveryRecorder(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSearchRun("ask", "ok", 5, time.Second)
		m.IncSearchActive("ask")
		m.DecSearchActive("ask")
		m.RecordSandboxExecution("transcript", "ok", 10*time.Millisecond)
		m.RecordSandboxTimeout("rubric")
		m.RecordLLMCall("gpt-4o", "policy", 200*time.Millisecond)
		m.RecordLLMTokens("gpt-4o", "input", 120)
		m.RecordLLMError("gpt-4o", "judge")
		m.RecordDiscoveryRun("ok", 0.1, 0.9)
		m.RecordHTTPRequest("POST", "/ask", 200, 15*time.Millisecond)
		m.IncWSConnections()
		m.DecWSConnections()
	})
}

func TestNewMetrics_DisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNewMetrics_EnabledRecordsAgainstRegistry(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordSearchRun("discover", "ok", 3, 2*time.Second)
	m.RecordHTTPRequest("GET", "/dataset-info", 200, time.Millisecond)

	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestMetrics_HandlerServesWhenEnabled(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestMetrics_HandlerReturns503WhenNil(t *testing.T) {
	var m *Metrics
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 503, rec.Code)
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, DefaultServiceName, cfg.Metrics.Namespace)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestTracingConfig_ValidateRejectsUnknownExporter(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, Exporter: "otlp", Endpoint: "x", SamplingRate: 1}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestTracingConfig_ValidateAcceptsStdout(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, Exporter: "stdout", Endpoint: "x", SamplingRate: 1}
	assert.NoError(t, cfg.Validate())
}

func TestNewManager_NilConfigIsSafe(t *testing.T) {
	m, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.Nil(t, m.Tracer())
	assert.Nil(t, m.Metrics())
}

func TestNewManager_MetricsEnabledBuildsWorkingHandler(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, m.MetricsEnabled())

	req := httptest.NewRequest("GET", m.MetricsEndpoint(), nil)
	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNewManager_TracingEnabledStartsAndShutsDown(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Enabled: true}}
	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, m.TracingEnabled())

	ctx, span := m.Tracer().StartSearchRun(context.Background(), "ask", "how many?", 5)
	span.End()
	_ = ctx

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_RecentSearchRunsIsEmptyWithoutTracing(t *testing.T) {
	m, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m.RecentSearchRuns(10))
}

func TestManager_RecentSearchRunsReturnsCapturedSpansNewestFirst(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Enabled: true}}
	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, m.DebugExporter())

	_, span1 := m.Tracer().StartSearchRun(context.Background(), "ask", "first?", 3)
	span1.End()
	_, span2 := m.Tracer().StartSearchRun(context.Background(), "discover", "second?", 5)
	span2.End()

	runs := m.RecentSearchRuns(1)
	require.Len(t, runs, 1)
	assert.Equal(t, "discover", runs[0].Attributes["search.mode"])
}

func TestDebugExporter_CapturesOnlyKnownSpanNamesAndEvicts(t *testing.T) {
	d := NewDebugExporter()
	d.maxSize = 2

	cfg := &Config{Tracing: TracingConfig{Enabled: true}}
	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	_ = m
	assert.Equal(t, 0, d.Count())

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(d))
	tr := tp.Tracer("test")
	_, other := tr.Start(context.Background(), "unrelated.span")
	other.End()
	for i := 0; i < 3; i++ {
		_, s := tr.Start(context.Background(), SpanSearchRun)
		s.End()
	}
	assert.Equal(t, 2, d.Count())
	for _, s := range d.GetAllSpans() {
		assert.Equal(t, SpanSearchRun, s.Name)
	}
}
