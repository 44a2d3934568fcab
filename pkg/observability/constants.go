package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrLLMModel       = "llm.model"
	AttrErrorType      = "error.type"
	AttrStatusCode     = "http.status_code"

	SpanSearchRun        = "search.run"
	SpanSandboxExecution = "sandbox.execution"
	SpanLLMRequest       = "llm.request"

	DefaultServiceName  = "oraculum"
	DefaultOTLPEndpoint = "localhost:4318"
	DefaultSamplingRate = 1.0
	DefaultMetricsPath  = "/metrics"
)
