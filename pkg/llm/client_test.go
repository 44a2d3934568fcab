package llm

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/oraculum/pkg/httpclient"
)

func TestUpstreamRetryStrategy(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   httpclient.RetryStrategy
	}{
		{"rate_limit_429", http.StatusTooManyRequests, httpclient.SmartRetry},
		{"internal_server_error_500", http.StatusInternalServerError, httpclient.ConservativeRetry},
		{"bad_gateway_502", http.StatusBadGateway, httpclient.ConservativeRetry},
		{"service_unavailable_503", http.StatusServiceUnavailable, httpclient.ConservativeRetry},
		{"gateway_timeout_504", http.StatusGatewayTimeout, httpclient.ConservativeRetry},
		{"bad_request_400", http.StatusBadRequest, httpclient.NoRetry},
		{"ok_200", http.StatusOK, httpclient.NoRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, upstreamRetryStrategy(tt.statusCode))
		})
	}
}

func TestNewOpenAIClient_DefaultsBaseURL(t *testing.T) {
	c := NewOpenAIClient("key", "")
	assert.Equal(t, "https://api.openai.com/v1", c.baseURL)
}

func TestNewOpenAIClient_KeepsCustomBaseURL(t *testing.T) {
	c := NewOpenAIClient("key", "https://my-proxy.internal/v1")
	assert.Equal(t, "https://my-proxy.internal/v1", c.baseURL)
}
