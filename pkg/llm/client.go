// Package llm is a provider-agnostic chat-completion client. The engine,
// policy, reward, and synthesizer packages depend only on this package's
// Client interface; a concrete OpenAI-compatible implementation is the
// only backend wired for now, configured entirely from environment
// variables (OPENAI_API_KEY, OPENAI_BASE_URL, POLICY_MODEL).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/oraculum/pkg/apperr"
	"github.com/kadirpekel/oraculum/pkg/httpclient"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request parameterizes a single chat completion.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client is the contract the rest of oraculum programs against. Two
// named models are used: one for policy/synthesis generation (larger,
// default "gpt-4o") and one for judge scoring (smaller, default
// "gpt-4o-mini"), both configurable via LLMConfig.
type Client interface {
	// Chat performs one completion and returns the assistant's text.
	Chat(ctx context.Context, req Request) (string, error)
}

// OpenAIClient implements Client against any OpenAI-compatible chat
// completions endpoint, hand-rolled over pkg/httpclient rather than a
// vendored SDK.
type OpenAIClient struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
}

// NewOpenAIClient constructs a client against baseURL (default
// "https://api.openai.com/v1" when empty) authenticated with apiKey.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		http: httpclient.New(
			httpclient.WithRetryStrategy(upstreamRetryStrategy),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
			httpclient.WithMaxRetries(1),
		),
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// upstreamRetryStrategy picks a retry strategy per status code. 429s get
// SmartRetry so the provider's rate-limit headers (parsed by
// ParseOpenAIHeaders) drive the wait instead of a guess; 5xxs get a fixed,
// conservative delay since those carry no rate-limit headers worth
// honoring. Everything else is not retried. NewOpenAIClient caps every
// request at one retry.
func upstreamRetryStrategy(statusCode int) httpclient.RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests:
		return httpclient.SmartRetry
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return httpclient.ConservativeRetry
	default:
		return httpclient.NoRetry
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat implements Client.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperr.Upstream("chat completion request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Upstream("reading chat completion response", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperr.Upstream("decoding chat completion response", err)
	}
	if parsed.Error != nil {
		return "", apperr.Upstream("provider error", fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.Upstream("provider response", fmt.Errorf("no choices returned"))
	}
	return parsed.Choices[0].Message.Content, nil
}

// WithTimeout returns a context bounded by d, for call sites (the
// sandbox's llm_query) that need a hard ceiling distinct from the
// session's overall context.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
