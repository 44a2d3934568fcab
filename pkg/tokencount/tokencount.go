// Package tokencount provides accurate per-model token counting used to
// budget branch-history truncation and the synthesizer's context window.
package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a tiktoken encoding for one model.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// New returns a Counter for model, falling back to the cl100k_base
// encoding when the model has no registered tiktoken encoding.
func New(model string) (*Counter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: cached, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokencount: get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = enc
	cacheMu.Unlock()

	return &Counter{encoding: enc, model: model}, nil
}

// Count returns the exact token count for text.
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// Message is a role/content pair for chat-format token accounting.
type Message struct {
	Role    string
	Content string
}

// CountMessages counts tokens across a message list including the
// per-message role/format overhead OpenAI's chat format adds.
func (c *Counter) CountMessages(messages []Message) int {
	const perMessageOverhead = 3
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += c.Count(m.Role)
		total += c.Count(m.Content)
	}
	total += 3 // reply priming
	return total
}

// FitWithinBudget returns the suffix of messages (most recent first, kept
// in original order) that fits within maxTokens.
func (c *Counter) FitWithinBudget(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 {
		return messages
	}

	fitted := make([]Message, 0, len(messages))
	used := 3 // reply priming reserve

	for i := len(messages) - 1; i >= 0; i-- {
		cost := c.CountMessages([]Message{messages[i]})
		if used+cost > maxTokens {
			break
		}
		fitted = append([]Message{messages[i]}, fitted...)
		used += cost
	}
	return fitted
}

// Model returns the model name this Counter was constructed for.
func (c *Counter) Model() string { return c.model }
