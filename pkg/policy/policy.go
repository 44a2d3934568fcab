// Package policy turns a search node's accumulated context into one or
// more child-candidate seeds: the root gets a diversified set of static
// strategies without spending a sub-LLM call, every other node asks the
// provider-agnostic chat client for a refinement grounded in the branch's
// recent history and the parent's captured sandbox output.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

// SeedKind says whether a candidate becomes a code-typed or
// strategy-typed child once the engine instantiates it.
type SeedKind string

const (
	SeedKindCode     SeedKind = "code"
	SeedKindStrategy SeedKind = "strategy"
)

// Seed is one candidate returned by Expand.
type Seed struct {
	Kind    SeedKind
	Content string
}

// Policy is stateless between calls; the engine supplies whatever history
// a given expansion needs.
type Policy struct {
	llm          llm.Client
	model        string
	historyLimit int
}

// New constructs a Policy. historyLimit bounds how many trailing branch
// turns are included in non-root prompts (default 10 per spec).
func New(client llm.Client, model string, historyLimit int) *Policy {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Policy{llm: client, model: model, historyLimit: historyLimit}
}

// rootStrategies are the three diversified, sub-LLM-free seeds offered at
// the root: regex search, structural scan, statistical scan.
var rootStrategies = []string{
	"Use regular expressions to search the context for keyword or pattern matches relevant to the question.",
	"Perform a structural scan: split the context into lines or sections and examine positional/structural cues (headers, timestamps, indices).",
	"Perform a statistical scan: count term frequencies or distributions across the context to surface the most salient content.",
}

// Expand implements the Policy contract. isRoot selects the static
// diversified-strategy path; otherwise the branch history and the
// parent's captured output are folded into a chat request whose response
// is mined for fenced code fragments.
func (p *Policy) Expand(ctx context.Context, isRoot bool, history []tree.HistoryTurn, question, parentStdout, parentStderr string) ([]Seed, error) {
	if isRoot {
		seeds := make([]Seed, len(rootStrategies))
		for i, s := range rootStrategies {
			seeds[i] = Seed{Kind: SeedKindStrategy, Content: s}
		}
		return seeds, nil
	}

	messages := p.buildMessages(history, question, parentStdout, parentStderr)
	resp, err := p.llm.Chat(ctx, llm.Request{
		Model:       p.model,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("policy: expansion request failed: %w", err)
	}

	fragments := extractCodeFragments(resp)
	if len(fragments) == 0 {
		return []Seed{{Kind: SeedKindStrategy, Content: strings.TrimSpace(resp)}}, nil
	}

	seeds := make([]Seed, len(fragments))
	for i, f := range fragments {
		seeds[i] = Seed{Kind: SeedKindCode, Content: f}
	}
	return seeds, nil
}

func (p *Policy) buildMessages(history []tree.HistoryTurn, question, parentStdout, parentStderr string) []llm.Message {
	trimmed := history
	if len(trimmed) > p.historyLimit {
		trimmed = trimmed[len(trimmed)-p.historyLimit:]
	}

	msgs := []llm.Message{{
		Role: llm.RoleSystem,
		Content: "You refine a line of reasoning over a sandboxed code-execution environment. " +
			"Given the question, the branch's recent history, and the last execution's output, " +
			"produce the next code fragment in a fenced ```python block. Use FINAL_VAR(name) once " +
			"you have a confident final answer bound to a variable.",
	}}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "Question: " + question})
	for _, turn := range trimmed {
		msgs = append(msgs, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	if parentStdout != "" || parentStderr != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Last execution stdout:\n%s\n\nLast execution stderr:\n%s", parentStdout, parentStderr),
		})
	}
	return msgs
}
