// Package synth collapses a search tree's evaluated leaves into a single
// user-facing answer and a confidence score.
package synth

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/tokencount"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

const maxCandidates = 10

// failureAnswer is returned when the tree has no eligible candidate to
// synthesize from.
const failureAnswer = "No sufficiently confident answer was found."

// Synthesizer asks an LLM to produce a coherent final answer from the
// tree's best evaluated leaves.
type Synthesizer struct {
	llm     llm.Client
	model   string
	counter *tokencount.Counter
}

func New(client llm.Client, model string, counter *tokencount.Counter) *Synthesizer {
	return &Synthesizer{llm: client, model: model, counter: counter}
}

type candidate struct {
	node *tree.Node
}

// candidatesFrom gathers every answer node with visits > 0, plus every
// code node with non-empty stdout and visits > 0, ranked by avg_value
// descending and capped at maxCandidates.
func candidatesFrom(nodes []*tree.Node) []candidate {
	var out []candidate
	for _, n := range nodes {
		if n.Visits == 0 {
			continue
		}
		if n.Kind == tree.KindAnswer || (n.Kind == tree.KindCode && n.Stdout != "") {
			out = append(out, candidate{node: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].node.AvgValue() > out[j].node.AvgValue()
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// Synthesize implements the contract: synthesize(question, ranked_results,
// context_length) -> string, confidence.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, nodes []*tree.Node, contextBudgetTokens int) (string, float64, error) {
	cands := candidatesFrom(nodes)
	if len(cands) == 0 {
		return failureAnswer, 0.0, nil
	}

	best := cands[0].node.AvgValue()
	confidence := math.Min(best, 1.0)

	prompt := s.buildPrompt(question, cands, contextBudgetTokens)
	resp, err := s.llm.Chat(ctx, llm.Request{
		Model:    s.model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("synth: synthesis request failed: %w", err)
	}
	return strings.TrimSpace(resp), confidence, nil
}

func (s *Synthesizer) buildPrompt(question string, cands []candidate, budgetTokens int) string {
	var sb strings.Builder
	sb.WriteString("Question: " + question + "\n\n")
	sb.WriteString("Candidate findings, ranked by confidence:\n")
	for i, c := range cands {
		line := fmt.Sprintf("%d. [%s, score=%.2f] %s\n", i+1, c.node.Kind, c.node.AvgValue(), summaryOf(c.node))
		if s.counter != nil && budgetTokens > 0 && s.counter.Count(sb.String()+line) > budgetTokens {
			break
		}
		sb.WriteString(line)
	}
	sb.WriteString("\nProduce one coherent, direct final answer to the question based on these findings.")
	return sb.String()
}

func summaryOf(n *tree.Node) string {
	if n.Kind == tree.KindAnswer {
		return n.Content
	}
	return n.Stdout
}
