// Package reward implements the two interchangeable evaluate(node,
// context) -> scalar ∈ [0,1] contracts: an LLM-as-judge scorer for the
// transcript variant and a five-signal algorithmic composite for the
// rubric variant.
package reward

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

// Judge scores a node by asking a judge model to grade it, short-
// circuiting the root to a fixed neutral score.
type Judge struct {
	llm   llm.Client
	model string
}

func NewJudge(client llm.Client, model string) *Judge {
	return &Judge{llm: client, model: model}
}

// firstNumber matches the first decimal literal anywhere in a response,
// grounded on the convention that the judge model is asked to lead its
// reply with a bare score.
var firstNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Evaluate implements the LLM-as-judge contract. The root always scores
// 0.5 unconditionally since it has no executed content to grade.
func (j *Judge) Evaluate(ctx context.Context, node *tree.Node, isRoot bool) (float64, error) {
	if isRoot {
		return 0.5, nil
	}

	prompt := fmt.Sprintf(
		"Grade the following search step on a scale from 0.0 to 1.0, where 1.0 means it "+
			"makes clear progress toward answering the question and 0.0 means it is useless or "+
			"erroneous. Reply with the numeric score first.\n\nType: %s\nContent: %s\nStdout: %s\nStderr: %s\n",
		node.Kind, node.Content, node.Stdout, node.Stderr,
	)
	resp, err := j.llm.Chat(ctx, llm.Request{
		Model:    j.model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return 0, fmt.Errorf("reward: judge request failed: %w", err)
	}
	return parseScoreFromResponse(resp), nil
}

// parseScoreFromResponse extracts the first numeric token in resp,
// clamping to [0,1] and defaulting to 0.5 when no number is found or the
// match fails to parse.
func parseScoreFromResponse(resp string) float64 {
	m := firstNumber.FindString(resp)
	if m == "" {
		return 0.5
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
