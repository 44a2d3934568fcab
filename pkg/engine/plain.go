package engine

import (
	"context"
	"fmt"

	"github.com/kadirpekel/oraculum/pkg/policy"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/synth"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

// PlainStep is one execution the single-pass pipeline emits, used by the
// orchestrator for comparison-mode plain_step events.
type PlainStep struct {
	Code   string
	Stdout string
	Stderr string
}

// PlainResult is the single-pass pipeline's outcome.
type PlainResult struct {
	Answer     string
	Confidence float64
	Steps      []PlainStep
}

// RunPlain implements the comparison path's plain pipeline: one policy
// call produces a code fragment, one sandbox execution runs it; if that
// failed or produced no output, exactly one follow-up policy call with
// the failure context produces one more fragment and one more execution;
// finally one synthesis call produces the answer and one evaluator call
// produces a confidence — at most four policy/judge calls total.
func RunPlain(ctx context.Context, p *policy.Policy, sb *sandbox.Sandbox, sy *synth.Synthesizer, ev Evaluator, question string, onStep func(PlainStep)) (PlainResult, error) {
	seeds, err := p.Expand(ctx, false, nil, question, "", "")
	if err != nil {
		return PlainResult{}, fmt.Errorf("plain: initial expansion failed: %w", err)
	}
	code := contentOf(seeds)

	res, sbErr := sb.Execute(ctx, code)
	step := stepFrom(code, res)
	steps := []PlainStep{step}
	if onStep != nil {
		onStep(step)
	}

	if sbErr != nil || step.Stdout == "" {
		history := []tree.HistoryTurn{
			{Role: "assistant", Content: code},
			{Role: "user", Content: step.Stdout + step.Stderr},
		}
		seeds2, err := p.Expand(ctx, false, history, question, step.Stdout, step.Stderr)
		if err != nil {
			return PlainResult{}, fmt.Errorf("plain: follow-up expansion failed: %w", err)
		}
		code = contentOf(seeds2)
		res, sbErr = sb.Execute(ctx, code)
		step = stepFrom(code, res)
		steps = append(steps, step)
		if onStep != nil {
			onStep(step)
		}
	}

	finalNode := &tree.Node{
		ID:         "plain-final",
		Kind:       tree.KindCode,
		Code:       code,
		Stdout:     step.Stdout,
		Stderr:     step.Stderr,
		Visits:     1,
		TotalValue: 1,
	}

	answer, _, err := sy.Synthesize(ctx, question, []*tree.Node{finalNode}, 0)
	if err != nil {
		return PlainResult{}, fmt.Errorf("plain: synthesis failed: %w", err)
	}

	confidence, err := ev.Evaluate(ctx, finalNode, false)
	if err != nil {
		return PlainResult{}, fmt.Errorf("plain: confidence evaluation failed: %w", err)
	}

	return PlainResult{Answer: answer, Confidence: confidence, Steps: steps}, nil
}

func contentOf(seeds []policy.Seed) string {
	if len(seeds) == 0 {
		return ""
	}
	return seeds[0].Content
}

func stepFrom(code string, res *sandbox.Result) PlainStep {
	if res == nil {
		return PlainStep{Code: code}
	}
	return PlainStep{Code: code, Stdout: res.Stdout, Stderr: res.Stderr}
}
