package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/oraculum/pkg/engine"
	"github.com/kadirpekel/oraculum/pkg/logger"
	"github.com/kadirpekel/oraculum/pkg/policy"
	"github.com/kadirpekel/oraculum/pkg/reward"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/synth"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

// CompareResult is comparison_complete's payload: the plain pipeline's
// outcome alongside the full MCTS outcome and a handful of measured
// metrics about the run that produced it.
type CompareResult struct {
	Plain engine.PlainResult `json:"plain"`
	MCTS  MCTSResult         `json:"mcts"`
}

// MCTSResult is the MCTS half of a comparison run.
type MCTSResult struct {
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Metrics    map[string]any `json:"metrics"`
	Tree       tree.Snapshot  `json:"tree"`
}

// Compare runs the single-pass plain pipeline and the full MCTS engine
// concurrently against independent sandboxes over the same context:
// each engine is its own goroutine, every event it produces is tagged
// with its mode and pushed through the same emit sink, and a failure
// in one engine does not stop the other from draining to completion.
func (o *Orchestrator) Compare(ctx context.Context, req AskRequest, emit Emit) (CompareResult, error) {
	contextText, chunks, err := o.buildContext(req.VideoIDs)
	if err != nil {
		emit(Event{Type: EventError, Payload: map[string]any{"message": "No transcripts loaded."}})
		return CompareResult{}, err
	}

	runLog := logger.SearchRunLogger("compare", uuid.NewString())
	runLog.Info("search started", slog.Int("context_chars", len(contextText)))

	emit(Event{Type: EventSearchStarted, Payload: map[string]any{
		"question": req.Question, "context_chars": len(contextText),
	}})

	// Each engine runs against the original ctx, not a derived one, so
	// one engine's failure never cancels the other: both goroutines are
	// left to drain to completion (or to their own timeout) independently.
	var wg sync.WaitGroup
	wg.Add(2)

	var plainResult engine.PlainResult
	var plainErr error
	go func() {
		defer wg.Done()
		sb := sandbox.New(sandbox.VariantTranscript, o.cfg.Sandbox.Timeout, o.llmQueryFunc())
		sb.Seed("context", contextText)
		sb.Seed("chunks", chunksToList(chunks))
		p := policy.New(o.llm, o.cfg.LLM.PolicyModel, o.cfg.Search.HistoryLimit)
		ev := &engine.JudgeEvaluator{Judge: reward.NewJudge(o.llm, o.cfg.LLM.JudgeModel)}
		sy := synth.New(o.llm, o.cfg.LLM.PolicyModel, o.counter)

		res, err := engine.RunPlain(ctx, p, sb, sy, ev, req.Question, func(step engine.PlainStep) {
			emit(Event{Type: EventPlainStep, Mode: "plain", Payload: map[string]any{"step": step}})
		})
		if err != nil {
			plainErr = err
			return
		}
		plainResult = res
	}()

	var mctsResult MCTSResult
	var mctsErr error
	go func() {
		defer wg.Done()
		sb := sandbox.New(sandbox.VariantTranscript, o.cfg.Sandbox.Timeout, o.llmQueryFunc())
		sb.Seed("context", contextText)
		sb.Seed("chunks", chunksToList(chunks))
		p := policy.New(o.llm, o.cfg.LLM.PolicyModel, o.cfg.Search.HistoryLimit)
		ev := &engine.JudgeEvaluator{Judge: reward.NewJudge(o.llm, o.cfg.LLM.JudgeModel)}
		sy := synth.New(o.llm, o.cfg.LLM.PolicyModel, o.counter)

		t := tree.New(req.Question)
		maxIter := o.maxIterations(req.MaxIterations)
		eng := engine.New(t, sb, p, ev, sy, req.Question, engine.Config{
			MaxIterations: maxIter,
			MaxDepth:      o.cfg.Search.MaxDepth,
		})
		eng.OnNodeUpdate(func(u engine.NodeUpdate) {
			emit(Event{Type: EventNodeUpdate, Mode: "mcts", Payload: map[string]any{
				"node": u.Focal, "tree_snapshot": u.Snapshot,
			}})
		})

		answer, confidence, err := eng.Search(ctx)
		if err != nil {
			mctsErr = err
			return
		}
		mctsResult = MCTSResult{
			Answer:     answer,
			Confidence: confidence,
			Metrics:    map[string]any{"iterations": maxIter, "tree_size": t.Len()},
			Tree:       t.Snapshot(),
		}
	}()

	wg.Wait()

	if plainErr != nil || mctsErr != nil {
		err := plainErr
		if err == nil {
			err = mctsErr
		}
		runLog.Error("search failed", slog.String("err", err.Error()))
		emit(Event{Type: EventError, Payload: map[string]any{"message": err.Error()}})
		return CompareResult{}, err
	}

	result := CompareResult{Plain: plainResult, MCTS: mctsResult}
	emit(Event{Type: EventComparisonComplete, Payload: result})
	return result, nil
}
