package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/oraculum/pkg/apperr"
	"github.com/kadirpekel/oraculum/pkg/config"
	"github.com/kadirpekel/oraculum/pkg/dataset"
	"github.com/kadirpekel/oraculum/pkg/engine"
	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/logger"
	"github.com/kadirpekel/oraculum/pkg/policy"
	"github.com/kadirpekel/oraculum/pkg/reward"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/sandbox/interp"
	"github.com/kadirpekel/oraculum/pkg/synth"
	"github.com/kadirpekel/oraculum/pkg/tokencount"
	"github.com/kadirpekel/oraculum/pkg/transcript"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

const llmQueryTruncateChars = 100_000

// Orchestrator is the single entry point every transport (REST, the
// WebSocket stream) drives. It owns the process-wide transcript cache
// and LLM client and the currently loaded rubric-discovery dataset, but
// never a tree: trees are request-scoped and live only for the duration
// of one Ask/Compare/Discover call.
type Orchestrator struct {
	cache   *transcript.Cache
	llm     llm.Client
	counter *tokencount.Counter
	cfg     config.Config

	mu      sync.RWMutex
	split   *dataset.Split
	summary dataset.Summary
	hasData bool
}

func New(cache *transcript.Cache, client llm.Client, counter *tokencount.Counter, cfg config.Config) *Orchestrator {
	return &Orchestrator{cache: cache, llm: client, counter: counter, cfg: cfg}
}

// AskRequest parameterizes both Ask and the MCTS half of Compare.
type AskRequest struct {
	Question      string
	VideoIDs      []string
	MaxIterations int
}

func (o *Orchestrator) maxIterations(requested int) int {
	if requested > 0 {
		return requested
	}
	return o.cfg.Search.MaxIterations
}

// buildContext joins every cached video's transcript named by ids into
// one context string, erroring if ids is empty or names nothing cached.
func (o *Orchestrator) buildContext(ids []string) (string, []transcript.Chunk, error) {
	if len(ids) == 0 {
		return "", nil, &apperr.Error{Kind: apperr.KindValidation, Msg: "no transcript context", Err: apperr.ErrNoContext}
	}
	videos := o.cache.GetAll(ids)
	if len(videos) == 0 {
		return "", nil, &apperr.Error{Kind: apperr.KindValidation, Msg: "unknown video ids", Err: apperr.ErrUnknownVideos}
	}

	var sb strings.Builder
	var chunks []transcript.Chunk
	for _, v := range videos {
		text := transcript.Join(v.Segments)
		sb.WriteString(text)
		sb.WriteString("\n")
		chunks = append(chunks, transcript.ChunkTranscript(v.Segments, 0, 0).Chunks...)
	}
	return sb.String(), chunks, nil
}

// llmQueryFunc adapts the orchestrator's LLM client into the sandbox's
// budgeted llm_query hook, truncating prompts at the fixed cap before
// they ever reach the provider.
func (o *Orchestrator) llmQueryFunc() interp.LLMQueryFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		if len(prompt) > llmQueryTruncateChars {
			prompt = prompt[:llmQueryTruncateChars] + "...[truncated]"
		}
		return o.llm.Chat(ctx, llm.Request{
			Model:    o.cfg.LLM.PolicyModel,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		})
	}
}

func chunksToList(chunks []transcript.Chunk) *interp.List {
	elems := make([]interp.Value, len(chunks))
	for i, c := range chunks {
		d := interp.NewDict()
		d.Set("text", c.Text)
		d.Set("start", c.Start)
		d.Set("end", c.End)
		elems[i] = d
	}
	return &interp.List{Elems: elems}
}

// Ask runs the full MCTS loop over the transcript variant and returns
// the synthesized answer and confidence, emitting the standard
// search_started/node_update/answer_ready/search_complete sequence as it
// goes.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest, emit Emit) (string, float64, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", 0, &apperr.Error{Kind: apperr.KindValidation, Msg: "no question", Err: apperr.ErrNoQuestion}
	}
	contextText, chunks, err := o.buildContext(req.VideoIDs)
	if err != nil {
		emit(Event{Type: EventError, Payload: map[string]any{"message": "No transcripts loaded."}})
		return "", 0, err
	}

	runLog := logger.SearchRunLogger("ask", uuid.NewString())
	runLog.Info("search started", slog.Int("context_chars", len(contextText)))

	emit(Event{Type: EventSearchStarted, Payload: map[string]any{
		"question": req.Question, "context_chars": len(contextText),
	}})

	sb := sandbox.New(sandbox.VariantTranscript, o.cfg.Sandbox.Timeout, o.llmQueryFunc())
	sb.Seed("context", contextText)
	sb.Seed("chunks", chunksToList(chunks))

	p := policy.New(o.llm, o.cfg.LLM.PolicyModel, o.cfg.Search.HistoryLimit)
	ev := &engine.JudgeEvaluator{Judge: reward.NewJudge(o.llm, o.cfg.LLM.JudgeModel)}
	sy := synth.New(o.llm, o.cfg.LLM.PolicyModel, o.counter)

	t := tree.New(req.Question)
	emitRootSnapshot(emit, t)

	eng := engine.New(t, sb, p, ev, sy, req.Question, engine.Config{
		MaxIterations: o.maxIterations(req.MaxIterations),
		MaxDepth:      o.cfg.Search.MaxDepth,
	})
	eng.OnNodeUpdate(func(u engine.NodeUpdate) { emitNodeUpdate(emit, u) })

	answer, confidence, err := eng.Search(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindCanceled) || ctx.Err() != nil {
			return "", 0, err
		}
		runLog.Error("search failed", slog.String("err", err.Error()))
		emit(Event{Type: EventError, Payload: map[string]any{"message": err.Error()}})
		return "", 0, err
	}

	emit(Event{Type: EventAnswerReady, Payload: map[string]any{"answer": answer, "confidence": confidence}})
	emit(Event{Type: EventSearchComplete, Payload: map[string]any{
		"answer": answer, "confidence": confidence, "tree": t.Snapshot(),
	}})
	return answer, confidence, nil
}

func emitRootSnapshot(emit Emit, t *tree.Tree) {
	focal, ok := t.NodeSnapshot(t.RootID())
	if !ok {
		return
	}
	emit(Event{Type: EventNodeUpdate, Payload: map[string]any{"node": focal, "tree_snapshot": t.Snapshot()}})
}

func emitNodeUpdate(emit Emit, u engine.NodeUpdate) {
	emit(Event{Type: EventNodeUpdate, Payload: map[string]any{"node": u.Focal, "tree_snapshot": u.Snapshot}})
}
