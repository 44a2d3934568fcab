package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kadirpekel/oraculum/pkg/config"
	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers every Chat call by matching the request's last
// message content against a set of substring rules, falling back to a
// default. This lets one fake stand in for the policy, judge, and
// synthesizer models a real run would route to three different prompts.
type scriptedClient struct {
	rules    []scriptRule
	fallback string
}

type scriptRule struct {
	contains string
	response string
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.Request) (string, error) {
	var last string
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	for _, r := range c.rules {
		if strings.Contains(last, r.contains) {
			return r.response, nil
		}
	}
	return c.fallback, nil
}

func newTestOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, *transcript.Cache) {
	t.Helper()
	cache := transcript.NewCache()
	cache.Put(transcript.Video{
		Metadata: transcript.Metadata{VideoID: "v1", Title: "intro"},
		Segments: []transcript.Segment{{Start: 0, End: 2, Text: "hello world"}},
	})

	cfg := config.Config{}
	cfg.SetDefaults()
	cfg.Search.MaxIterations = 1
	cfg.Sandbox.Timeout = 2 * time.Second

	return New(cache, client, nil, cfg), cache
}

// eventCollector records emitted events under a mutex, since Compare
// drives its two engines from separate goroutines that emit concurrently.
type eventCollector struct {
	mu   sync.Mutex
	list []Event
}

func (c *eventCollector) emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, e)
}

func (c *eventCollector) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.list...)
}

func TestOrchestrator_Ask_EmptyVideoIDsReturnsValidationErrorAndEmitsError(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedClient{fallback: "n/a"})
	c := &eventCollector{}

	_, _, err := o.Ask(context.Background(), AskRequest{Question: "what happens?"}, c.emit)
	require.Error(t, err)

	events := c.events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1].Type)
}

func TestOrchestrator_Ask_BlankQuestionReturnsValidationErrorWithoutBuildingContext(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedClient{fallback: "n/a"})
	c := &eventCollector{}

	_, _, err := o.Ask(context.Background(), AskRequest{Question: "   ", VideoIDs: []string{"v1"}}, c.emit)
	require.Error(t, err)
	assert.Empty(t, c.events(), "question validation must fail before any event is emitted")
}

func TestOrchestrator_Ask_HappyPathEmitsFullEventSequenceAndSynthesizesAnswer(t *testing.T) {
	client := &scriptedClient{
		rules: []scriptRule{
			{contains: "Grade the following", response: "0.9"},
		},
		fallback: "the answer is 42",
	}
	o, _ := newTestOrchestrator(t, client)
	c := &eventCollector{}

	answer, confidence, err := o.Ask(context.Background(), AskRequest{
		Question: "how many words are in the transcript?",
		VideoIDs: []string{"v1"},
	}, c.emit)
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.GreaterOrEqual(t, confidence, 0.0)

	events := c.events()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, EventSearchStarted, events[0].Type)
	assert.Equal(t, EventNodeUpdate, events[1].Type, "root snapshot must be emitted before the loop starts")

	var sawAnswerReady, sawComplete bool
	for _, e := range events {
		switch e.Type {
		case EventAnswerReady:
			sawAnswerReady = true
		case EventSearchComplete:
			sawComplete = true
			assert.True(t, sawAnswerReady, "answer_ready must precede search_complete")
		}
	}
	assert.True(t, sawAnswerReady)
	assert.True(t, sawComplete)
}

func TestOrchestrator_Ask_UnknownVideoIDsIsValidationError(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedClient{fallback: "n/a"})
	c := &eventCollector{}

	_, _, err := o.Ask(context.Background(), AskRequest{Question: "q", VideoIDs: []string{"missing"}}, c.emit)
	require.Error(t, err)
}

func TestOrchestrator_Compare_EmitsPlainStepAndNodeUpdateBeforeComparisonComplete(t *testing.T) {
	client := &scriptedClient{
		rules: []scriptRule{
			{contains: "Grade the following", response: "0.7"},
		},
		fallback: "plain or synthesized answer",
	}
	o, _ := newTestOrchestrator(t, client)
	c := &eventCollector{}

	result, err := o.Compare(context.Background(), AskRequest{
		Question: "summarize the transcript",
		VideoIDs: []string{"v1"},
	}, c.emit)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Plain.Answer)
	assert.NotEmpty(t, result.MCTS.Answer)

	events := c.events()
	var sawPlainStep, sawNodeUpdate, sawComplete bool
	completeIdx := -1
	for i, e := range events {
		switch e.Type {
		case EventPlainStep:
			sawPlainStep = true
			assert.Equal(t, "plain", e.Mode)
		case EventNodeUpdate:
			sawNodeUpdate = true
			assert.Equal(t, "mcts", e.Mode)
		case EventComparisonComplete:
			sawComplete = true
			completeIdx = i
		}
	}
	assert.True(t, sawPlainStep)
	assert.True(t, sawNodeUpdate)
	require.True(t, sawComplete)
	assert.Equal(t, len(events)-1, completeIdx, "comparison_complete must be the final event")
}

func TestOrchestrator_Discover_NoDatasetLoadedReturnsValidationError(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedClient{fallback: "n/a"})
	c := &eventCollector{}

	_, err := o.Discover(context.Background(), DiscoverRequest{}, c.emit)
	require.Error(t, err)
	events := c.events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[0].Type)
}

func TestOrchestrator_LoadDataset_PopulatesSummaryAndDatasetInfo(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedClient{fallback: "n/a"})

	_, ok := o.DatasetInfo()
	assert.False(t, ok, "no dataset loaded yet")

	raw := []byte(`[
		{"input":"a","response":"ra","actual_score":0.1},
		{"input":"b","response":"rb","actual_score":0.5},
		{"input":"c","response":"rc","actual_score":0.9},
		{"input":"d","response":"rd","actual_score":0.95},
		{"input":"e","response":"re","actual_score":0.05}
	]`)
	summary, err := o.LoadDataset(raw)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.NumTraining+summary.NumEval)

	got, ok := o.DatasetInfo()
	require.True(t, ok)
	assert.Equal(t, summary, got)
}

func TestOrchestrator_Discover_HappyPathEmitsDiscoveryEventsWithEvalReport(t *testing.T) {
	client := &scriptedClient{
		fallback: "```python\ndef rubric_fn(response):\n    return 0.5\n```\n",
	}
	o, _ := newTestOrchestrator(t, client)

	raw := []byte(`[
		{"input":"a","response":"good answer","actual_score":0.8},
		{"input":"b","response":"bad answer","actual_score":0.1},
		{"input":"c","response":"ok answer","actual_score":0.5},
		{"input":"d","response":"great answer","actual_score":0.9},
		{"input":"e","response":"poor answer","actual_score":0.2},
		{"input":"f","response":"fine answer","actual_score":0.6}
	]`)
	_, err := o.LoadDataset(raw)
	require.NoError(t, err)

	c := &eventCollector{}
	result, err := o.Discover(context.Background(), DiscoverRequest{MaxIterations: 1}, c.emit)
	require.NoError(t, err)

	events := c.events()
	assert.Equal(t, EventDiscoveryStarted, events[0].Type)
	assert.Equal(t, EventDiscoveryComplete, events[len(events)-1].Type)
	assert.GreaterOrEqual(t, result.EvalCount, 0)
	assert.GreaterOrEqual(t, result.EvalMAE, 0.0)
}
