package policy

import (
	"context"
	"testing"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	resp string
	err  error
	seen []llm.Request
}

func (f *fakeClient) Chat(ctx context.Context, req llm.Request) (string, error) {
	f.seen = append(f.seen, req)
	return f.resp, f.err
}

func TestPolicy_Expand_RootReturnsThreeDiverseStrategiesWithoutLLM(t *testing.T) {
	fc := &fakeClient{}
	p := New(fc, "gpt-4o", 10)

	seeds, err := p.Expand(context.Background(), true, nil, "how many lines?", "", "")
	require.NoError(t, err)
	assert.Len(t, seeds, 3)
	for _, s := range seeds {
		assert.Equal(t, SeedKindStrategy, s.Kind)
	}
	assert.Empty(t, fc.seen, "root expansion must not invoke the sub-LLM")
}

func TestPolicy_Expand_NonRootExtractsCodeFromResponse(t *testing.T) {
	fc := &fakeClient{resp: "```python\nprint(len(context))\n```\n"}
	p := New(fc, "gpt-4o", 10)

	history := []tree.HistoryTurn{{Role: "assistant", Content: "prior code"}}
	seeds, err := p.Expand(context.Background(), false, history, "q", "out", "")
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, SeedKindCode, seeds[0].Kind)
	assert.Contains(t, seeds[0].Content, "print(len(context))")
	require.Len(t, fc.seen, 1)
}

func TestPolicy_Expand_NonRootFallsBackToStrategyWhenNoFences(t *testing.T) {
	fc := &fakeClient{resp: "Try narrowing the search to the first third of the transcript."}
	p := New(fc, "gpt-4o", 10)

	seeds, err := p.Expand(context.Background(), false, nil, "q", "", "")
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, SeedKindStrategy, seeds[0].Kind)
}

func TestPolicy_Expand_CapsHistoryToLimit(t *testing.T) {
	fc := &fakeClient{resp: "```python\npass\n```\n"}
	p := New(fc, "gpt-4o", 2)

	history := []tree.HistoryTurn{
		{Role: "user", Content: "turn1"},
		{Role: "assistant", Content: "turn2"},
		{Role: "user", Content: "turn3"},
	}
	_, err := p.Expand(context.Background(), false, history, "q", "", "")
	require.NoError(t, err)
	msgs := fc.seen[0].Messages
	joined := ""
	for _, m := range msgs {
		joined += m.Content + "|"
	}
	assert.NotContains(t, joined, "turn1")
	assert.Contains(t, joined, "turn2")
	assert.Contains(t, joined, "turn3")
}
