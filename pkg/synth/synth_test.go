package synth

import (
	"context"
	"testing"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ resp string }

func (f *fakeClient) Chat(ctx context.Context, req llm.Request) (string, error) {
	return f.resp, nil
}

func TestSynthesize_NoCandidatesReturnsFailureAndZero(t *testing.T) {
	s := New(&fakeClient{resp: "ignored"}, "gpt-4o", nil)
	answer, confidence, err := s.Synthesize(context.Background(), "q", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, failureAnswer, answer)
	assert.Equal(t, 0.0, confidence)
}

func TestSynthesize_RanksByAvgValueAndCapsConfidenceAtOne(t *testing.T) {
	s := New(&fakeClient{resp: "final answer text"}, "gpt-4o", nil)
	nodes := []*tree.Node{
		{Kind: tree.KindAnswer, Content: "low", Visits: 1, TotalValue: 0.2},
		{Kind: tree.KindAnswer, Content: "high", Visits: 1, TotalValue: 0.95},
		{Kind: tree.KindCode, Stdout: "", Visits: 1, TotalValue: 0.9}, // excluded: empty stdout
		{Kind: tree.KindStrategy, Visits: 1, TotalValue: 0.99},        // excluded: wrong kind
	}
	answer, confidence, err := s.Synthesize(context.Background(), "q", nodes, 0)
	require.NoError(t, err)
	assert.Equal(t, "final answer text", answer)
	assert.InDelta(t, 0.95, confidence, 1e-9)
}

func TestSynthesize_ExcludesUnvisitedNodes(t *testing.T) {
	s := New(&fakeClient{resp: "ok"}, "gpt-4o", nil)
	nodes := []*tree.Node{
		{Kind: tree.KindAnswer, Content: "unvisited", Visits: 0, TotalValue: 0},
	}
	answer, confidence, err := s.Synthesize(context.Background(), "q", nodes, 0)
	require.NoError(t, err)
	assert.Equal(t, failureAnswer, answer)
	assert.Equal(t, 0.0, confidence)
}
