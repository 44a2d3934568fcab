package reward

import (
	"context"
	"testing"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJudgeClient struct {
	resp string
	err  error
}

func (f *fakeJudgeClient) Chat(ctx context.Context, req llm.Request) (string, error) {
	return f.resp, f.err
}

func TestJudge_Evaluate_RootAlwaysReturnsHalf(t *testing.T) {
	j := NewJudge(&fakeJudgeClient{resp: "0.9"}, "gpt-4o-mini")
	score, err := j.Evaluate(context.Background(), &tree.Node{}, true)
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
}

func TestJudge_Evaluate_ParsesLeadingScore(t *testing.T) {
	j := NewJudge(&fakeJudgeClient{resp: "0.8 - this step makes good progress"}, "gpt-4o-mini")
	score, err := j.Evaluate(context.Background(), &tree.Node{Kind: tree.KindCode}, false)
	require.NoError(t, err)
	assert.Equal(t, 0.8, score)
}

func TestJudge_Evaluate_ClampsOutOfRangeScore(t *testing.T) {
	j := NewJudge(&fakeJudgeClient{resp: "1.5"}, "gpt-4o-mini")
	score, err := j.Evaluate(context.Background(), &tree.Node{Kind: tree.KindCode}, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestJudge_Evaluate_DefaultsToHalfOnParseFailure(t *testing.T) {
	j := NewJudge(&fakeJudgeClient{resp: "no numbers here"}, "gpt-4o-mini")
	score, err := j.Evaluate(context.Background(), &tree.Node{Kind: tree.KindCode}, false)
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
}
