package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/kadirpekel/oraculum/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandbox_PersistsNamespaceAcrossCalls(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	ctx := context.Background()

	_, err := sb.Execute(ctx, "x = 10\n")
	require.NoError(t, err)

	res, err := sb.Execute(ctx, "x = x + 5\nprint(x)\n")
	require.NoError(t, err)
	assert.Equal(t, "15\n", res.Stdout)
	assert.Equal(t, "15", res.Variables["x"])
}

func TestSandbox_DisallowedImportFailsBeforeExecution(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	_, err := sb.Execute(context.Background(), "import os\nprint('should not run')\n")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSandboxFailure))
}

func TestSandbox_AllowedImportExecutes(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	res, err := sb.Execute(context.Background(), "import math\nr = math.sqrt(9)\nprint(r)\n")
	require.NoError(t, err)
	assert.Equal(t, "3\n", res.Stdout)
}

func TestSandbox_FinalVarMarkerResolvesNamespaceValue(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	res, err := sb.Execute(context.Background(), "answer = 'the capital is Paris'\nprint(FINAL_VAR(answer))\n")
	require.NoError(t, err)
	assert.True(t, res.HasFinal)
	assert.Contains(t, res.FinalVar, "the capital is Paris")
}

func TestSandbox_FinalVarBareStatementResolvesWithoutPrint(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	res, err := sb.Execute(context.Background(), "answer = 'the capital is Paris'\nFINAL_VAR(answer)\n")
	require.NoError(t, err)
	assert.True(t, res.HasFinal)
	assert.Contains(t, res.FinalVar, "the capital is Paris")
}

func TestSandbox_FinalVarQuotedArgumentStripsQuotes(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	res, err := sb.Execute(context.Background(), "answer = 'the capital is Paris'\nFINAL_VAR(\"answer\")\n")
	require.NoError(t, err)
	assert.True(t, res.HasFinal)
	assert.Contains(t, res.FinalVar, "the capital is Paris")
}

func TestSandbox_TimeoutAbandonsWorker(t *testing.T) {
	sb := New(VariantTranscript, 20*time.Millisecond, nil)
	_, err := sb.Execute(context.Background(), "i = 0\nwhile True:\n    i = i + 1\n")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSandboxFailure))
}

func TestSandbox_LLMQueryBudgetCapsAtThree(t *testing.T) {
	calls := 0
	sb := New(VariantRubric, time.Second, func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "answer", nil
	})
	code := "a = llm_query('1')\nb = llm_query('2')\nc = llm_query('3')\nd = llm_query('4')\n"
	_, err := sb.Execute(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSandbox_OutputTruncatedToCaps(t *testing.T) {
	sb := New(VariantTranscript, time.Second, nil)
	res, err := sb.Execute(context.Background(), "for i in range(2000):\n    print('x')\n")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Stdout), maxStdoutChars)
}
