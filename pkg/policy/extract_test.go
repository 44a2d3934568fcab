package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeFragments_PrefersLabelledFences(t *testing.T) {
	resp := "Here:\n```python\nprint(1)\n```\nand also\n```\nignored\n```\n"
	got := extractCodeFragments(resp)
	assert.Equal(t, []string{"print(1)\n"}, got)
}

func TestExtractCodeFragments_FallsBackToUnlabelled(t *testing.T) {
	resp := "```\nprint(2)\n```\n"
	got := extractCodeFragments(resp)
	assert.Equal(t, []string{"print(2)\n"}, got)
}

func TestExtractCodeFragments_DedupsDuplicates(t *testing.T) {
	resp := "```python\nprint(1)\n```\n```python\nprint(1)\n```\n```python\nprint(2)\n```\n"
	got := extractCodeFragments(resp)
	assert.Equal(t, []string{"print(1)\n", "print(2)\n"}, got)
}

func TestExtractCodeFragments_NoFencesReturnsEmpty(t *testing.T) {
	got := extractCodeFragments("just plain text, no code blocks here")
	assert.Empty(t, got)
}
