package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSegments() []Segment {
	return []Segment{
		{Start: 0, End: 10, Text: "the quick brown fox jumps over the lazy dog near the river bank"},
		{Start: 10, End: 20, Text: "machine learning models process large datasets efficiently using gradient descent"},
		{Start: 20, End: 30, Text: "gradient descent optimizes neural network weights through backpropagation training"},
	}
}

func TestChunkTranscript_EmptySegmentsReturnsEmptyStore(t *testing.T) {
	store := ChunkTranscript(nil, 0, 0)
	assert.Empty(t, store.Chunks)
}

func TestChunkTranscript_SmallTargetProducesMultipleOverlappingChunks(t *testing.T) {
	store := ChunkTranscript(sampleSegments(), 5, 2)
	require.NotEmpty(t, store.Chunks)
	assert.Greater(t, len(store.Chunks), 1)
	for _, c := range store.Chunks {
		assert.LessOrEqual(t, c.TokenCount, 5)
	}
}

func TestChunkStore_SearchRanksRelevantChunkHigher(t *testing.T) {
	store := ChunkTranscript(sampleSegments(), 500, 100)
	results := store.Search("gradient descent training", 3)
	require.NotEmpty(t, results)

	top := store.Chunks[results[0].Index]
	assert.Contains(t, top.Text, "gradient")
}

func TestChunkStore_SearchWithNoIndexableTokensFallsBackToFirstChunks(t *testing.T) {
	store := ChunkTranscript(sampleSegments(), 5, 2)
	results := store.Search("the a an", 2)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, 0.0, r.Score)
	}
}

func TestChunkStore_ContextRespectsTokenBudget(t *testing.T) {
	store := ChunkTranscript(sampleSegments(), 5, 0)
	all := make([]int, len(store.Chunks))
	for i := range all {
		all[i] = i
	}
	ctx := store.Context(all, 5)
	assert.NotEmpty(t, ctx)

	full := store.Context(all, 1000000)
	assert.GreaterOrEqual(t, len(full), len(ctx))
}

func TestTokenize_DropsStopwordsAndSingleChars(t *testing.T) {
	toks := tokenize("The Quick Brown Fox a I")
	assert.NotContains(t, toks, "the")
	assert.NotContains(t, toks, "a")
	assert.NotContains(t, toks, "i")
	assert.Contains(t, toks, "quick")
	assert.Contains(t, toks, "brown")
}
