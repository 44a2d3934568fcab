package transcript

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Chunk is one overlapping, timestamped span of transcript text.
type Chunk struct {
	Index      int
	Text       string
	Start      float64
	End        float64
	TokenCount int
}

// ChunkStore holds chunks plus their TF-IDF index for retrieval.
type ChunkStore struct {
	Chunks []Chunk

	idf map[string]float64
	tf  []map[string]float64
}

const (
	defaultTargetTokens  = 500
	defaultOverlapTokens = 100
)

// ChunkTranscript splits transcript segments into overlapping word-count
// chunks and builds a TF-IDF index over them.
func ChunkTranscript(segments []Segment, targetTokens, overlapTokens int) *ChunkStore {
	if targetTokens <= 0 {
		targetTokens = defaultTargetTokens
	}
	if overlapTokens <= 0 {
		overlapTokens = defaultOverlapTokens
	}
	if len(segments) == 0 {
		return &ChunkStore{}
	}

	type word struct {
		text       string
		start, end float64
	}
	var words []word
	for _, seg := range segments {
		parts := strings.Fields(seg.Text)
		n := len(parts)
		if n == 0 {
			n = 1
		}
		duration := seg.End - seg.Start
		for i, w := range parts {
			t := seg.Start + (float64(i)/float64(n))*duration
			words = append(words, word{text: w, start: t, end: seg.End})
		}
	}

	var chunks []Chunk
	idx := 0
	chunkIndex := 0
	step := targetTokens - overlapTokens
	if step < 1 {
		step = 1
	}
	for idx < len(words) {
		end := idx + targetTokens
		if end > len(words) {
			end = len(words)
		}
		slice := words[idx:end]

		var sb strings.Builder
		for i, w := range slice {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w.text)
		}

		chunks = append(chunks, Chunk{
			Index:      chunkIndex,
			Text:       sb.String(),
			Start:      slice[0].start,
			End:        slice[len(slice)-1].end,
			TokenCount: len(slice),
		})
		chunkIndex++
		idx += step
	}

	store := &ChunkStore{Chunks: chunks}
	store.buildIndex()
	return store
}

// buildIndex computes per-chunk term frequencies and corpus-wide inverse
// document frequency: idf(t) = log((N+1)/(df(t)+1)) + 1.
func (s *ChunkStore) buildIndex() {
	docCount := len(s.Chunks)
	if docCount == 0 {
		return
	}

	df := map[string]int{}
	s.tf = make([]map[string]float64, 0, docCount)

	for _, chunk := range s.Chunks {
		tokens := tokenize(chunk.Text)
		counts := map[string]int{}
		for _, t := range tokens {
			counts[t]++
		}
		total := len(tokens)
		if total == 0 {
			total = 1
		}
		tf := make(map[string]float64, len(counts))
		seen := map[string]bool{}
		for t, c := range counts {
			tf[t] = float64(c) / float64(total)
			seen[t] = true
		}
		s.tf = append(s.tf, tf)
		for t := range seen {
			df[t]++
		}
	}

	s.idf = make(map[string]float64, len(df))
	for t, freq := range df {
		s.idf[t] = math.Log(float64(docCount+1)/float64(freq+1)) + 1
	}
}

// ScoredChunk is one search result: a chunk index and its relevance score.
type ScoredChunk struct {
	Index int
	Score float64
}

// Search returns the top-k chunk indices ranked by TF-IDF relevance to
// query. When the query has no indexed tokens (or the store is empty), it
// falls back to the first topK chunks in order, all scored 0.
func (s *ChunkStore) Search(query string, topK int) []ScoredChunk {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(s.tf) == 0 {
		n := topK
		if n > len(s.Chunks) {
			n = len(s.Chunks)
		}
		out := make([]ScoredChunk, n)
		for i := range out {
			out[i] = ScoredChunk{Index: i, Score: 0}
		}
		return out
	}

	scores := make([]ScoredChunk, len(s.tf))
	for i, tf := range s.tf {
		var score float64
		for _, t := range queryTokens {
			score += tf[t] * s.idf[t]
		}
		scores[i] = ScoredChunk{Index: i, Score: score}
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if topK < len(scores) {
		scores = scores[:topK]
	}
	return scores
}

// Context returns the combined, timestamp-prefixed text of the given
// chunk indices (sorted ascending), stopping once appending the next
// chunk would exceed maxTokens.
func (s *ChunkStore) Context(chunkIndices []int, maxTokens int) string {
	sorted := append([]int(nil), chunkIndices...)
	sort.Ints(sorted)

	var lines []string
	total := 0
	for _, idx := range sorted {
		if idx < 0 || idx >= len(s.Chunks) {
			continue
		}
		chunk := s.Chunks[idx]
		if total+chunk.TokenCount > maxTokens {
			break
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTimestamp(chunk.Start), chunk.Text))
		total += chunk.TokenCount
	}
	return strings.Join(lines, "\n")
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "can": true, "to": true, "of": true, "in": true,
	"for": true, "on": true, "with": true, "at": true, "by": true, "from": true, "as": true,
	"into": true, "about": true, "between": true, "through": true, "during": true, "before": true,
	"after": true, "and": true, "but": true, "or": true, "nor": true, "not": true, "so": true,
	"yet": true, "both": true, "either": true, "neither": true, "each": true, "every": true,
	"all": true, "any": true, "few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "no": true, "only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "because": true, "if": true, "when": true, "where": true,
	"how": true, "what": true, "which": true, "who": true, "whom": true, "this": true, "that": true,
	"these": true, "those": true, "i": true, "me": true, "my": true, "we": true, "our": true,
	"you": true, "your": true, "he": true, "him": true, "his": true, "she": true, "her": true,
	"it": true, "its": true, "they": true, "them": true, "their": true,
}

// tokenize lowercases, extracts [a-z0-9]+ runs, and drops stopwords and
// single-character tokens.
func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(matches))
	for _, w := range matches {
		if len(w) > 1 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
