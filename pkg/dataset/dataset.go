// Package dataset loads pre-scored (input, response, actual_score, spec)
// records for the rubric-discovery variant, draws a deterministic
// stratified sample for the sandbox's injected sample set, and runs
// candidate rubric code against that sample to produce the predictions
// an Evaluator needs. Synthetic-response generation and the hidden
// grader that originally produced actual_score are out of scope: this
// package accepts records that already carry a score.
package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Record is one pre-scored rubric-discovery example.
type Record struct {
	Input       string         `json:"input"`
	Response    string         `json:"response"`
	ActualScore float64        `json:"actual_score"`
	Spec        map[string]any `json:"spec"`
}

// Dataset holds the full set of loaded records.
type Dataset struct {
	Records []Record
}

// Load decodes a JSON array of Record from raw bytes.
func Load(raw []byte) (*Dataset, error) {
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("dataset: decode: %w", err)
	}
	return &Dataset{Records: records}, nil
}

const (
	tierLowHigh  = 0.3 // score < tierLowHigh -> low tier
	tierMidHigh  = 0.7 // tierLowHigh <= score < tierMidHigh -> mid tier, else high
	defaultSeed  = 123
	defaultCount = 20
)

// tierOf buckets a score into "low", "mid", or "high".
func tierOf(score float64) string {
	switch {
	case score < tierLowHigh:
		return "low"
	case score < tierMidHigh:
		return "mid"
	default:
		return "high"
	}
}

// Sample draws a deterministic stratified subset of n records, split
// roughly evenly across the three score tiers so the policy sees the
// same examples across refinements within a session. per-tier count is
// max(n/3, 2); tiers with fewer records than requested contribute
// everything they have, and any shortfall is topped up from the
// remaining unpicked records so the sample still has n entries overall
// whenever the dataset has enough records.
func (d *Dataset) Sample(n int, seed int64) []Record {
	if n <= 0 {
		n = defaultCount
	}
	if seed == 0 {
		seed = defaultSeed
	}
	perTier := n / 3
	if perTier < 2 {
		perTier = 2
	}

	tiers := map[string][]Record{"low": nil, "mid": nil, "high": nil}
	for _, r := range d.Records {
		t := tierOf(r.ActualScore)
		tiers[t] = append(tiers[t], r)
	}

	rng := newLCG(seed)
	var out []Record
	picked := map[int]bool{}
	for _, tier := range []string{"low", "mid", "high"} {
		pool := append([]Record(nil), tiers[tier]...)
		shuffle(pool, rng)
		if len(pool) > perTier {
			pool = pool[:perTier]
		}
		for _, r := range pool {
			picked[r.hashKey()] = true
		}
		out = append(out, pool...)
	}

	if remaining := n - len(out); remaining > 0 {
		var leftover []Record
		for _, r := range d.Records {
			if !picked[r.hashKey()] {
				leftover = append(leftover, r)
			}
		}
		shuffle(leftover, rng)
		if len(leftover) > remaining {
			leftover = leftover[:remaining]
		}
		out = append(out, leftover...)
	}

	shuffle(out, rng)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// hashKey gives a Record a cheap identity for dedup during sampling,
// good enough since Sample never mutates the underlying dataset.
func (r Record) hashKey() int {
	h := 0
	for _, c := range r.Input + "\x00" + r.Response {
		h = h*31 + int(c)
	}
	return h
}

// lcg is a small deterministic linear-congruential generator, used
// instead of math/rand so the sequence is stable across Go versions
// (math/rand's algorithm is not guaranteed stable release to release).
type lcg struct{ state uint64 }

func newLCG(seed int64) *lcg {
	return &lcg{state: uint64(seed)*2654435761 + 1}
}

func (g *lcg) next() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state
}

func (g *lcg) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(g.next() % uint64(n))
}

// shuffle performs a deterministic Fisher-Yates shuffle using g.
func shuffle(records []Record, g *lcg) {
	for i := len(records) - 1; i > 0; i-- {
		j := g.intn(i + 1)
		records[i], records[j] = records[j], records[i]
	}
}

// Summary is the aggregate statistics returned by /load-dataset and
// /dataset-info: per-split counts and mean scores, the training split's
// min/max, plus a five-bucket score distribution over the training split.
type Summary struct {
	NumTraining       int            `json:"num_training"`
	NumEval           int            `json:"num_eval"`
	TrainScoreMean    float64        `json:"train_score_mean"`
	TrainScoreMin     float64        `json:"train_score_min"`
	TrainScoreMax     float64        `json:"train_score_max"`
	EvalScoreMean     float64        `json:"eval_score_mean"`
	ScoreDistribution map[string]int `json:"score_distribution"`
}

// Split is a train/eval partition of a Dataset, produced by Dataset.Split.
type Split struct {
	Train []Record
	Eval  []Record
}

// Split partitions records into a train/eval split at the given
// fraction (e.g. 0.8 for an 80/20 split), shuffled deterministically by
// seed first so the split is stable across reloads of the same data.
func (d *Dataset) Split(trainFraction float64, seed int64) Split {
	if seed == 0 {
		seed = defaultSeed
	}
	records := append([]Record(nil), d.Records...)
	shuffle(records, newLCG(seed))

	splitIdx := int(float64(len(records)) * trainFraction)
	return Split{Train: records[:splitIdx], Eval: records[splitIdx:]}
}

// Summarize computes a Summary over a Split.
func Summarize(s Split) Summary {
	trainScores := scoresOf(s.Train)
	evalScores := scoresOf(s.Eval)

	return Summary{
		NumTraining:       len(s.Train),
		NumEval:           len(s.Eval),
		TrainScoreMean:    round4(mean(trainScores)),
		TrainScoreMin:     round4(minOf(trainScores)),
		TrainScoreMax:     round4(maxOf(trainScores)),
		EvalScoreMean:     round4(mean(evalScores)),
		ScoreDistribution: scoreDistribution(trainScores),
	}
}

func scoresOf(records []Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.ActualScore
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func round4(x float64) float64 {
	return float64(int(x*10000+sign(x)*0.5)) / 10000
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

func scoreDistribution(scores []float64) map[string]int {
	buckets := map[string]int{
		"0.0-0.2": 0, "0.2-0.4": 0, "0.4-0.6": 0, "0.6-0.8": 0, "0.8-1.0": 0,
	}
	for _, s := range scores {
		switch {
		case s < 0.2:
			buckets["0.0-0.2"]++
		case s < 0.4:
			buckets["0.2-0.4"]++
		case s < 0.6:
			buckets["0.4-0.6"]++
		case s < 0.8:
			buckets["0.6-0.8"]++
		default:
			buckets["0.8-1.0"]++
		}
	}
	return buckets
}

// sortedKeys is used by tests that want deterministic bucket iteration.
func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
