// Package ranking orders prefiltered candidates by cosine similarity to the
// mission vector and falls back to text scores when no vectors exist.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/prefilter"
)

const (
	DefaultMinSimilarity = 0.3
	DefaultTopK          = 5

	// fallbackScale maps a text score onto the similarity range.
	fallbackScale = 10.0

	FallbackReasoning = "Ranked by keyword overlap only: semantic similarity was unavailable for this search."
)

type Config struct {
	// MinSimilarity is the inclusive floor in [0, 1]. Nil means DefaultMinSimilarity.
	MinSimilarity *float64
	TopK          int
}

type Ranker struct {
	minSimilarity float64
	topK          int
}

func New(cfg Config) (*Ranker, error) {
	r := &Ranker{minSimilarity: DefaultMinSimilarity, topK: cfg.TopK}
	if cfg.MinSimilarity != nil {
		floor := *cfg.MinSimilarity
		if floor < 0 || floor > 1 || math.IsNaN(floor) {
			return nil, fmt.Errorf("min similarity must be within [0, 1], got %v", floor)
		}
		r.minSimilarity = floor
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	return r, nil
}

func (r *Ranker) TopK() int { return r.topK }

func (r *Ranker) MinSimilarity() float64 { return r.minSimilarity }

// Result carries the ranked matches and how many deduplicated candidates
// could be compared at all.
type Result struct {
	Matches []candidate.Match
	// Comparable counts unique candidates whose vector matched the mission dimension.
	Comparable int
}

// Rank scores every unique candidate that carries a vector of the mission's
// dimension, drops those under the threshold and returns at most TopK.
func (r *Ranker) Rank(mission []float32, scored []prefilter.Scored) Result {
	unique := Dedup(scored)

	type ranked struct {
		c   *candidate.Candidate
		sim float64
	}
	items := make([]ranked, 0, len(unique))
	comparable := 0
	for _, s := range unique {
		if !s.Candidate.HasEmbedding() || len(s.Candidate.Embedding) != len(mission) {
			continue
		}
		comparable++
		sim := Cosine(mission, s.Candidate.Embedding)
		if sim < r.minSimilarity {
			continue
		}
		items = append(items, ranked{c: s.Candidate, sim: sim})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].sim > items[j].sim
	})

	if len(items) > r.topK {
		items = items[:r.topK]
	}

	matches := make([]candidate.Match, 0, len(items))
	for _, it := range items {
		matches = append(matches, candidate.NewMatch(it.c, it.sim))
	}

	return Result{Matches: matches, Comparable: comparable}
}

// Fallback returns the TopK unique candidates by text score. The input is
// expected in prefilter order, which is already sorted by score.
func (r *Ranker) Fallback(scored []prefilter.Scored) []candidate.Match {
	unique := Dedup(scored)
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Score > unique[j].Score
	})
	if len(unique) > r.topK {
		unique = unique[:r.topK]
	}

	matches := make([]candidate.Match, 0, len(unique))
	for _, s := range unique {
		m := candidate.NewMatch(s.Candidate, math.Min(float64(s.Score)/fallbackScale, 1))
		m.Reasoning = FallbackReasoning
		m.Fallback = true
		matches = append(matches, m)
	}
	return matches
}

// Dedup keeps the first occurrence of every name and company key, whether or
// not a later duplicate carries a vector.
func Dedup(scored []prefilter.Scored) []prefilter.Scored {
	seen := make(map[string]struct{}, len(scored))
	out := make([]prefilter.Scored, 0, len(scored))
	for _, s := range scored {
		if s.Candidate == nil {
			continue
		}
		key := s.Candidate.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Cosine returns 0 for vectors of different length or zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		normA += af * af
		normB += bf * bf
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
