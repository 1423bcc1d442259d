package vector

import "sort"

// KeywordHit is one result from the Memory Store's keyword search,
// normalized to the same shape as a vector Match so they can be combined.
type KeywordHit struct {
	ID    string
	Score float64 // raw BM25-family score, higher is better
}

// HybridWeights controls the vector/keyword blend (spec §4.2 default
// 0.7/0.3).
type HybridWeights struct {
	Vector  float64
	Keyword float64
}

// DefaultHybridWeights returns the spec's documented default.
func DefaultHybridWeights() HybridWeights { return HybridWeights{Vector: 0.7, Keyword: 0.3} }

// HybridResult is one entry in a combined ranking.
type HybridResult struct {
	ID    string
	Score float64
}

// CombineHybrid normalizes vector matches and keyword hits independently
// to [0,1], blends them per-identifier with the given weights, drops
// anything below minScore, and returns the top `limit` results — the
// algorithm in spec §4.2's "Hybrid search contract".
func CombineHybrid(vectorMatches []Match, keywordHits []KeywordHit, w HybridWeights, minScore float64, limit int) []HybridResult {
	vecNorm := normalizeMatches(vectorMatches)
	kwNorm := normalizeKeyword(keywordHits)

	combined := make(map[string]float64)
	for id, v := range vecNorm {
		combined[id] += v * w.Vector
	}
	for id, v := range kwNorm {
		combined[id] += v * w.Keyword
	}

	out := make([]HybridResult, 0, len(combined))
	for id, score := range combined {
		if score < minScore {
			continue
		}
		out = append(out, HybridResult{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func normalizeMatches(m []Match) map[string]float64 {
	out := make(map[string]float64, len(m))
	if len(m) == 0 {
		return out
	}
	max := 0.0
	for _, x := range m {
		if x.Similarity > max {
			max = x.Similarity
		}
	}
	if max == 0 {
		max = 1
	}
	for _, x := range m {
		out[x.ID] = x.Similarity / max
	}
	return out
}

func normalizeKeyword(hits []KeywordHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max == 0 {
		max = 1
	}
	for _, h := range hits {
		out[h.ID] = h.Score / max
	}
	return out
}
