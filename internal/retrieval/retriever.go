package retrieval

import (
	"context"
	"sort"
	"time"

	"loopctl/internal/logging"
	"loopctl/internal/memory"
	"loopctl/internal/vector"
)

// Request describes one orchestration's need for historical context
// (spec §4.3 step 0: the inputs a new orchestration hands the retriever).
type Request struct {
	Query           string // free-text description of the task at hand
	TaskFingerprint string // stable identity of the task, for the cache key
	AgentIDs        []string
	Pattern         memory.Pattern

	// TokenBudget overrides the retriever's configured default for this
	// request. nil means "use the configured default"; a non-nil pointer
	// to 0 is spec §8's boundary case ("Budget 0: CR returns empty Layer 1
	// only") and must be honored exactly rather than folded into "unset".
	TokenBudget *int
}

// IndexEntry is one Layer 1 (index-level) summary row: cheap to produce,
// cheap to read, enough to decide whether Layer 2 detail is worth loading
// (spec §4.3 step 2).
type IndexEntry struct {
	ID        string
	Summary   string // truncated to ~30 tokens
	Relevance float64
	Pattern   memory.Pattern
	AgentIDs  []string
}

// DetailEntry is one Layer 2 (full detail) row, loaded only for entries
// the token budget can still afford (spec §4.3 step 4).
type DetailEntry struct {
	ID            string
	ResultSummary string
	Observations  []*memory.Observation
	Truncated     bool
}

// Context is the assembled retrieval result handed to an orchestrator.
type Context struct {
	Layer1        []IndexEntry
	Layer2        []DetailEntry
	TokenCount    int
	RetrievalTime time.Duration
}

// Config tunes the retriever's defaults (spec §6.5).
type Config struct {
	TopK          int
	TokenBudget   *int // nil means "use 2000"; a pointer to 0 is an explicit zero default
	MinSimilarity float64
	Weights       vector.HybridWeights
	CacheCapacity int
	CacheTTL      time.Duration
}

// DefaultConfig mirrors spec §6.5's documented defaults.
func DefaultConfig() Config {
	budget := 2000
	return Config{
		TopK:          10,
		TokenBudget:   &budget,
		MinSimilarity: 0.3,
		Weights:       vector.DefaultHybridWeights(),
		CacheCapacity: 100,
		CacheTTL:      5 * time.Minute,
	}
}

// ContextRetriever implements the Context Retriever (CR, spec §4.3):
// progressive, token-budgeted disclosure over the Memory and Vector
// Stores, with an LRU cache in front to avoid repeating identical work
// within a short window.
type ContextRetriever struct {
	mem    *memory.Store
	vec    *vector.Store
	cache  *LRUCache
	cfg    Config
	logger *logging.Logger
}

// New builds a ContextRetriever over the given stores.
func New(mem *memory.Store, vec *vector.Store, cfg Config) *ContextRetriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.TokenBudget == nil {
		def := 2000
		cfg.TokenBudget = &def
	}
	return &ContextRetriever{
		mem:    mem,
		vec:    vec,
		cache:  NewLRUCache(cfg.CacheCapacity, cfg.CacheTTL),
		cfg:    cfg,
		logger: logging.Get(logging.CategoryRetrieval),
	}
}

// layer1ReserveTokens is the minimum remaining budget (spec §4.3 step 3)
// below which Layer 2 detail loading is skipped entirely.
const layer1ReserveTokens = 500

// layer1SummaryTokens is the per-entry token cap applied to Layer 1
// summaries (spec §4.3 step 2: "short-summary <= 30 tokens").
const layer1SummaryTokens = 30

// Retrieve runs the full five-step algorithm: cache lookup, Layer 1
// index build, budget check, Layer 2 detail load with smart truncation,
// and cache store.
func (r *ContextRetriever) Retrieve(ctx context.Context, req Request) (*Context, error) {
	start := time.Now()
	budget := *r.cfg.TokenBudget
	if req.TokenBudget != nil {
		budget = *req.TokenBudget
	}

	key := CacheKey(req.TaskFingerprint, req.AgentIDs, string(req.Pattern))
	if cached, ok := r.cache.Get(key); ok {
		r.logger.Debug("cache hit for fingerprint=%s", req.TaskFingerprint)
		return cached, nil
	}

	if budget <= 0 {
		// spec §8: an explicit zero (or lower) budget returns an empty
		// Layer 1 rather than falling back to the configured default.
		out := &Context{RetrievalTime: time.Since(start)}
		r.cache.Put(key, out)
		return out, nil
	}

	layer1, ranked := r.buildLayer1(ctx, req)
	layer1Tokens := 0
	for _, e := range layer1 {
		layer1Tokens += EstimateTokens(e.Summary) + 10
	}

	out := &Context{Layer1: layer1}
	remaining := budget - layer1Tokens
	if remaining <= layer1ReserveTokens {
		out.TokenCount = layer1Tokens
		out.RetrievalTime = time.Since(start)
		r.cache.Put(key, out)
		return out, nil
	}

	layer2 := r.buildLayer2(ranked, remaining)
	layer2Tokens := 0
	for _, d := range layer2 {
		layer2Tokens += EstimateTokens(d.ResultSummary)
		for _, o := range d.Observations {
			layer2Tokens += EstimateTokens(o.Content)
		}
	}

	out.Layer2 = layer2
	out.TokenCount = layer1Tokens + layer2Tokens
	out.RetrievalTime = time.Since(start)
	r.cache.Put(key, out)
	return out, nil
}

// buildLayer1 combines keyword and (when available) vector search into a
// ranked hybrid list, then formats each hit into an index-level summary.
// It returns both the formatted entries and the underlying ranking so
// buildLayer2 can walk the same order.
func (r *ContextRetriever) buildLayer1(ctx context.Context, req Request) ([]IndexEntry, []vector.HybridResult) {
	limit := r.cfg.TopK * 2
	if limit <= 0 {
		limit = 20
	}

	var keywordHits []vector.KeywordHit
	if obs, err := r.mem.SearchObservationsByKeyword(req.Query, limit); err != nil {
		r.logger.Warn("keyword search failed: %v", err)
	} else {
		keywordHits = rankObservationsByOrchestration(obs)
	}

	var vecMatches []vector.Match
	if r.vec != nil && req.Query != "" {
		queryVec, err := r.vec.Embed(ctx, req.Query)
		if err != nil {
			r.logger.Warn("query embedding failed: %v", err)
		} else {
			matches, err := r.vec.SearchSimilar(ctx, queryVec, limit, r.cfg.MinSimilarity)
			if err != nil {
				// Circuit open or search failure: degrade to keyword-only,
				// per spec §4.2's "never raised to the caller" contract.
				r.logger.Warn("vector search unavailable: %v", err)
			} else {
				vecMatches = matches
			}
		}
	}

	ranked := vector.CombineHybrid(vecMatches, keywordHits, r.cfg.Weights, 0, r.cfg.TopK)

	entries := make([]IndexEntry, 0, len(ranked))
	for _, hit := range ranked {
		orch, err := r.mem.GetOrchestration(hit.ID)
		if err != nil {
			r.logger.Warn("skipping %s: %v", hit.ID, err)
			continue
		}
		entries = append(entries, IndexEntry{
			ID:        orch.ID,
			Summary:   TruncateToSentenceBoundary(orch.ResultSummary, layer1SummaryTokens),
			Relevance: hit.Score,
			Pattern:   orch.Pattern,
			AgentIDs:  orch.AgentIDs,
		})
	}
	return entries, ranked
}

// buildLayer2 loads full orchestration+observation detail for ranked
// hits, in rank order, until the remaining budget is spent. Entries that
// don't fit are dropped (not truncated further) once the cheapest
// truncation still overflows the remainder.
func (r *ContextRetriever) buildLayer2(ranked []vector.HybridResult, remaining int) []DetailEntry {
	var out []DetailEntry
	for _, hit := range ranked {
		if remaining <= 0 {
			break
		}
		orch, err := r.mem.GetOrchestration(hit.ID)
		if err != nil {
			continue
		}
		obs, err := r.mem.GetObservationsForOrchestration(hit.ID)
		if err != nil {
			r.logger.Warn("observations unavailable for %s: %v", hit.ID, err)
			obs = nil
		}

		summary := orch.ResultSummary
		cost := EstimateTokens(summary)
		for _, o := range obs {
			cost += EstimateTokens(o.Content)
		}

		truncated := false
		for cost > remaining && len(obs) > 0 {
			// Drop the least important observation first (spec §4.3 step 4:
			// "drop lowest-importance observations before truncating text").
			obs = dropLowestImportance(obs)
			truncated = true
			cost = EstimateTokens(summary)
			for _, o := range obs {
				cost += EstimateTokens(o.Content)
			}
		}
		if cost > remaining {
			summary = TruncateToSentenceBoundary(summary, remaining)
			truncated = true
			cost = EstimateTokens(summary)
			for _, o := range obs {
				cost += EstimateTokens(o.Content)
			}
		}
		if cost > remaining {
			// Still doesn't fit even with nothing left to cut: skip rather
			// than emit a fragment with no remaining budget to account for.
			continue
		}

		out = append(out, DetailEntry{ID: orch.ID, ResultSummary: summary, Observations: obs, Truncated: truncated})
		remaining -= cost
	}
	return out
}

// dropLowestImportance removes the single least-important observation.
// Observations arrive sorted importance DESC (memory.Store's query), so
// the least important is the last element.
func dropLowestImportance(obs []*memory.Observation) []*memory.Observation {
	if len(obs) == 0 {
		return obs
	}
	return obs[:len(obs)-1]
}

// rankObservationsByOrchestration collapses a BM25-ordered observation
// list into per-orchestration keyword scores: first occurrence wins
// (best rank), later duplicates are ignored. Results already arrive
// best-first from SearchObservationsByKeyword, so score is assigned by
// inverse position rather than trying to recover SQLite's bm25() value.
func rankObservationsByOrchestration(obs []*memory.Observation) []vector.KeywordHit {
	seen := make(map[string]bool)
	hits := make([]vector.KeywordHit, 0, len(obs))
	n := len(obs)
	for i, o := range obs {
		if seen[o.OrchestrationID] {
			continue
		}
		seen[o.OrchestrationID] = true
		hits = append(hits, vector.KeywordHit{ID: o.OrchestrationID, Score: float64(n - i)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}
