package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"loopctl/internal/ids"
	"loopctl/internal/logging"
	"loopctl/internal/memory"
)

// TokenCounts holds one aggregation bucket's token and cost sums,
// mirroring the teacher's usage.TokenCounts shape extended with the two
// cache buckets and a running cost total this spec requires.
type TokenCounts struct {
	Input       int64   `json:"input"`
	Output      int64   `json:"output"`
	CacheCreate int64   `json:"cache_create"`
	CacheRead   int64   `json:"cache_read"`
	Total       int64   `json:"total"`
	CostUSD     float64 `json:"cost_usd"`
}

// Add folds one event into the running counts.
func (c *TokenCounts) Add(u memory.TokenUsage, cost float64) {
	c.Input += u.Input
	c.Output += u.Output
	c.CacheCreate += u.CacheCreate
	c.CacheRead += u.CacheRead
	c.Total += u.Total()
	c.CostUSD += cost
}

// AggregatedStats breaks total usage down by the dimensions spec §4.4's
// get-usage-summary needs to filter on.
type AggregatedStats struct {
	TotalProject TokenCounts            `json:"total_project"`
	ByModel      map[string]TokenCounts `json:"by_model"`
	ByAgent      map[string]TokenCounts `json:"by_agent"`
	ByPattern    map[string]TokenCounts `json:"by_pattern"`
	BySession    map[string]TokenCounts `json:"by_session"`
}

func newAggregatedStats() AggregatedStats {
	return AggregatedStats{
		ByModel:   make(map[string]TokenCounts),
		ByAgent:   make(map[string]TokenCounts),
		ByPattern: make(map[string]TokenCounts),
		BySession: make(map[string]TokenCounts),
	}
}

// persistedData is the root structure written to usage.json, versioned
// like the teacher's UsageData so a future format change can migrate it.
type persistedData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// Event is one usage record handed to Track.
type Event struct {
	OrchestrationID string
	AgentID         string
	Model           string
	Pattern         memory.Pattern
	SessionID       string
	Usage           memory.TokenUsage
}

// Tracker is the Usage Tracker (U): an in-process aggregate (persisted to
// usage.json, debounce-autosaved exactly like the teacher's
// internal/usage.Tracker) backed by a durable per-event log in the
// Memory Store's token_usage table.
type Tracker struct {
	mu       sync.Mutex
	data     persistedData
	filePath string
	dirty    bool
	mem      *memory.Store
	pricing  *PricingTable
	logger   *logging.Logger
}

// NewTracker opens (or creates) the usage tracker's on-disk aggregate
// under workspace/.loopctl/usage.json, backed by mem for the durable
// per-event log and pricing for cost computation.
func NewTracker(workspace string, mem *memory.Store, pricing *PricingTable) (*Tracker, error) {
	dir := filepath.Join(workspace, ".loopctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("usage: create workspace dir: %w", err)
	}
	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data:     persistedData{Version: "1.0", Aggregate: newAggregatedStats()},
		mem:      mem,
		pricing:  pricing,
		logger:   logging.Get(logging.CategoryUsage),
	}
	if pricing == nil {
		t.pricing = NewPricingTable()
	}
	if err := t.load(); err != nil {
		t.logger.Warn("usage.json unreadable, starting fresh: %v", err)
	}
	return t, nil
}

func (t *Tracker) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		return err
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate = newAggregatedStats()
	}
	return nil
}

// Save flushes the in-memory aggregate to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0o644)
}

// Track records one usage event. This is a best-effort, non-critical
// path (spec §4.4): a durable-log write failure is logged and swallowed,
// never propagated to the orchestration that produced the tokens.
func (t *Tracker) Track(e Event) {
	cost := t.pricing.Cost(e.Model, e.Usage.Input, e.Usage.Output, e.Usage.CacheCreate, e.Usage.CacheRead)
	savings := t.pricing.CacheSavings(e.Model, e.Usage.CacheRead)

	t.mu.Lock()
	t.data.Aggregate.TotalProject.Add(e.Usage, cost)
	addTo(t.data.Aggregate.ByModel, e.Model, e.Usage, cost)
	addTo(t.data.Aggregate.ByAgent, e.AgentID, e.Usage, cost)
	addTo(t.data.Aggregate.ByPattern, string(e.Pattern), e.Usage, cost)
	addTo(t.data.Aggregate.BySession, e.SessionID, e.Usage, cost)
	wasDirty := t.dirty
	t.dirty = true
	t.mu.Unlock()

	if !wasDirty {
		time.AfterFunc(5*time.Second, func() {
			if err := t.Save(); err != nil {
				t.logger.Warn("autosave failed: %v", err)
			}
			t.mu.Lock()
			t.dirty = false
			t.mu.Unlock()
		})
	}

	if t.mem == nil {
		return
	}
	var savingsPct float64
	if e.Usage.Total() > 0 {
		savingsPct = savings / (cost + savings) * 100
	}
	err := t.mem.RecordTokenUsage(&memory.TokenUsageRecord{
		ID:              ids.New("usage"),
		OrchestrationID: e.OrchestrationID,
		AgentID:         e.AgentID,
		Timestamp:       memory.Now(),
		Model:           e.Model,
		Usage:           e.Usage,
		CostInput:       float64(e.Usage.Input) / 1000 * t.pricing.Price(e.Model).InputPer1K,
		CostOutput:      float64(e.Usage.Output) / 1000 * t.pricing.Price(e.Model).OutputPer1K,
		CostCacheCreate: float64(e.Usage.CacheCreate) / 1000 * t.pricing.Price(e.Model).CacheCreatePer1K,
		CostCacheRead:   float64(e.Usage.CacheRead) / 1000 * t.pricing.Price(e.Model).CacheReadPer1K,
		CacheSavingsUSD: savings,
		CacheSavingsPct: savingsPct,
		Pattern:         string(e.Pattern),
		SessionID:       e.SessionID,
	})
	if err != nil {
		t.logger.Warn("durable usage log write failed (non-critical): %v", err)
	}
}

// Stats returns a snapshot of the all-time in-memory aggregate.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return AggregatedStats{
		TotalProject: t.data.Aggregate.TotalProject,
		ByModel:      copyCounts(t.data.Aggregate.ByModel),
		ByAgent:      copyCounts(t.data.Aggregate.ByAgent),
		ByPattern:    copyCounts(t.data.Aggregate.ByPattern),
		BySession:    copyCounts(t.data.Aggregate.BySession),
	}
}

// Filters narrows Summary to matching rows.
type Filters struct {
	Model   string
	AgentID string
	Pattern string
}

func (f Filters) matches(r *memory.TokenUsageRecord) bool {
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.AgentID != "" && r.AgentID != f.AgentID {
		return false
	}
	if f.Pattern != "" && r.Pattern != f.Pattern {
		return false
	}
	return true
}

// Summary aggregates the durable usage log since `since`, narrowed by
// filters — the period+filter query spec §4.4's get-usage-summary
// describes. It reads from the Memory Store directly rather than the
// in-memory aggregate so arbitrary historical windows are possible.
func (t *Tracker) Summary(since time.Time, f Filters) (TokenCounts, error) {
	var out TokenCounts
	if t.mem == nil {
		return out, nil
	}
	rows, err := t.mem.TokenUsageSince(since)
	if err != nil {
		return out, err
	}
	for _, r := range rows {
		if !f.matches(r) {
			continue
		}
		out.Add(r.Usage, r.CostInput+r.CostOutput+r.CostCacheCreate+r.CostCacheRead)
	}
	return out, nil
}

func addTo(m map[string]TokenCounts, key string, u memory.TokenUsage, cost float64) {
	if key == "" {
		key = "unknown"
	}
	entry := m[key]
	entry.Add(u, cost)
	m[key] = entry
}

func copyCounts(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
