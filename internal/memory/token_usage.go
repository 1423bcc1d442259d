package memory

import (
	"time"

	"loopctl/internal/errtax"
)

// TokenUsageRecord is the spec §3 Token Usage Record, one row per agent
// call within an orchestration.
type TokenUsageRecord struct {
	ID              string
	OrchestrationID string
	AgentID         string
	Timestamp       time.Time
	Model           string
	Usage           TokenUsage
	CostInput       float64
	CostOutput      float64
	CostCacheCreate float64
	CostCacheRead   float64
	CacheSavingsUSD float64
	CacheSavingsPct float64
	Pattern         string
	SessionID       string
}

// RecordTokenUsage inserts one usage row. This is explicitly a best-effort,
// non-critical write (spec §4.4): failures are classified as
// PersistenceUnavailable and the caller (usage.Tracker) is expected to log
// and swallow them rather than fail the orchestration.
func (s *Store) RecordTokenUsage(r *TokenUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO token_usage (id, orchestration_id, agent_id, ts, model,
			tokens_input, tokens_output, tokens_cache_create, tokens_cache_read,
			cost_input, cost_output, cost_cache_create, cost_cache_read,
			cache_savings_usd, cache_savings_pct, pattern, session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrchestrationID, r.AgentID, r.Timestamp, r.Model,
		r.Usage.Input, r.Usage.Output, r.Usage.CacheCreate, r.Usage.CacheRead,
		r.CostInput, r.CostOutput, r.CostCacheCreate, r.CostCacheRead,
		r.CacheSavingsUSD, r.CacheSavingsPct, r.Pattern, r.SessionID,
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.RecordTokenUsage", err)
	}
	return nil
}

// TokenUsageSince returns all usage rows at or after `since`, for the
// usage tracker's rolling-window aggregation.
func (s *Store) TokenUsageSince(since time.Time) ([]*TokenUsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, orchestration_id, agent_id, ts, model, tokens_input, tokens_output,
			tokens_cache_create, tokens_cache_read, cost_input, cost_output, cost_cache_create,
			cost_cache_read, cache_savings_usd, cache_savings_pct, pattern, session_id
		 FROM token_usage WHERE ts >= ? ORDER BY ts ASC`, since)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.TokenUsageSince", err)
	}
	defer rows.Close()

	var out []*TokenUsageRecord
	for rows.Next() {
		var r TokenUsageRecord
		if err := rows.Scan(
			&r.ID, &r.OrchestrationID, &r.AgentID, &r.Timestamp, &r.Model,
			&r.Usage.Input, &r.Usage.Output, &r.Usage.CacheCreate, &r.Usage.CacheRead,
			&r.CostInput, &r.CostOutput, &r.CostCacheCreate, &r.CostCacheRead,
			&r.CacheSavingsUSD, &r.CacheSavingsPct, &r.Pattern, &r.SessionID,
		); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}
