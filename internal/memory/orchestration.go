package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"loopctl/internal/errtax"
)

// Pattern names one of the five agent collaboration modes (spec §4.14).
type Pattern string

const (
	PatternParallel  Pattern = "parallel"
	PatternConsensus Pattern = "consensus"
	PatternDebate    Pattern = "debate"
	PatternReview    Pattern = "review"
	PatternEnsemble  Pattern = "ensemble"
)

// TokenUsage is the four-bucket count carried on every Orchestration
// (spec §3's invariant: total = input+output+cache-create+cache-read).
type TokenUsage struct {
	Input       int64
	Output      int64
	CacheCreate int64
	CacheRead   int64
}

// Total sums the four buckets.
func (u TokenUsage) Total() int64 { return u.Input + u.Output + u.CacheCreate + u.CacheRead }

// Orchestration is the spec §3 Orchestration record.
type Orchestration struct {
	ID            string
	Pattern       Pattern
	AgentIDs      []string
	TaskID        string
	Inputs        string
	ResultSummary string
	Success       bool
	Duration      time.Duration
	Usage         TokenUsage
	CostUSD       float64
	Model         string
	SessionID     string
	ConceptTags   []string
	CreatedAt     time.Time
}

// RecordOrchestration persists a completed orchestration. Cost must already
// be computed by the caller (usage.Calculator) from tokens+model price, per
// the spec §3 invariant; this call does not recompute it.
func (s *Store) RecordOrchestration(o *Orchestration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agentIDs, _ := json.Marshal(o.AgentIDs)
	tags, _ := json.Marshal(normalizeTags(o.ConceptTags))

	_, err := s.db.Exec(
		`INSERT INTO orchestrations (id, pattern, agent_ids, task_id, inputs, result_summary,
			success, duration_ms, tokens_input, tokens_output, tokens_cache_create, tokens_cache_read,
			cost_usd, model, session_id, concept_tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Pattern), string(agentIDs), o.TaskID, o.Inputs, o.ResultSummary,
		boolToInt(o.Success), o.Duration.Milliseconds(),
		o.Usage.Input, o.Usage.Output, o.Usage.CacheCreate, o.Usage.CacheRead,
		o.CostUSD, o.Model, o.SessionID, string(tags),
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.RecordOrchestration", err)
	}
	return nil
}

// GetOrchestration fetches one orchestration by id, for the round-trip
// idempotence law in spec §8.
func (s *Store) GetOrchestration(id string) (*Orchestration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(
		`SELECT id, pattern, agent_ids, task_id, inputs, result_summary, success, duration_ms,
			tokens_input, tokens_output, tokens_cache_create, tokens_cache_read, cost_usd, model,
			session_id, concept_tags, created_at
		 FROM orchestrations WHERE id = ?`, id)
	return scanOrchestration(row)
}

func scanOrchestration(row *sql.Row) (*Orchestration, error) {
	var o Orchestration
	var agentIDs, tags string
	var success int
	var durationMs int64
	if err := row.Scan(
		&o.ID, &o.Pattern, &agentIDs, &o.TaskID, &o.Inputs, &o.ResultSummary, &success, &durationMs,
		&o.Usage.Input, &o.Usage.Output, &o.Usage.CacheCreate, &o.Usage.CacheRead,
		&o.CostUSD, &o.Model, &o.SessionID, &tags, &o.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, errtax.New(errtax.InvariantViolation, "memory.GetOrchestration", fmt.Errorf("not found"))
		}
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.GetOrchestration", err)
	}
	o.Success = success != 0
	o.Duration = time.Duration(durationMs) * time.Millisecond
	_ = json.Unmarshal([]byte(agentIDs), &o.AgentIDs)
	_ = json.Unmarshal([]byte(tags), &o.ConceptTags)
	return &o, nil
}

// QueryFilters narrows QueryOrchestrations results (spec §4.1's
// query-by-filters).
type QueryFilters struct {
	AgentID string
	TaskID  string
	Pattern Pattern
	Success *bool
	Since   time.Time
}

// QueryOrchestrations returns orchestrations matching the given filters,
// most recent first.
func (s *Store) QueryOrchestrations(f QueryFilters) ([]*Orchestration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var where []string
	var args []any
	if f.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Pattern != "" {
		where = append(where, "pattern = ?")
		args = append(args, string(f.Pattern))
	}
	if f.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolToInt(*f.Success))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	q := `SELECT id, pattern, agent_ids, task_id, inputs, result_summary, success, duration_ms,
		tokens_input, tokens_output, tokens_cache_create, tokens_cache_read, cost_usd, model,
		session_id, concept_tags, created_at FROM orchestrations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.QueryOrchestrations", err)
	}
	defer rows.Close()

	var out []*Orchestration
	for rows.Next() {
		var o Orchestration
		var agentIDs, tags string
		var success int
		var durationMs int64
		if err := rows.Scan(
			&o.ID, &o.Pattern, &agentIDs, &o.TaskID, &o.Inputs, &o.ResultSummary, &success, &durationMs,
			&o.Usage.Input, &o.Usage.Output, &o.Usage.CacheCreate, &o.Usage.CacheRead,
			&o.CostUSD, &o.Model, &o.SessionID, &tags, &o.CreatedAt,
		); err != nil {
			continue
		}
		o.Success = success != 0
		o.Duration = time.Duration(durationMs) * time.Millisecond
		_ = json.Unmarshal([]byte(agentIDs), &o.AgentIDs)
		_ = json.Unmarshal([]byte(tags), &o.ConceptTags)
		if f.AgentID != "" {
			found := false
			for _, a := range o.AgentIDs {
				if a == f.AgentID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, &o)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, t := range tags {
		lt := strings.ToLower(strings.TrimSpace(t))
		if lt == "" || seen[lt] {
			continue
		}
		seen[lt] = true
		out = append(out, lt)
	}
	return out
}
