package memory

import (
	"encoding/json"
	"strings"
	"time"

	"loopctl/internal/errtax"
)

// ObservationType classifies what kind of learning an observation records
// (spec §3).
type ObservationType string

const (
	ObsDecision      ObservationType = "decision"
	ObsBugfix        ObservationType = "bugfix"
	ObsFeature       ObservationType = "feature"
	ObsPatternUsage  ObservationType = "pattern-usage"
	ObsDiscovery     ObservationType = "discovery"
	ObsRefactor      ObservationType = "refactor"
)

// Observation is the spec §3 Observation record.
type Observation struct {
	ID              string
	OrchestrationID string
	Type            ObservationType
	Content         string
	ConceptTags     []string
	Importance      int // clipped to [1,10]
	AgentInsights   map[string]string
	Recommendations []string
	CreatedAt       time.Time
}

// clampImportance enforces the spec §3 invariant.
func clampImportance(i int) int {
	if i < 1 {
		return 1
	}
	if i > 10 {
		return 10
	}
	return i
}

// RecordObservation persists an observation and indexes it for FTS.
// Content must be non-empty (spec §3 invariant); an empty string is an
// InvariantViolation, not silently accepted.
func (s *Store) RecordObservation(o *Observation) error {
	if o.Content == "" {
		return errtax.Newf(errtax.InvariantViolation, "memory.RecordObservation", "content must be non-empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o.Importance = clampImportance(o.Importance)
	tags, _ := json.Marshal(normalizeTags(o.ConceptTags))
	insights, _ := json.Marshal(o.AgentInsights)
	recs, _ := json.Marshal(o.Recommendations)

	_, err := s.db.Exec(
		`INSERT INTO observations (id, orchestration_id, type, content, concept_tags, importance,
			agent_insights, recommendations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrchestrationID, string(o.Type), o.Content, string(tags), o.Importance,
		string(insights), string(recs),
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.RecordObservation", err)
	}
	return nil
}

// GetObservationsForOrchestration returns all observations recorded
// against one orchestration, most important first.
func (s *Store) GetObservationsForOrchestration(orchID string) ([]*Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, orchestration_id, type, content, concept_tags, importance, agent_insights,
			recommendations, created_at
		 FROM observations WHERE orchestration_id = ? ORDER BY importance DESC`, orchID)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.GetObservationsForOrchestration", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// SearchObservationsByKeyword runs a BM25-ranked FTS5 match query over
// observation content (spec §4.1's keyword search contract). An empty
// query returns no results rather than matching everything.
func (s *Store) SearchObservationsByKeyword(query string, limit int) ([]*Observation, error) {
	if query == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT o.id, o.orchestration_id, o.type, o.content, o.concept_tags, o.importance,
			o.agent_insights, o.recommendations, o.created_at
		 FROM observations_fts f
		 JOIN observations o ON o.id = f.id
		 WHERE observations_fts MATCH ?
		 ORDER BY bm25(observations_fts)
		 LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.SearchObservationsByKeyword", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

func scanObservations(rows interface {
	Next() bool
	Scan(...any) error
}) ([]*Observation, error) {
	var out []*Observation
	for rows.Next() {
		var o Observation
		var tagsJSON, insightsJSON, recsJSON string
		if err := rows.Scan(
			&o.ID, &o.OrchestrationID, &o.Type, &o.Content, &tagsJSON, &o.Importance,
			&insightsJSON, &recsJSON, &o.CreatedAt,
		); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(tagsJSON), &o.ConceptTags)
		_ = json.Unmarshal([]byte(insightsJSON), &o.AgentInsights)
		_ = json.Unmarshal([]byte(recsJSON), &o.Recommendations)
		out = append(out, &o)
	}
	return out, nil
}

// ftsQuery escapes a free-text query into an FTS5 MATCH expression that
// treats each word as an OR'd prefix term, so "oauth2" still matches
// "oauth2 migration". FTS5 special characters are stripped defensively.
func ftsQuery(q string) string {
	clean := make([]rune, 0, len(q))
	for _, r := range q {
		if r == '"' || r == '*' || r == ':' || r == '(' || r == ')' {
			continue
		}
		clean = append(clean, r)
	}
	words := strings.Fields(string(clean))
	if len(words) == 0 {
		return `""`
	}
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " OR ")
}

// SearchOrchestrationsByKeywords matches orchestrations whose inputs or
// result_summary contain query as a substring (LIKE). Observation text
// and the FTS index are not searched.
func (s *Store) SearchOrchestrationsByKeywords(query string, limit int) ([]*Orchestration, error) {
	if query == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	like := "%" + query + "%"
	rows, err := s.db.Query(
		`SELECT id, pattern, agent_ids, task_id, inputs, result_summary, success, duration_ms,
			tokens_input, tokens_output, tokens_cache_create, tokens_cache_read, cost_usd, model,
			session_id, concept_tags, created_at
		 FROM orchestrations
		 WHERE inputs LIKE ? OR result_summary LIKE ?
		 ORDER BY created_at DESC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.SearchOrchestrationsByKeywords", err)
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
		out = append(out, &o)
	}
	return out, nil
}
