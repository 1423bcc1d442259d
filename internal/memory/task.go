package memory

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Priority orders task selection (spec §3).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns a smaller-is-more-urgent ordinal for sorting.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Status is the task's place in the pending→claimed→in-progress→
// (completed|failed) state machine (spec §3 invariant).
type Status string

const (
	StatusPending    Status = "pending"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Claim describes the current lease on a task, if any.
type Claim struct {
	Owner        string    `json:"owner"`
	LeaseExpiry  time.Time `json:"lease_expiry"`
	Heartbeat    time.Time `json:"heartbeat"`
}

// Task is the spec §3 Task record.
type Task struct {
	ID                 string
	Title              string
	Description        string
	Priority           Priority
	Phase              string
	EstimateHours      float64
	AcceptanceCriteria []string
	CriteriaMet        []bool
	Dependencies       []string
	Status             Status
	Claim              *Claim
	ClaimFailures      int
	ResultSummary      string
	FailReason         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var criteriaJSON, metJSON, depsJSON string
	var claimOwner sql.NullString
	var leaseExpiry, heartbeat sql.NullTime
	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.Phase, &t.EstimateHours,
		&criteriaJSON, &metJSON, &depsJSON, &t.Status,
		&claimOwner, &leaseExpiry, &heartbeat, &t.ClaimFailures,
		&t.ResultSummary, &t.FailReason, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(criteriaJSON), &t.AcceptanceCriteria)
	_ = json.Unmarshal([]byte(metJSON), &t.CriteriaMet)
	_ = json.Unmarshal([]byte(depsJSON), &t.Dependencies)
	if claimOwner.Valid {
		t.Claim = &Claim{Owner: claimOwner.String}
		if leaseExpiry.Valid {
			t.Claim.LeaseExpiry = leaseExpiry.Time
		}
		if heartbeat.Valid {
			t.Claim.Heartbeat = heartbeat.Time
		}
	}
	return &t, nil
}

const taskColumns = `id, title, description, priority, phase, estimate_hours,
	acceptance_criteria, criteria_met, dependencies, status,
	claim_owner, claim_lease_expiry, claim_heartbeat, claim_failures,
	result_summary, fail_reason, created_at, updated_at`
