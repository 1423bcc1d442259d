package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"loopctl/internal/errtax"
	"loopctl/internal/logging"
)

// CreateTask inserts a new pending task.
func (s *Store) CreateTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	criteria, _ := json.Marshal(t.AcceptanceCriteria)
	met := make([]bool, len(t.AcceptanceCriteria))
	metJSON, _ := json.Marshal(met)
	deps, _ := json.Marshal(t.Dependencies)

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, description, priority, phase, estimate_hours,
			acceptance_criteria, criteria_met, dependencies, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
		t.ID, t.Title, t.Description, string(t.Priority), t.Phase, t.EstimateHours,
		string(criteria), string(metJSON), string(deps),
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.CreateTask", err)
	}
	return nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errtax.New(errtax.InvariantViolation, "memory.GetTask", fmt.Errorf("task %s not found", id))
	}
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.GetTask", err)
	}
	return t, nil
}

// ListTasks returns every task, most recently updated first, optionally
// narrowed to a single status (pass "" for all). Used by the dashboard's
// session registry to build snapshot lists without its own copy of the
// task schema.
func (s *Store) ListTasks(status Status) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY updated_at DESC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.ListTasks", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errtax.New(errtax.PersistenceUnavailable, "memory.ListTasks", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// NextEligible returns the highest-priority, oldest-first task whose
// dependencies are all completed and which is still pending (spec §4.15
// step 1 / §4.8's dependency-eligibility invariant). Returns nil, nil when
// nothing is eligible.
func (s *Store) NextEligible() (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.NextEligible", err)
	}
	defer rows.Close()

	var candidates []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			continue
		}
		candidates = append(candidates, t)
	}

	var best *Task
	for _, t := range candidates {
		ok, err := s.dependenciesSatisfied(t)
		if err != nil || !ok {
			continue
		}
		if best == nil || t.Priority.Rank() < best.Priority.Rank() {
			best = t
		}
	}
	return best, nil
}

func (s *Store) dependenciesSatisfied(t *Task) (bool, error) {
	for _, dep := range t.Dependencies {
		var status string
		err := s.db.QueryRow(`SELECT status FROM tasks WHERE id = ?`, dep).Scan(&status)
		if err == sql.ErrNoRows {
			return false, nil // unknown dependency is not satisfied
		}
		if err != nil {
			return false, err
		}
		if status != string(StatusCompleted) {
			return false, nil
		}
	}
	return true, nil
}

// ClaimTask performs the atomic compare-and-set described in spec §4.1:
// (status=pending, claim=null) → (status=claimed, claim={owner, lease}).
// It returns errtax.InvariantViolation when the row is not claimable
// (already claimed, or not pending), never a generic error, so the loop
// can back off and re-select without inspecting driver internals.
func (s *Store) ClaimTask(id, owner string, leaseFor time.Duration) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := Now()
	expiry := now.Add(leaseFor)

	res, err := s.db.Exec(
		`UPDATE tasks SET status = 'claimed', claim_owner = ?, claim_lease_expiry = ?,
			claim_heartbeat = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending' AND claim_owner IS NULL`,
		owner, expiry, now, now, id,
	)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.ClaimTask", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, errtax.Newf(errtax.InvariantViolation, "memory.ClaimTask", "task %s not claimable (already claimed or not pending)", id)
	}

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.ClaimTask", err)
	}
	logging.Get(logging.CategoryMemory).Info("task %s claimed by %s until %s", id, owner, expiry)
	return t, nil
}

// Heartbeat extends the lease for a task still held by owner. Returns
// InvariantViolation if owner does not currently hold the claim.
func (s *Store) Heartbeat(id, owner string, leaseFor time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := Now()
	expiry := now.Add(leaseFor)
	res, err := s.db.Exec(
		`UPDATE tasks SET claim_heartbeat = ?, claim_lease_expiry = ?, updated_at = ?
		 WHERE id = ? AND claim_owner = ? AND status IN ('claimed', 'in_progress')`,
		now, expiry, now, id, owner,
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.Heartbeat", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errtax.Newf(errtax.InvariantViolation, "memory.Heartbeat", "task %s not held by %s", id, owner)
	}
	return nil
}

// BeginWork transitions claimed → in_progress.
func (s *Store) BeginWork(id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE tasks SET status = 'in_progress', updated_at = ? WHERE id = ? AND claim_owner = ? AND status = 'claimed'`,
		Now(), id, owner,
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.BeginWork", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errtax.Newf(errtax.InvariantViolation, "memory.BeginWork", "task %s not claimed by %s", id, owner)
	}
	return nil
}

// Release drops a claim back to pending without penalty (used when the
// loop voluntarily backs off, not on lease expiry).
func (s *Store) Release(id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'pending', claim_owner = NULL, claim_lease_expiry = NULL,
			claim_heartbeat = NULL, updated_at = ?
		 WHERE id = ? AND claim_owner = ?`,
		Now(), id, owner,
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.Release", err)
	}
	return nil
}

// Complete marks a task completed and immutable (spec §3: "once completed,
// immutable except for appendable observations").
func (s *Store) Complete(id, owner, resultSummary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE tasks SET status = 'completed', result_summary = ?, updated_at = ?
		 WHERE id = ? AND claim_owner = ? AND status = 'in_progress'`,
		resultSummary, Now(), id, owner,
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.Complete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errtax.Newf(errtax.InvariantViolation, "memory.Complete", "task %s not in-progress under %s", id, owner)
	}
	return nil
}

// Fail marks a task failed with a reason. The claim owner, lease expiry
// and heartbeat columns are left as they were.
func (s *Store) Fail(id, owner, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'failed', fail_reason = ?, updated_at = ?
		 WHERE id = ? AND claim_owner = ?`,
		reason, Now(), id, owner,
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.Fail", err)
	}
	return nil
}

// SweepExpiredClaims reverts claims whose lease has passed and the task is
// not completed, incrementing a per-task failure counter; once that
// counter exceeds the store's claim-failure limit the task moves straight
// to failed with a reason string (spec §4.1).
func (s *Store) SweepExpiredClaims() (reverted, failedOut int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := Now()
	rows, qerr := s.db.Query(
		`SELECT id, claim_failures FROM tasks
		 WHERE claim_lease_expiry IS NOT NULL AND claim_lease_expiry < ? AND status != 'completed' AND status != 'failed'`,
		now,
	)
	if qerr != nil {
		return 0, 0, errtax.New(errtax.PersistenceUnavailable, "memory.SweepExpiredClaims", qerr)
	}
	type row struct {
		id       string
		failures int
	}
	var expired []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.failures); err == nil {
			expired = append(expired, r)
		}
	}
	rows.Close()

	for _, r := range expired {
		newFailures := r.failures + 1
		if newFailures > s.claimFailureLimit {
			_, err := s.db.Exec(
				`UPDATE tasks SET status = 'failed', fail_reason = ?, claim_owner = NULL,
					claim_lease_expiry = NULL, claim_heartbeat = NULL, claim_failures = ?, updated_at = ?
				 WHERE id = ?`,
				fmt.Sprintf("claim lease expired %d times", newFailures), newFailures, now, r.id,
			)
			if err == nil {
				failedOut++
				logging.Get(logging.CategoryMemory).Warn("task %s failed after %d claim reverts", r.id, newFailures)
			}
			continue
		}
		_, err := s.db.Exec(
			`UPDATE tasks SET status = 'pending', claim_owner = NULL, claim_lease_expiry = NULL,
				claim_heartbeat = NULL, claim_failures = ?, updated_at = ?
			 WHERE id = ?`,
			newFailures, now, r.id,
		)
		if err == nil {
			reverted++
			logging.Get(logging.CategoryMemory).Info("task %s claim reverted to pending (failure #%d)", r.id, newFailures)
		}
	}
	return reverted, failedOut, nil
}

// MarkCriteriaMet flips acceptance-criteria booleans monotonically within
// an attempt (spec §4.8). idx values are 0-based.
func (s *Store) MarkCriteriaMet(id string, idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT criteria_met FROM tasks WHERE id = ?`, id)
	var metJSON string
	if err := row.Scan(&metJSON); err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.MarkCriteriaMet", err)
	}
	var met []bool
	_ = json.Unmarshal([]byte(metJSON), &met)
	if idx < 0 || idx >= len(met) {
		return errtax.Newf(errtax.InvariantViolation, "memory.MarkCriteriaMet", "criteria index %d out of range", idx)
	}
	met[idx] = true
	b, _ := json.Marshal(met)
	_, err := s.db.Exec(`UPDATE tasks SET criteria_met = ?, updated_at = ? WHERE id = ?`, string(b), Now(), id)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.MarkCriteriaMet", err)
	}
	return nil
}

// ResetCriteriaMet clears the "met" set back to all-false on attempt
// failure (spec §4.8: "resets on failure").
func (s *Store) ResetCriteriaMet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT acceptance_criteria FROM tasks WHERE id = ?`, id)
	var criteriaJSON string
	if err := row.Scan(&criteriaJSON); err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.ResetCriteriaMet", err)
	}
	var criteria []string
	_ = json.Unmarshal([]byte(criteriaJSON), &criteria)
	met := make([]bool, len(criteria))
	b, _ := json.Marshal(met)
	_, err := s.db.Exec(`UPDATE tasks SET criteria_met = ?, updated_at = ? WHERE id = ?`, string(b), Now(), id)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "memory.ResetCriteriaMet", err)
	}
	return nil
}
