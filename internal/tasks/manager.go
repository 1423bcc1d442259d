// Package tasks implements the Task Manager (TM, spec §4.8): a thin,
// typed façade over the Memory Store's task table that gives callers a
// single place to list, claim, and drive a task through its lifecycle
// without reaching into memory.Store directly.
package tasks

import (
	"time"

	"loopctl/internal/errtax"
	"loopctl/internal/ids"
	"loopctl/internal/logging"
	"loopctl/internal/memory"
)

// DefaultLease is T_claim from spec §4.15 step 2.
const DefaultLease = 5 * time.Minute

// Manager wraps a memory.Store with the Task Manager's operation set.
type Manager struct {
	mem    *memory.Store
	lease  time.Duration
	logger *logging.Logger
}

// New builds a Manager over an already-open Memory Store, using lease as
// the default claim duration (pass 0 for DefaultLease).
func New(mem *memory.Store, lease time.Duration) *Manager {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Manager{mem: mem, lease: lease, logger: logging.Get(logging.CategoryTasks)}
}

// Create registers a new pending task, assigning it an id if the caller
// left one blank.
func (m *Manager) Create(t *memory.Task) (*memory.Task, error) {
	if t.ID == "" {
		t.ID = ids.New("task")
	}
	if err := m.mem.CreateTask(t); err != nil {
		return nil, err
	}
	m.logger.Info("task %s created: %s", t.ID, t.Title)
	return t, nil
}

// Get fetches a single task by id.
func (m *Manager) Get(id string) (*memory.Task, error) {
	return m.mem.GetTask(id)
}

// List returns every task, most recently updated first, optionally
// narrowed to a single status ("" for all). The dashboard's session
// registry uses this to build snapshot lists.
func (m *Manager) List(status memory.Status) ([]*memory.Task, error) {
	return m.mem.ListTasks(status)
}

// Next returns the highest-priority, oldest-first task whose dependencies
// are all satisfied, or nil if the backlog has nothing eligible right now
// (spec §4.15 step 1).
func (m *Manager) Next() (*memory.Task, error) {
	return m.mem.NextEligible()
}

// Claim attempts to take ownership of task id for the manager's default
// lease. Callers should back off and re-select on error rather than
// retrying the same task (spec §4.15 step 2).
func (m *Manager) Claim(id, owner string) (*memory.Task, error) {
	t, err := m.mem.ClaimTask(id, owner, m.lease)
	if err != nil {
		return nil, err
	}
	if err := m.mem.BeginWork(id, owner); err != nil {
		return nil, err
	}
	t.Status = memory.StatusInProgress
	return t, nil
}

// Heartbeat extends a held claim's lease; a missing heartbeat eventually
// expires the claim via SweepExpiredClaims (spec §4.8 invariant).
func (m *Manager) Heartbeat(id, owner string) error {
	return m.mem.Heartbeat(id, owner, m.lease)
}

// Release voluntarily drops a claim back to pending, used when the loop
// backs off without having failed the task.
func (m *Manager) Release(id, owner string) error {
	return m.mem.Release(id, owner)
}

// Complete marks a task done with a result summary.
func (m *Manager) Complete(id, owner, resultSummary string) error {
	if err := m.mem.Complete(id, owner, resultSummary); err != nil {
		return err
	}
	m.logger.Info("task %s completed by %s", id, owner)
	return nil
}

// Fail marks a task failed with a reason and resets its acceptance
// criteria so a future retry starts from a clean slate (spec §4.8:
// "the 'met' set ... resets on failure").
func (m *Manager) Fail(id, owner, reason string) error {
	if err := m.mem.Fail(id, owner, reason); err != nil {
		return err
	}
	if err := m.mem.ResetCriteriaMet(id); err != nil {
		m.logger.Warn("task %s: criteria reset after failure did not apply: %v", id, err)
	}
	m.logger.Warn("task %s failed under %s: %s", id, owner, reason)
	return nil
}

// MarkCriterionMet flips one acceptance-criterion boolean true.
func (m *Manager) MarkCriterionMet(id string, idx int) error {
	return m.mem.MarkCriteriaMet(id, idx)
}

// AllCriteriaMet reports whether every acceptance criterion for id is
// currently satisfied (spec §4.8's completion gate).
func (m *Manager) AllCriteriaMet(id string) (bool, error) {
	t, err := m.mem.GetTask(id)
	if err != nil {
		return false, err
	}
	if len(t.AcceptanceCriteria) == 0 {
		return true, nil
	}
	for _, met := range t.CriteriaMet {
		if !met {
			return false, nil
		}
	}
	return len(t.CriteriaMet) == len(t.AcceptanceCriteria), nil
}

// SweepExpiredClaims reverts or fails tasks whose lease has lapsed. The
// CLO calls this on its heartbeat timer, not the claim owner.
func (m *Manager) SweepExpiredClaims() (reverted, failed int, err error) {
	reverted, failed, err = m.mem.SweepExpiredClaims()
	if err != nil {
		return 0, 0, errtax.New(errtax.PersistenceUnavailable, "tasks.SweepExpiredClaims", err)
	}
	if reverted > 0 || failed > 0 {
		m.logger.Info("claim sweep: %d reverted, %d failed", reverted, failed)
	}
	return reverted, failed, nil
}
