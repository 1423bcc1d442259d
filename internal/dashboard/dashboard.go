// Package dashboard implements the Session Registry & Dashboard API (DB,
// spec §4.16): the read-side command center that aggregates every active
// CLO's live state, serves the REST+SSE surface described in spec §6.2,
// and owns the tiered metrics store. It never drives a loop itself; it
// only observes the Message Bus and queries the Memory Store/Task
// Manager/Usage Tracker/Limit Tracker that the loop(s) it watches already
// write to, the same "registry subscribes, never mutates another
// subsystem's state" split the teacher's orchestrator/run.go keeps
// between its HTTP layer and the policy engine it fronts.
package dashboard

import (
	"sync"
	"time"

	"loopctl/internal/bus"
	"loopctl/internal/limits"
	"loopctl/internal/logging"
	"loopctl/internal/memory"
	"loopctl/internal/tasks"
	"loopctl/internal/usage"
)

// SessionStatus mirrors a session's coarse lifecycle state for dashboard
// display; it folds memory.Status plus the registry's own pause/end flags.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionEnded     SessionStatus = "ended"
)

// ConfidenceSnapshot is the last confidence:evaluated event seen for a
// session, held for the session-detail endpoint.
type ConfidenceSnapshot struct {
	Score  float64   `json:"score"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// SessionSnapshot is one CLO's current state as the dashboard knows it.
// It is rebuilt from the Task Manager on every summary/detail request and
// overlaid with the registry's own event-derived fields (confidence,
// pause/end), matching spec §4.16's "aggregate live snapshots".
type SessionSnapshot struct {
	SessionID  string              `json:"sessionId"`
	Owner      string              `json:"owner"`
	TaskID     string              `json:"taskId"`
	TaskTitle  string              `json:"taskTitle"`
	Phase      string              `json:"phase"`
	Status     SessionStatus       `json:"status"`
	Iterations int                 `json:"iterations"`
	LastReason string              `json:"lastReason,omitempty"`
	Confidence *ConfidenceSnapshot `json:"confidence,omitempty"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Registry is the dashboard's in-process aggregator. It subscribes to the
// bus topics the Loop publishes and answers summary/detail/control
// queries against that overlay plus the shared Task Manager.
type Registry struct {
	mu sync.RWMutex

	tasksMgr *tasks.Manager
	mem      *memory.Store
	usageT   *usage.Tracker
	limitsT  *limits.Tracker
	bus      *bus.Bus

	// overlay holds registry-only state keyed by owner (one CLO's claim
	// id, which this package treats as the session id): the most recent
	// confidence reading and any pause/end flag an operator set through
	// the control endpoints. Task-derived fields are never cached here;
	// they are re-read from the Task Manager on every query so the
	// dashboard can't drift from the authoritative store.
	overlay map[string]*sessionOverlay

	completions []CompletionEvent // bounded recent-completions feed, newest first

	logger *logging.Logger
	hub    *Hub
}

type sessionOverlay struct {
	confidence *ConfidenceSnapshot
	paused     bool
	ended      bool
}

// CompletionEvent is one entry in the summary endpoint's recent-
// completions feed.
type CompletionEvent struct {
	TaskID string    `json:"taskId"`
	Owner  string    `json:"owner"`
	Status string    `json:"status"` // "completed" | "failed"
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

const maxCompletionsFeed = 50

// Deps bundles the already-constructed subsystems the registry observes.
type Deps struct {
	Tasks  *tasks.Manager
	Mem    *memory.Store
	Usage  *usage.Tracker
	Limits *limits.Tracker
	Bus    *bus.Bus
}

// NewRegistry builds a Registry and subscribes it to the bus topics the
// Loop publishes (task:completed, task:failed, confidence:evaluated,
// plans:tie). hub is the SSE fan-out target; pass nil in tests that don't
// exercise streaming.
func NewRegistry(deps Deps, hub *Hub) *Registry {
	r := &Registry{
		tasksMgr: deps.Tasks,
		mem:      deps.Mem,
		usageT:   deps.Usage,
		limitsT:  deps.Limits,
		bus:      deps.Bus,
		overlay:  make(map[string]*sessionOverlay),
		logger:   logging.Get(logging.CategoryDashboard),
		hub:      hub,
	}
	if deps.Bus != nil {
		deps.Bus.Subscribe("task:completed", r.onTaskCompleted)
		deps.Bus.Subscribe("task:failed", r.onTaskFailed)
		deps.Bus.Subscribe("confidence:evaluated", r.onConfidence)
		deps.Bus.Subscribe("plans:tie", r.onPlansTie)
	}
	return r
}

func (r *Registry) overlayFor(owner string) *sessionOverlay {
	o, ok := r.overlay[owner]
	if !ok {
		o = &sessionOverlay{}
		r.overlay[owner] = o
	}
	return o
}

func asString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func asFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (r *Registry) onTaskCompleted(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	taskID := asString(m, "taskId")
	r.recordCompletion(taskID, "completed", "")
	r.broadcast("task:completed", "/tasks/"+taskID, payload)
}

func (r *Registry) onTaskFailed(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	taskID := asString(m, "taskId")
	reason := asString(m, "reason")
	r.recordCompletion(taskID, "failed", reason)
	r.broadcast("alert:warning", "/tasks/"+taskID, payload)
}

func (r *Registry) recordCompletion(taskID, status, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := CompletionEvent{TaskID: taskID, Status: status, Reason: reason, At: time.Now()}
	if t, err := r.tasksMgr.Get(taskID); err == nil && t.Claim != nil {
		ev.Owner = t.Claim.Owner
	}
	r.completions = append([]CompletionEvent{ev}, r.completions...)
	if len(r.completions) > maxCompletionsFeed {
		r.completions = r.completions[:maxCompletionsFeed]
	}
}

func (r *Registry) onConfidence(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	taskID := asString(m, "taskId")
	r.mu.Lock()
	defer r.mu.Unlock()
	owner := taskID
	if t, err := r.tasksMgr.Get(taskID); err == nil && t.Claim != nil {
		owner = t.Claim.Owner
	}
	snap := &ConfidenceSnapshot{Score: asFloat(m, "score"), Status: asString(m, "status"), At: time.Now()}
	r.overlayFor(owner).confidence = snap
	r.broadcast("session:update", "/sessions/"+owner+"/confidence", snap)
}

func (r *Registry) onPlansTie(payload any) {
	r.broadcast("alert:warning", "/plans", payload)
}

func (r *Registry) broadcast(event, path string, value any) {
	if r.hub == nil {
		return
	}
	r.hub.Publish("events", event, []PatchOp{{Op: "replace", Path: path, Value: value}})
}

// snapshotFromTask builds a SessionSnapshot for a single task, overlaying
// any registry-only state keyed by the task's current claim owner.
func (r *Registry) snapshotFromTask(t *memory.Task) SessionSnapshot {
	owner := ""
	if t.Claim != nil {
		owner = t.Claim.Owner
	}
	status := SessionActive
	switch t.Status {
	case memory.StatusCompleted:
		status = SessionCompleted
	case memory.StatusFailed:
		status = SessionFailed
	}

	r.mu.RLock()
	ov := r.overlay[owner]
	r.mu.RUnlock()

	snap := SessionSnapshot{
		SessionID:  owner,
		Owner:      owner,
		TaskID:     t.ID,
		TaskTitle:  t.Title,
		Phase:      t.Phase,
		Status:     status,
		LastReason: t.FailReason,
		UpdatedAt:  t.UpdatedAt,
	}
	if ov != nil {
		if ov.ended {
			snap.Status = SessionEnded
		} else if ov.paused && status == SessionActive {
			snap.Status = SessionPaused
		}
		snap.Confidence = ov.confidence
	}
	return snap
}

// Summary is the GET /api/sessions/summary payload.
type Summary struct {
	Sessions    []SessionSnapshot     `json:"sessions"`
	Completions []CompletionEvent     `json:"recentCompletions"`
	Usage       usage.AggregatedStats `json:"usage"`
}

// Summary builds spec §6.2's "global metrics + per-session snapshot
// array + recent completions feed".
func (r *Registry) Summary() (Summary, error) {
	live, err := r.tasksMgr.List(memory.StatusInProgress)
	if err != nil {
		return Summary{}, err
	}
	claimed, err := r.tasksMgr.List(memory.StatusClaimed)
	if err != nil {
		return Summary{}, err
	}

	snaps := make([]SessionSnapshot, 0, len(live)+len(claimed))
	for _, t := range live {
		snaps = append(snaps, r.snapshotFromTask(t))
	}
	for _, t := range claimed {
		snaps = append(snaps, r.snapshotFromTask(t))
	}

	r.mu.RLock()
	completions := append([]CompletionEvent(nil), r.completions...)
	r.mu.RUnlock()

	var stats usage.AggregatedStats
	if r.usageT != nil {
		stats = r.usageT.Stats()
	}

	return Summary{Sessions: snaps, Completions: completions, Usage: stats}, nil
}

// Detail is the GET /api/sessions/{id} payload. {id} is the session's
// owner id (the claim owner the Loop was configured with).
type Detail struct {
	SessionSnapshot
	AcceptanceCriteria []string            `json:"acceptanceCriteria"`
	CriteriaMet        []bool              `json:"criteriaMet"`
	PhaseHistory       []PhaseHistoryEntry `json:"phaseHistory"`
}

// PhaseHistoryEntry is one recorded orchestration run for a session's
// current task, derived from the observation the Agent Orchestrator
// records per phase (spec §4.15 step 4).
type PhaseHistoryEntry struct {
	Pattern   string    `json:"pattern"`
	Success   bool      `json:"success"`
	CostUSD   float64   `json:"costUsd"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrSessionNotFound signals a detail/control lookup against an unknown
// session id (dashboard HTTP layer maps this to 404/409).
var ErrSessionNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "session not found" }

// Detail builds spec §6.2's full session detail.
func (r *Registry) Detail(sessionID string) (Detail, error) {
	t, err := r.taskForSession(sessionID)
	if err != nil {
		return Detail{}, err
	}

	var history []PhaseHistoryEntry
	if r.mem != nil {
		orchs, err := r.mem.QueryOrchestrations(memory.QueryFilters{TaskID: t.ID})
		if err == nil {
			for _, o := range orchs {
				history = append(history, PhaseHistoryEntry{
					Pattern:   string(o.Pattern),
					Success:   o.Success,
					CostUSD:   o.CostUSD,
					CreatedAt: o.CreatedAt,
				})
			}
		}
	}

	return Detail{
		SessionSnapshot:    r.snapshotFromTask(t),
		AcceptanceCriteria: t.AcceptanceCriteria,
		CriteriaMet:        t.CriteriaMet,
		PhaseHistory:       history,
	}, nil
}

// taskForSession finds the task currently claimed by sessionID (active or
// claimed), since this registry treats a loop's claim-owner id as the
// session id per spec §4.16.
func (r *Registry) taskForSession(sessionID string) (*memory.Task, error) {
	for _, status := range []memory.Status{memory.StatusInProgress, memory.StatusClaimed} {
		ts, err := r.tasksMgr.List(status)
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			if t.Claim != nil && t.Claim.Owner == sessionID {
				return t, nil
			}
		}
	}
	return nil, ErrSessionNotFound
}
