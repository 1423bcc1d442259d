// Package loop implements the Continuous Loop Orchestrator (CLO, spec
// §4.15): the per-project driver that pulls tasks from the Task Manager,
// plans them via CP/PE, runs each phase through the Agent Orchestrator,
// checks safety between phases, and persists the outcome.
package loop

import (
	"context"
	"fmt"
	"time"

	"loopctl/internal/bus"
	"loopctl/internal/checkpoint"
	"loopctl/internal/confidence"
	"loopctl/internal/hil"
	"loopctl/internal/limits"
	"loopctl/internal/logging"
	"loopctl/internal/memory"
	"loopctl/internal/orchestrator"
	"loopctl/internal/planning"
	"loopctl/internal/quality"
	"loopctl/internal/retrieval"
	"loopctl/internal/tasks"
	"loopctl/internal/usage"
)

func usageEventFor(task *memory.Task, phase quality.Phase, pattern memory.Pattern, result orchestrator.Result) usage.Event {
	return usage.Event{
		OrchestrationID: result.OrchestrationID,
		Pattern:         pattern,
		Usage: memory.TokenUsage{
			Input:       result.Usage.Input,
			Output:      result.Usage.Output,
			CacheCreate: result.Usage.CacheCreate,
			CacheRead:   result.Usage.CacheRead,
		},
	}
}

// Config tunes one Loop's behavior; zero values fall back to spec §6.5's
// documented defaults via applyDefaults.
type Config struct {
	Owner          string // this CLO's claim-owner id, e.g. "loop-<sessionID>"
	MaxIterations  int
	ClaimLease     time.Duration
	HeartbeatEvery time.Duration
	WrapUpBudget   time.Duration
	SelectBackoff  time.Duration // pause between failed claim attempts

	// Roster and PhasePatterns override the default agent composition and
	// collaboration pattern per phase (spec §4.15 step 4: "configurable
	// per phase"). Unset phases fall back to a single generalist agent
	// and the spec's documented default pattern, respectively.
	Roster        map[quality.Phase][]string
	PhasePatterns map[quality.Phase]memory.Pattern

	ContextTokenBudget int // denominator for CR's "context percent used" safety signal
	BudgetThresholds   usage.BudgetThresholds
}

func (c *Config) applyDefaults() {
	if c.Owner == "" {
		c.Owner = "loop-default"
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 5 * time.Minute
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 30 * time.Second
	}
	if c.WrapUpBudget <= 0 {
		c.WrapUpBudget = 60 * time.Second
	}
	if c.SelectBackoff <= 0 {
		c.SelectBackoff = 2 * time.Second
	}
}

// Loop wires every subsystem built before it (M, V, CR, U, L, CO, HIL, TM,
// CP/PE, QG, CM, LH, MB, AO) into the ten-step drive spec §4.15 describes.
type Loop struct {
	cfg Config

	mem          *memory.Store
	tasksMgr     *tasks.Manager
	planningC    *planning.Coordinator
	orch         *orchestrator.Orchestrator
	retriever    *retrieval.ContextRetriever
	quality      *quality.Gates
	confidence   *confidence.Monitor
	usageT       *usage.Tracker
	limitsT      *limits.Tracker
	checkpointO  *checkpoint.Optimizer
	hilD         *hil.Detector
	messageBus   *bus.Bus

	logger *logging.Logger

	hb *heartbeat

	lastContextTokens int
}

// Deps bundles the already-constructed subsystem handles a Loop drives.
// Everything here is built and ledgered by an earlier package; Loop adds
// no new persistence of its own.
type Deps struct {
	Mem          *memory.Store
	Tasks        *tasks.Manager
	Planning     *planning.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Retriever    *retrieval.ContextRetriever
	Quality      *quality.Gates
	Confidence   *confidence.Monitor
	Usage        *usage.Tracker
	Limits       *limits.Tracker
	Checkpoint   *checkpoint.Optimizer
	HIL          *hil.Detector
	Bus          *bus.Bus
}

// New builds a Loop. cfg's zero fields take spec §6.5 defaults.
func New(deps Deps, cfg Config) *Loop {
	cfg.applyDefaults()
	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = 2000
	}
	return &Loop{
		cfg:         cfg,
		mem:         deps.Mem,
		tasksMgr:    deps.Tasks,
		planningC:   deps.Planning,
		orch:        deps.Orchestrator,
		retriever:   deps.Retriever,
		quality:     deps.Quality,
		confidence:  deps.Confidence,
		usageT:      deps.Usage,
		limitsT:     deps.Limits,
		checkpointO: deps.Checkpoint,
		hilD:        deps.HIL,
		messageBus:  deps.Bus,
		logger:      logging.GetSession(cfg.Owner),
	}
}

// Outcome is one drive cycle's terminal result (spec §4.15 steps 8/9).
type Outcome struct {
	TaskID     string
	Completed  bool
	Failed     bool
	Paused     bool
	Reason     string
	Iterations int
}

// RunOnce drives one task end to end: select, claim, plan, phase loop,
// completion or failure. It returns (Outcome{}, nil) with an empty
// TaskID when no eligible task was found (spec §4.15 step 1's "transition
// to idle").
func (l *Loop) RunOnce(ctx context.Context) (Outcome, error) {
	task, err := l.tasksMgr.Next()
	if err != nil {
		return Outcome{}, fmt.Errorf("loop: select: %w", err)
	}
	if task == nil {
		return Outcome{}, nil
	}

	claimed, err := l.tasksMgr.Claim(task.ID, l.cfg.Owner)
	if err != nil {
		l.logger.Debug("loop: claim contention on %s: %v", task.ID, err)
		select {
		case <-time.After(l.cfg.SelectBackoff):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, nil
	}
	task = claimed

	l.hb = startHeartbeat(l.tasksMgr, task.ID, l.cfg.Owner, l.cfg.HeartbeatEvery, l.logger)
	defer l.hb.stop()

	outcome, runErr := l.drive(ctx, task)
	if runErr != nil {
		_ = l.tasksMgr.Fail(task.ID, l.cfg.Owner, runErr.Error())
		if l.messageBus != nil {
			l.messageBus.Publish("task:failed", map[string]any{"taskId": task.ID, "reason": runErr.Error()})
		}
		return Outcome{TaskID: task.ID, Failed: true, Reason: runErr.Error()}, nil
	}
	return outcome, nil
}

// drive runs the planning + phase-loop + iteration steps (spec §4.15
// steps 3-6) for an already-claimed task.
func (l *Loop) drive(ctx context.Context, task *memory.Task) (Outcome, error) {
	plans := l.plan(task)

	history := newIterationHistory()
	phases := phaseSequence()
	resumeFrom := 0

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		for i := resumeFrom; i < len(phases); i++ {
			phase := phases[i]

			decision, reason := l.checkSafety(ctx, task)
			switch decision {
			case DecisionStop:
				return Outcome{}, fmt.Errorf("safety stop before phase %s: %s", phase, reason)
			case DecisionWrapUp:
				l.logger.Info("task %s: wrap-up triggered before phase %s: %s", task.ID, phase, reason)
				return Outcome{TaskID: task.ID, Paused: true, Reason: reason, Iterations: iteration}, nil
			case DecisionCheckpoint:
				l.logger.Info("task %s: checkpoint suggested before phase %s: %s", task.ID, phase, reason)
			}

			result, err := l.runPhase(ctx, task, phase, plans)
			if err != nil {
				return Outcome{}, fmt.Errorf("phase %s: %w", phase, err)
			}

			gate := l.quality.Evaluate(quality.Phase(phase), result.ResultText)
			history.record(phase, iteration, gate.Pass, gate.Score)

			if !gate.Pass {
				l.logger.Info("task %s: phase %s failed quality gate (%.0f/%.0f), iterating", task.ID, phase, gate.Score, gate.Threshold)
				resumeFrom = history.earliestFailedIndex(phases)
				break
			}
			resumeFrom = i + 1
		}

		if resumeFrom >= len(phases) {
			criteriaMet, err := l.tasksMgr.AllCriteriaMet(task.ID)
			if err != nil {
				return Outcome{}, fmt.Errorf("loop: acceptance check: %w", err)
			}
			if criteriaMet {
				if err := l.tasksMgr.Complete(task.ID, l.cfg.Owner, "all phases passed quality gates"); err != nil {
					return Outcome{}, fmt.Errorf("loop: complete: %w", err)
				}
				l.recordConfidence(task, history, iteration)
				if l.messageBus != nil {
					l.messageBus.Publish("task:completed", map[string]any{"taskId": task.ID, "iterations": iteration})
				}
				return Outcome{TaskID: task.ID, Completed: true, Iterations: iteration}, nil
			}
			l.logger.Info("task %s: phases passed but acceptance criteria incomplete, iterating", task.ID)
			resumeFrom = 0
		}
	}

	return Outcome{}, fmt.Errorf("task %s exceeded max-iterations (%d)", task.ID, l.cfg.MaxIterations)
}

// plan calls the Competitive Planner/Evaluator when the task clears the
// complexity threshold (spec §4.15 step 3). When the evaluator flags a
// tie, "plans:tie" is published and plan returns at once: it does not
// wait for a human decision, and the plans are returned as generated.
func (l *Loop) plan(task *memory.Task) []*planning.Plan {
	outcome := l.planningC.Plan(task.ID, task.Title, task.Description, false)
	if outcome.Result.NeedsReview && l.messageBus != nil {
		l.messageBus.Publish("plans:tie", map[string]any{"taskId": task.ID, "reason": outcome.Result.TieReason})
	}
	return outcome.Plans
}

// recordConfidence blends this task's iteration history into the
// Confidence Monitor's five-signal score (spec §4.11) and logs/publishes
// the result. Velocity and Historical have no wired data source yet at
// the loop level (no rolling tasks/hour or per-task-type success-rate
// query exists in TM/memory), so both hold a neutral 100 until one is
// added.
func (l *Loop) recordConfidence(task *memory.Task, history *iterationHistory, iterations int) {
	if l.confidence == nil {
		return
	}
	signals := confidence.Signals{
		Quality:    history.averageScore(),
		Velocity:   100,
		Iteration:  confidence.NormalizeIteration(iterations, l.cfg.MaxIterations),
		ErrorRate:  confidence.NormalizeErrorRate(history.errorFraction()),
		Historical: 100,
	}
	result := l.confidence.Evaluate(signals)
	l.logger.Info("task %s: confidence %.1f (%s)", task.ID, result.Score, result.Status)
	if l.messageBus != nil {
		l.messageBus.Publish("confidence:evaluated", map[string]any{
			"taskId": task.ID,
			"score":  result.Score,
			"status": string(result.Status),
		})
	}
}

func balancedPlan(plans []*planning.Plan) *planning.Plan {
	for _, p := range plans {
		if p.Strategy == planning.StrategyBalanced {
			return p
		}
	}
	if len(plans) > 0 {
		return plans[0]
	}
	return nil
}
