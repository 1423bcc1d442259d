package orchestrator

import (
	"context"
	"fmt"
	"time"

	"loopctl/internal/agentrunner"
	"loopctl/internal/bus"
	"loopctl/internal/hooks"
	"loopctl/internal/ids"
	"loopctl/internal/logging"
	"loopctl/internal/memory"
)

// patternFunc is the shape every one of the five pattern implementations
// satisfies: given the agent ids and shared inputs, run whatever dispatch
// shape the pattern calls for and return the per-agent outputs plus a
// synthesized result and success verdict.
type patternFunc func(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) (outputs []AgentOutput, resultText string, success bool, detail map[string]any, err error)

var patternTable = map[memory.Pattern]patternFunc{
	memory.PatternParallel:  runParallel,
	memory.PatternConsensus: runConsensus,
	memory.PatternDebate:    runDebate,
	memory.PatternReview:    runReview,
	memory.PatternEnsemble:  runEnsemble,
}

// Orchestrator runs one of the five agent collaboration patterns (spec
// §4.14) end to end: pre-flight hooks, pattern dispatch over the Agent
// Runner, synthesis, persistence, and a completion event on the bus.
type Orchestrator struct {
	runner *agentrunner.Runner
	hooks  *hooks.Pipeline
	bus    *bus.Bus
	mem    *memory.Store
	logger *logging.Logger
}

// New builds an Orchestrator. hooks and bus may be nil, in which case
// pre/post-flight hooks and the completion event are skipped — useful for
// tests that only care about one pattern's dispatch logic.
func New(runner *agentrunner.Runner, hookPipeline *hooks.Pipeline, messageBus *bus.Bus, mem *memory.Store) *Orchestrator {
	return &Orchestrator{
		runner: runner,
		hooks:  hookPipeline,
		bus:    messageBus,
		mem:    mem,
		logger: logging.Get(logging.CategoryOrchestrator),
	}
}

// ExecutionPayload is threaded through the Lifecycle Hooks pipeline at
// beforeExecution/afterExecution/onError so hook handlers can inspect and
// (at beforeExecution) veto an orchestration.
type ExecutionPayload struct {
	Pattern      memory.Pattern
	Task         *memory.Task
	AgentIDs     []string
	Instructions string
	Result       *Result
	Err          error
}

// Execute runs pattern against agentIDs for task, driving the
// init→contextLoading→executing→synthesizing→persisting→done state
// machine (spec §4.14).
func (o *Orchestrator) Execute(ctx context.Context, pattern memory.Pattern, task *memory.Task, agentIDs []string, opts Options) (Result, error) {
	fn, ok := patternTable[pattern]
	if !ok {
		return Result{}, fmt.Errorf("orchestrator: unknown pattern %q", pattern)
	}

	opID := ids.New("orch")
	st := newTracker(opID, o.logger)
	start := time.Now()

	instructions := instructionsFor(task)
	payload := ExecutionPayload{Pattern: pattern, Task: task, AgentIDs: agentIDs, Instructions: instructions}

	st.move(StateContextLoading)
	if o.hooks != nil {
		if next, err := o.hooks.Run(hooks.BeforeExecution, payload); err != nil {
			st.fail()
			o.runOnError(payload, err)
			return Result{}, err
		} else if p, ok := next.(ExecutionPayload); ok {
			payload = p
		}
	}

	st.move(StateExecuting)
	outputs, resultText, success, detail, err := fn(ctx, o.runner, payload.AgentIDs, payload.Instructions, opts)
	if err != nil {
		st.fail()
		payload.Err = err
		o.runOnError(payload, err)
		return Result{}, err
	}

	st.move(StateSynthesizing)
	result := Result{
		Success:         success,
		ResultText:      resultText,
		PerAgent:        outputs,
		Usage:           sumUsage(outputs),
		Duration:        time.Since(start),
		OrchestrationID: opID,
		Pattern:         pattern,
		Detail:          detail,
	}
	if needsReview, ok := detail["needsReview"].(bool); ok {
		result.NeedsReview = needsReview
	}

	st.move(StatePersisting)
	if o.mem != nil {
		taskID := ""
		if task != nil {
			taskID = task.ID
		}
		rec := &memory.Orchestration{
			ID:            opID,
			Pattern:       pattern,
			AgentIDs:      payload.AgentIDs,
			TaskID:        taskID,
			Inputs:        payload.Instructions,
			ResultSummary: truncate(resultText, 4096),
			Success:       success,
			Duration:      result.Duration,
			Usage: memory.TokenUsage{
				Input:       result.Usage.Input,
				Output:      result.Usage.Output,
				CacheCreate: result.Usage.CacheCreate,
				CacheRead:   result.Usage.CacheRead,
			},
		}
		if perr := o.mem.RecordOrchestration(rec); perr != nil {
			o.logger.Warn("orchestration %s: persist failed: %v", opID, perr)
		}
	}

	payload.Result = &result
	if o.hooks != nil {
		if _, herr := o.hooks.Run(hooks.AfterExecution, payload); herr != nil {
			o.logger.Warn("orchestration %s: afterExecution hook failed: %v", opID, herr)
		}
	}

	if o.bus != nil {
		o.bus.Publish("orchestrator:execution:complete", result)
	}

	st.move(StateDone)
	return result, nil
}

func (o *Orchestrator) runOnError(payload ExecutionPayload, err error) {
	payload.Err = err
	if o.hooks != nil {
		if _, herr := o.hooks.Run(hooks.OnError, payload); herr != nil {
			o.logger.Warn("onError hook itself failed: %v", herr)
		}
	}
	if o.bus != nil {
		o.bus.Publish("orchestrator:execution:failed", payload)
	}
}

func instructionsFor(task *memory.Task) string {
	if task == nil {
		return ""
	}
	if task.Description != "" {
		return task.Title + "\n\n" + task.Description
	}
	return task.Title
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
