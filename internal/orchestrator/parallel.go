package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"loopctl/internal/agentrunner"
)

// runParallel dispatches instructions to every agent in agentIDs
// concurrently and synthesizes their outputs into one result (spec §4.14
// Parallel). Success requires at least opts.MinSuccess agents to
// complete without error; MinSuccess <= 0 means "all of them".
func runParallel(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) ([]AgentOutput, string, bool, map[string]any, error) {
	outputs, err := invokeAll(ctx, runner, agentIDs, instructions, opts)
	if err != nil {
		return nil, "", false, nil, err
	}

	succeeded := 0
	for _, o := range outputs {
		if o.Succeeded() {
			succeeded++
		}
	}
	minSuccess := opts.MinSuccess
	if minSuccess <= 0 {
		minSuccess = len(agentIDs)
	}

	reducer := opts.Reducer
	if reducer == nil {
		reducer = defaultReducer
	}
	resultText := reducer(onlySucceeded(outputs))

	detail := map[string]any{"succeeded": succeeded, "total": len(agentIDs)}
	return outputs, resultText, succeeded >= minSuccess, detail, nil
}

// invokeAll runs runner.Invoke against every agent id concurrently via an
// errgroup, preserving agentIDs' order in the returned slice regardless of
// completion order. An individual agent's failure is captured on its
// AgentOutput rather than aborting the group — parallel dispatch always
// collects every outcome (spec §4.14: "collect outputs").
func invokeAll(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) ([]AgentOutput, error) {
	outputs := make([]AgentOutput, len(agentIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, agentID := range agentIDs {
		i, agentID := i, agentID
		g.Go(func() error {
			start := time.Now()
			resp, err := runner.Invoke(gctx, agentID, instructions, opts.Inputs, opts.RetryPolicy)
			outputs[i] = AgentOutput{
				AgentID:    agentID,
				OutputText: resp.OutputText,
				Usage:      resp.Usage,
				Model:      resp.Model,
				DurationMs: time.Since(start).Milliseconds(),
				Err:        err,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("orchestrator: parallel dispatch: %w", err)
	}
	return outputs, nil
}

// invokeOne runs a single agent call and wraps it as an AgentOutput,
// shared by the sequential patterns (consensus rerun, debate, review).
func invokeOne(ctx context.Context, runner *agentrunner.Runner, agentID, instructions string, opts Options) AgentOutput {
	start := time.Now()
	resp, err := runner.Invoke(ctx, agentID, instructions, opts.Inputs, opts.RetryPolicy)
	return AgentOutput{
		AgentID:    agentID,
		OutputText: resp.OutputText,
		Usage:      resp.Usage,
		Model:      resp.Model,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        err,
	}
}

func onlySucceeded(outputs []AgentOutput) []AgentOutput {
	out := make([]AgentOutput, 0, len(outputs))
	for _, o := range outputs {
		if o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}
