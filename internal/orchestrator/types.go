// Package orchestrator implements the Agent Orchestrator (AO, spec
// §4.14): five collaboration patterns over the Agent Runner, each
// exposed through the same execute(pattern, task, agent-ids, options)
// call and state machine.
package orchestrator

import (
	"time"

	"loopctl/internal/agentrunner"
	"loopctl/internal/memory"
)

// AgentOutput is one agent's contribution to an orchestration.
type AgentOutput struct {
	AgentID    string
	OutputText string
	Usage      agentrunner.Usage
	Model      string
	DurationMs int64
	Err        error
}

// Succeeded reports whether this agent's call completed without error.
func (o AgentOutput) Succeeded() bool { return o.Err == nil }

// Reducer combines multiple agent outputs into one synthesized result
// text, for patterns that don't have an obvious default (spec §4.14
// Parallel: "synthesize by concatenation or user-supplied reducer").
type Reducer func(outputs []AgentOutput) string

// Scorer ranks one agent output for Ensemble's best-of selector (spec
// §4.14 Ensemble: "selector function (default 'best-of' by a scoring
// callback)").
type Scorer func(output AgentOutput) float64

// Options configures one Execute call across all five patterns; only the
// fields relevant to the chosen pattern are consulted.
type Options struct {
	// Common
	Inputs      map[string]any
	RetryPolicy agentrunner.Options

	// Parallel
	MinSuccess int // default: all
	Reducer    Reducer

	// Consensus
	ConsensusMethod    ConsensusMethod
	ConsensusThreshold float64 // default 0.7
	AgentWeights       map[string]float64

	// Debate
	DebateRounds int // default 3
	Synthesizer  string // default: first agent id

	// Review
	ReviewRounds int // default 3
	MinApprovals int // default: all reviewers

	// Ensemble
	EnsembleSelector EnsembleSelector // default best-of
	Scorer           Scorer
}

// ConsensusMethod is one of Consensus's vote-aggregation rules.
type ConsensusMethod string

const (
	ConsensusMajority  ConsensusMethod = "majority"
	ConsensusWeighted  ConsensusMethod = "weighted"
	ConsensusUnanimous ConsensusMethod = "unanimous"
)

// EnsembleSelector is one of Ensemble's output-selection strategies.
type EnsembleSelector string

const (
	EnsembleBestOf EnsembleSelector = "best-of"
	EnsembleMerge  EnsembleSelector = "merge"
	EnsembleVote   EnsembleSelector = "vote"
)

// Result is what Execute returns for every pattern (spec §4.14).
type Result struct {
	Success         bool
	ResultText      string
	PerAgent        []AgentOutput
	Usage           agentrunner.Usage
	Duration        time.Duration
	OrchestrationID string
	Pattern         memory.Pattern

	// NeedsReview surfaces an unresolved deadlock (Consensus) or a tie
	// that the caller should escalate rather than silently pick a side.
	NeedsReview bool
	Detail      map[string]any
}

func sumUsage(outputs []AgentOutput) agentrunner.Usage {
	var u agentrunner.Usage
	for _, o := range outputs {
		u.Input += o.Usage.Input
		u.Output += o.Usage.Output
		u.CacheCreate += o.Usage.CacheCreate
		u.CacheRead += o.Usage.CacheRead
	}
	return u
}

func defaultReducer(outputs []AgentOutput) string {
	var b []byte
	for i, o := range outputs {
		if i > 0 {
			b = append(b, "\n---\n"...)
		}
		b = append(b, o.OutputText...)
	}
	return string(b)
}
