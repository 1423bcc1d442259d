package orchestrator

import (
	"context"
	"fmt"

	"loopctl/internal/agentrunner"
)

// runEnsemble dispatches instructions to every agent in parallel, then
// selects or combines their outputs per opts.EnsembleSelector (spec
// §4.14 Ensemble): best-of scores each output and picks the winner,
// merge concatenates every successful output, vote picks the most
// common output by exact text match.
func runEnsemble(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) ([]AgentOutput, string, bool, map[string]any, error) {
	if len(agentIDs) < 2 {
		return nil, "", false, nil, fmt.Errorf("orchestrator: ensemble requires at least two agents")
	}

	outputs, err := invokeAll(ctx, runner, agentIDs, instructions, opts)
	if err != nil {
		return nil, "", false, nil, err
	}
	succeeded := onlySucceeded(outputs)
	if len(succeeded) == 0 {
		return outputs, "", false, map[string]any{"selector": string(opts.EnsembleSelector)}, nil
	}

	selector := opts.EnsembleSelector
	if selector == "" {
		selector = EnsembleBestOf
	}

	var resultText, selected string
	switch selector {
	case EnsembleMerge:
		resultText = defaultReducer(succeeded)
	case EnsembleVote:
		votes := make([]vote, 0, len(succeeded))
		for _, o := range succeeded {
			votes = append(votes, vote{agentID: o.AgentID, decision: o.OutputText, weight: 1})
		}
		support, ranked := tally(votes)
		selected = ranked[0]
		resultText = selected
		_ = support
	default: // best-of
		scorer := opts.Scorer
		if scorer == nil {
			scorer = lengthScorer
		}
		best := succeeded[0]
		bestScore := scorer(best)
		for _, o := range succeeded[1:] {
			if s := scorer(o); s > bestScore {
				best, bestScore = o, s
			}
		}
		selected = best.AgentID
		resultText = best.OutputText
	}

	detail := map[string]any{
		"selector":     string(selector),
		"selected":     selected,
		"alternatives": alternativeTexts(succeeded),
	}
	return outputs, resultText, true, detail, nil
}

// lengthScorer is the default best-of scorer when the caller supplies
// none: favor the most substantive (longest) response, a reasonable
// stand-in until the caller plugs in a domain-specific scoring callback.
func lengthScorer(o AgentOutput) float64 { return float64(len(o.OutputText)) }

func alternativeTexts(outputs []AgentOutput) []string {
	out := make([]string, len(outputs))
	for i, o := range outputs {
		out[i] = o.OutputText
	}
	return out
}
