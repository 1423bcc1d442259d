package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"loopctl/internal/agentrunner"
)

// vote is one agent's decision, trimmed to its first line so minor
// trailing rationale differences don't split an otherwise-agreeing vote.
type vote struct {
	agentID  string
	decision string
	weight   float64
}

func decisionOf(output string) string {
	line := strings.SplitN(strings.TrimSpace(output), "\n", 2)[0]
	return strings.TrimSpace(line)
}

// tally sums weight per distinct decision and returns decisions ordered by
// descending support.
func tally(votes []vote) (support map[string]float64, ranked []string) {
	support = make(map[string]float64)
	for _, v := range votes {
		support[v.decision] += v.weight
	}
	for d := range support {
		ranked = append(ranked, d)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if support[ranked[i]] != support[ranked[j]] {
			return support[ranked[i]] > support[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	return support, ranked
}

// runConsensus dispatches instructions to every agent in parallel, then
// aggregates their decisions by majority, weighted, or unanimous rule
// (spec §4.14 Consensus). Whenever the threshold isn't met on the first
// pass, it reruns once with each agent's opponents' rationale appended
// before surfacing a deadlock for human review.
func runConsensus(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) ([]AgentOutput, string, bool, map[string]any, error) {
	if len(agentIDs) < 2 {
		return nil, "", false, nil, fmt.Errorf("orchestrator: consensus requires at least two agents")
	}

	outputs, err := invokeAll(ctx, runner, agentIDs, instructions, opts)
	if err != nil {
		return nil, "", false, nil, err
	}

	method := opts.ConsensusMethod
	if method == "" {
		method = ConsensusMajority
	}
	threshold := opts.ConsensusThreshold
	if threshold <= 0 {
		threshold = 0.7
	}

	votes := votesFrom(outputs, method, opts.AgentWeights)
	winner, support, total, ok := resolve(votes, method, threshold)

	if !ok {
		rerun, rerunErr := rerunWithOpponentContext(ctx, runner, outputs, instructions, opts)
		if rerunErr == nil {
			outputs = mergeReruns(outputs, rerun)
			votes = votesFrom(outputs, method, opts.AgentWeights)
			winner, support, total, ok = resolve(votes, method, threshold)
		}
	}

	detail := map[string]any{
		"method":    string(method),
		"support":   support,
		"winner":    winner,
		"needsReview": !ok,
	}
	if !ok {
		detail["deadlock"] = true
		return outputs, "", false, detail, nil
	}

	resultText := fmt.Sprintf("%s (support %.0f/%.0f)", winner, support[winner], total)
	return outputs, resultText, true, detail, nil
}

func votesFrom(outputs []AgentOutput, method ConsensusMethod, weights map[string]float64) []vote {
	votes := make([]vote, 0, len(outputs))
	for _, o := range outputs {
		if !o.Succeeded() {
			continue
		}
		w := 1.0
		if method == ConsensusWeighted {
			if wt, ok := weights[o.AgentID]; ok {
				w = wt
			}
		}
		votes = append(votes, vote{agentID: o.AgentID, decision: decisionOf(o.OutputText), weight: w})
	}
	return votes
}

func resolve(votes []vote, method ConsensusMethod, threshold float64) (winner string, support map[string]float64, total float64, ok bool) {
	if len(votes) == 0 {
		return "", map[string]float64{}, 0, false
	}
	support, ranked := tally(votes)
	for _, s := range support {
		total += s
	}
	winner = ranked[0]

	switch method {
	case ConsensusUnanimous:
		ok = len(ranked) == 1
	default: // majority, weighted
		ok = total > 0 && support[winner]/total >= threshold
	}
	return winner, support, total, ok
}

// rerunWithOpponentContext re-invokes every agent once, appending the
// other agents' stated decisions to the prompt so the rerun vote is
// informed rather than a blind repeat (spec §4.14: "tie-breaking via
// rerun with opponents' rationales appended").
func rerunWithOpponentContext(ctx context.Context, runner *agentrunner.Runner, outputs []AgentOutput, instructions string, opts Options) ([]AgentOutput, error) {
	rerunOutputs := make([]AgentOutput, len(outputs))
	for i, o := range outputs {
		augmented := instructions + "\n\nOther agents' positions:\n" + opponentSummary(outputs, o.AgentID)
		rerunOutputs[i] = invokeOne(ctx, runner, o.AgentID, augmented, opts)
	}
	return rerunOutputs, nil
}

func opponentSummary(outputs []AgentOutput, exclude string) string {
	var b strings.Builder
	for _, o := range outputs {
		if o.AgentID == exclude {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", o.AgentID, decisionOf(o.OutputText))
	}
	return b.String()
}

func mergeReruns(original, rerun []AgentOutput) []AgentOutput {
	byID := make(map[string]AgentOutput, len(rerun))
	for _, o := range rerun {
		byID[o.AgentID] = o
	}
	merged := make([]AgentOutput, len(original))
	for i, o := range original {
		if r, ok := byID[o.AgentID]; ok {
			merged[i] = r
		} else {
			merged[i] = o
		}
	}
	return merged
}
