package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"loopctl/internal/agentrunner"
)

// approvalMarker is the token a reviewer leads their critique with to
// register an approval vote rather than requested changes.
const approvalMarker = "APPROVE"

// runReview treats agentIDs[0] as the creator and the rest as reviewers
// (spec §4.14 Review): the creator produces an artifact, then every round
// gathers reviewer critiques of the current artifact, and the creator
// revises between rounds, stopping once enough reviewers approve or the
// round budget runs out.
func runReview(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) ([]AgentOutput, string, bool, map[string]any, error) {
	if len(agentIDs) < 2 {
		return nil, "", false, nil, fmt.Errorf("orchestrator: review requires a creator and at least one reviewer")
	}
	creator := agentIDs[0]
	reviewers := agentIDs[1:]

	rounds := opts.ReviewRounds
	if rounds <= 0 {
		rounds = 3
	}
	minApprovals := opts.MinApprovals
	if minApprovals <= 0 {
		minApprovals = len(reviewers)
	}

	var all []AgentOutput
	artifact := invokeOne(ctx, runner, creator, instructions, opts)
	all = append(all, artifact)
	if !artifact.Succeeded() {
		return all, "", false, map[string]any{"rounds": 1, "approvals": 0}, nil
	}

	current := artifact.OutputText
	approvals := 0
	roundsRun := 1

	for round := 1; round <= rounds; round++ {
		roundsRun = round
		var critiques []AgentOutput
		for _, reviewer := range reviewers {
			prompt := instructions + "\n\nArtifact under review:\n" + current +
				"\n\nLead your response with " + approvalMarker + " if acceptable, or REQUEST_CHANGES with what must change."
			critiques = append(critiques, invokeOne(ctx, runner, reviewer, prompt, opts))
		}
		all = append(all, critiques...)

		approvals = countApprovals(critiques)
		if approvals >= minApprovals {
			break
		}
		if round == rounds {
			break
		}

		revisionPrompt := instructions + "\n\nCurrent artifact:\n" + current + "\n\nReviewer feedback:\n" + summarize(critiques) +
			"\n\nRevise the artifact to address the feedback."
		revised := invokeOne(ctx, runner, creator, revisionPrompt, opts)
		all = append(all, revised)
		if !revised.Succeeded() {
			break
		}
		current = revised.OutputText
	}

	approved := approvals >= minApprovals
	detail := map[string]any{"rounds": roundsRun, "approvals": approvals, "minApprovals": minApprovals}
	return all, current, approved, detail, nil
}

func countApprovals(critiques []AgentOutput) int {
	n := 0
	for _, c := range critiques {
		if !c.Succeeded() {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(c.OutputText), approvalMarker) {
			n++
		}
	}
	return n
}
