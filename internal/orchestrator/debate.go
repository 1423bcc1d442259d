package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"loopctl/internal/agentrunner"
)

// convergedMarker is the token a synthesizer ends its refined proposal
// with to signal explicit convergence before the round budget is
// spent (spec §4.14 Debate: "terminate at R or explicit convergence").
const convergedMarker = "CONVERGED"

// runDebate runs up to opts.DebateRounds rounds: round one is the first
// agent's initial proposal, each later round gathers parallel critiques
// from the remaining agents and has the synthesizer fold them into a
// refined proposal, stopping early if the synthesizer marks convergence.
func runDebate(ctx context.Context, runner *agentrunner.Runner, agentIDs []string, instructions string, opts Options) ([]AgentOutput, string, bool, map[string]any, error) {
	if len(agentIDs) == 0 {
		return nil, "", false, nil, fmt.Errorf("orchestrator: debate requires at least one agent")
	}

	rounds := opts.DebateRounds
	if rounds <= 0 {
		rounds = 3
	}
	synthesizer := opts.Synthesizer
	if synthesizer == "" {
		synthesizer = agentIDs[0]
	}
	critics := otherAgents(agentIDs, synthesizer)

	var all []AgentOutput
	proposal := invokeOne(ctx, runner, agentIDs[0], instructions, opts)
	all = append(all, proposal)
	if !proposal.Succeeded() {
		return all, "", false, map[string]any{"rounds": 1}, nil
	}

	current := proposal.OutputText
	converged := false
	roundsRun := 1

	for round := 2; round <= rounds; round++ {
		roundsRun = round
		var critiques []AgentOutput
		for _, critic := range critics {
			prompt := instructions + "\n\nCurrent proposal:\n" + current + "\n\nCritique this proposal."
			critiques = append(critiques, invokeOne(ctx, runner, critic, prompt, opts))
		}
		all = append(all, critiques...)

		synthPrompt := instructions + "\n\nCurrent proposal:\n" + current + "\n\nCritiques:\n" + summarize(critiques) +
			"\n\nRefine the proposal. If it needs no further changes, end your reply with the word " + convergedMarker + "."
		refined := invokeOne(ctx, runner, synthesizer, synthPrompt, opts)
		all = append(all, refined)
		if !refined.Succeeded() {
			break
		}
		current = refined.OutputText
		if strings.HasSuffix(strings.TrimSpace(current), convergedMarker) {
			converged = true
			break
		}
	}

	detail := map[string]any{"rounds": roundsRun, "converged": converged}
	return all, current, true, detail, nil
}

func otherAgents(agentIDs []string, exclude string) []string {
	out := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func summarize(outputs []AgentOutput) string {
	var b strings.Builder
	for _, o := range outputs {
		if !o.Succeeded() {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", o.AgentID, o.OutputText)
	}
	return b.String()
}
