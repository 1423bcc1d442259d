package loop

import (
	"context"
	"fmt"

	"loopctl/internal/memory"
	"loopctl/internal/orchestrator"
	"loopctl/internal/planning"
	"loopctl/internal/quality"
	"loopctl/internal/retrieval"
)

// phaseSequence is the fixed five-phase order spec §4.15 step 4 names.
func phaseSequence() []quality.Phase {
	return []quality.Phase{
		quality.PhaseResearch,
		quality.PhaseDesign,
		quality.PhaseImplement,
		quality.PhaseTest,
		quality.PhaseValidate,
	}
}

// defaultPatternFor returns spec §4.15 step 4's documented default
// pattern per phase: research/implement/test -> parallel, design ->
// debate, validate -> review.
func defaultPatternFor(phase quality.Phase) memory.Pattern {
	switch phase {
	case quality.PhaseDesign:
		return memory.PatternDebate
	case quality.PhaseValidate:
		return memory.PatternReview
	default:
		return memory.PatternParallel
	}
}

// phaseResult is one phase's agent-orchestrator outcome plus what the
// loop needs from it to drive quality gating and observation recording.
type phaseResult struct {
	ResultText string
	OrchResult orchestrator.Result
}

// roster resolves which agent ids participate in phase, consulting
// cfg.Roster and falling back to a single generalist agent so a loop
// wired without an explicit roster still runs end to end.
func (l *Loop) roster(phase quality.Phase) []string {
	if ids, ok := l.cfg.Roster[phase]; ok && len(ids) > 0 {
		return ids
	}
	return []string{"generalist"}
}

// pattern resolves which of the five AO patterns drives phase.
func (l *Loop) pattern(phase quality.Phase) memory.Pattern {
	if p, ok := l.cfg.PhasePatterns[phase]; ok && p != "" {
		return p
	}
	return defaultPatternFor(phase)
}

// runPhase loads context for the phase (CR), runs it through the Agent
// Orchestrator with the configured pattern and roster, and records an
// observation of the outcome (spec §4.15 step 4).
func (l *Loop) runPhase(ctx context.Context, task *memory.Task, phase quality.Phase, plans []*planning.Plan) (phaseResult, error) {
	agentIDs := l.roster(phase)
	pattern := l.pattern(phase)

	instructions := task.Title
	if plan := phaseGuidance(plans, phase); plan != "" {
		instructions = task.Title + "\n\n" + task.Description + "\n\nPlan guidance:\n" + plan
	} else if task.Description != "" {
		instructions = task.Title + "\n\n" + task.Description
	}

	if l.retriever != nil {
		retrieved, err := l.retriever.Retrieve(ctx, retrieval.Request{
			Query:           instructions,
			TaskFingerprint: task.ID + ":" + string(phase),
			AgentIDs:        agentIDs,
			Pattern:         pattern,
		})
		if err != nil {
			l.logger.Warn("task %s phase %s: context retrieval failed: %v", task.ID, phase, err)
		} else {
			l.lastContextTokens = retrieved.TokenCount
		}
	}

	opts := orchestrator.Options{}
	result, err := l.orch.Execute(ctx, pattern, task, agentIDs, opts)
	if err != nil {
		return phaseResult{}, fmt.Errorf("orchestrator execute: %w", err)
	}

	if l.mem != nil {
		obs := &memory.Observation{
			OrchestrationID: result.OrchestrationID,
			Type:            memory.ObsPatternUsage,
			Content:         fmt.Sprintf("phase=%s pattern=%s success=%v", phase, pattern, result.Success),
			Importance:      5,
		}
		if err := l.mem.RecordObservation(obs); err != nil {
			l.logger.Warn("task %s phase %s: record observation failed: %v", task.ID, phase, err)
		}
	}

	if l.usageT != nil {
		l.usageT.Track(usageEventFor(task, phase, pattern, result))
	}

	return phaseResult{ResultText: result.ResultText, OrchResult: result}, nil
}

func phaseGuidance(plans []*planning.Plan, phase quality.Phase) string {
	plan := balancedPlan(plans)
	if plan == nil {
		return ""
	}
	for _, step := range plan.Steps {
		if step.Phase == string(phase) {
			return step.Description
		}
	}
	return ""
}
