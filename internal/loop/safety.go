package loop

import (
	"context"
	"fmt"
	"time"

	"loopctl/internal/limits"
	"loopctl/internal/memory"
	"loopctl/internal/usage"
)

// Decision is one safety check's verdict (spec §4.15 step 6).
type Decision string

const (
	DecisionContinue   Decision = "continue"
	DecisionCheckpoint Decision = "checkpoint"
	DecisionWrapUp     Decision = "wrap-up"
	DecisionStop       Decision = "stop"
)

// decisionSeverity orders decisions so the worst one found across every
// signal wins (stop > wrap-up > checkpoint > continue).
var decisionSeverity = map[Decision]int{
	DecisionContinue:   0,
	DecisionCheckpoint: 1,
	DecisionWrapUp:     2,
	DecisionStop:       3,
}

func worseDecision(a, b Decision) Decision {
	if decisionSeverity[b] > decisionSeverity[a] {
		return b
	}
	return a
}

// checkSafety queries U, L, CR, CO, and HIL and returns the most severe
// decision any one of them raises, plus a human-readable reason (spec
// §4.15 step 6).
func (l *Loop) checkSafety(ctx context.Context, task *memory.Task) (Decision, string) {
	decision := DecisionContinue
	reason := ""

	consider := func(d Decision, r string) {
		if worseDecision(decision, d) != decision {
			decision, reason = d, r
		}
	}

	consider(l.checkBudget())
	consider(l.checkRateLimits())
	consider(l.checkContextPressure())
	consider(l.checkRiskyAction(task))

	return decision, reason
}

// checkBudget asks U whether spend against the daily ceiling has crossed
// a severity threshold; the monthly budget is not checked here (spec §4.4/§4.15: "query U (budget)").
func (l *Loop) checkBudget() (Decision, string) {
	if l.usageT == nil {
		return DecisionContinue, ""
	}
	now := time.Now()
	stats := l.usageT.Stats()
	dailyStart, dailyEnd := usage.DailyWindow(now)
	status := usage.CheckBudget(l.cfg.BudgetThresholds.DailyUSD, stats.TotalProject.CostUSD, dailyStart, now, dailyEnd, l.cfg.BudgetThresholds)

	switch status.Severity {
	case usage.SeverityCritical:
		if status.Exceeded {
			return DecisionStop, fmt.Sprintf("daily budget exceeded (%.0f%% of $%.2f)", status.Percent*100, status.LimitUSD)
		}
		return DecisionWrapUp, fmt.Sprintf("daily budget critical (%.0f%%)", status.Percent*100)
	case usage.SeverityWarning:
		return DecisionCheckpoint, fmt.Sprintf("daily budget warning (%.0f%%)", status.Percent*100)
	default:
		return DecisionContinue, ""
	}
}

// checkRateLimits asks L for the worst message-rate safety tier across
// its three rolling windows (spec §4.5/§4.15: "query L (rate windows)").
func (l *Loop) checkRateLimits() (Decision, string) {
	if l.limitsT == nil {
		return DecisionContinue, ""
	}
	switch l.limitsT.WorstSafety() {
	case limits.SafetyEmergency:
		return DecisionStop, "message rate at emergency tier"
	case limits.SafetyCritical:
		return DecisionWrapUp, "message rate at critical tier"
	case limits.SafetyWarning:
		return DecisionCheckpoint, "message rate at warning tier"
	default:
		return DecisionContinue, ""
	}
}

// checkContextPressure computes context-percent-used from the last
// retrieval against the configured token budget and consults CO for the
// threshold at which a checkpoint should be suggested (spec §4.6/§4.15:
// "query CR (context percent used) ... CO (should-checkpoint)").
func (l *Loop) checkContextPressure() (Decision, string) {
	if l.checkpointO == nil || l.cfg.ContextTokenBudget <= 0 {
		return DecisionContinue, ""
	}
	percent := float64(l.lastContextTokens) / float64(l.cfg.ContextTokenBudget) * 100
	threshold := l.checkpointO.Threshold()
	if percent >= threshold {
		return DecisionCheckpoint, fmt.Sprintf("context at %.0f%% (checkpoint threshold %.0f%%)", percent, threshold)
	}
	return DecisionContinue, ""
}

// checkRiskyAction asks HIL whether the task itself reads as a
// high-risk operation that warrants human review before continuing
// (spec §4.7/§4.15: "query HIL (risky action?)").
func (l *Loop) checkRiskyAction(task *memory.Task) (Decision, string) {
	if l.hilD == nil || task == nil {
		return DecisionContinue, ""
	}
	result := l.hilD.Classify(task.Title + " " + task.Description)
	if result.Triggered {
		return DecisionWrapUp, fmt.Sprintf("human-in-loop pattern %s triggered (confidence %.2f)", result.Pattern, result.Confidence)
	}
	return DecisionContinue, ""
}
