package loop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/hil"
	"loopctl/internal/limits"
	"loopctl/internal/memory"
	"loopctl/internal/usage"
)

func TestWorseDecision(t *testing.T) {
	require.Equal(t, DecisionStop, worseDecision(DecisionContinue, DecisionStop))
	require.Equal(t, DecisionWrapUp, worseDecision(DecisionWrapUp, DecisionCheckpoint))
	require.Equal(t, DecisionContinue, worseDecision(DecisionContinue, DecisionContinue))
}

func TestLoop_CheckRateLimits(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a"})
	h.loop.limitsT = limits.New(limits.Plan{FiveHour: 10, Daily: 100, Weekly: 500, SafePace: 5})

	decision, _ := h.loop.checkRateLimits()
	require.Equal(t, DecisionContinue, decision)

	for i := 0; i < 9; i++ {
		h.loop.limitsT.RecordMessage()
	}
	decision, reason := h.loop.checkRateLimits()
	require.NotEqual(t, DecisionContinue, decision)
	require.NotEmpty(t, reason)
}

func TestLoop_CheckContextPressure(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", ContextTokenBudget: 1000})
	h.loop.lastContextTokens = 10
	decision, _ := h.loop.checkContextPressure()
	require.Equal(t, DecisionContinue, decision)

	h.loop.lastContextTokens = 1000
	decision, reason := h.loop.checkContextPressure()
	require.Equal(t, DecisionCheckpoint, decision)
	require.NotEmpty(t, reason)
}

func TestLoop_CheckRiskyAction(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a"})
	h.loop.hilD = hil.New()

	safe := &memory.Task{Title: "update docs", Description: "fix a typo in the README"}
	decision, _ := h.loop.checkRiskyAction(safe)
	require.Equal(t, DecisionContinue, decision)

	risky := &memory.Task{Title: "drop database in production", Description: "rm -rf the prod data directory and force push over main"}
	decision, reason := h.loop.checkRiskyAction(risky)
	require.Equal(t, DecisionWrapUp, decision)
	require.NotEmpty(t, reason)
}

func TestLoop_CheckBudget(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", BudgetThresholds: usage.BudgetThresholds{DailyUSD: 1, WarningRatio: 0.5, CriticalRatio: 0.9}})
	decision, _ := h.loop.checkBudget()
	require.Equal(t, DecisionContinue, decision)
}

func TestLoop_CheckSafety_ReturnsMostSevere(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", ContextTokenBudget: 100})
	h.loop.lastContextTokens = 100

	task := &memory.Task{Title: "safe task", Description: "nothing risky here"}
	decision, reason := h.loop.checkSafety(nil, task)
	require.Equal(t, DecisionCheckpoint, decision)
	require.NotEmpty(t, reason)
}
