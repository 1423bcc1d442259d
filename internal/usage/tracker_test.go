package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loopctl/internal/memory"
)

func TestPricingTable_CostAndCacheSavings(t *testing.T) {
	pt := NewPricingTable()
	cost := pt.Cost("claude-sonnet-4", 1000, 1000, 0, 0)
	require.InDelta(t, 0.018, cost, 1e-9) // 0.003 + 0.015 per 1K

	savings := pt.CacheSavings("claude-sonnet-4", 1000)
	require.Greater(t, savings, 0.0)
}

func TestPricingTable_UnknownModelFallsBackToWildcard(t *testing.T) {
	pt := NewPricingTable()
	known := pt.Price("claude-sonnet-4")
	unknown := pt.Price("some-future-model")
	require.NotEqual(t, known, unknown)
	require.Equal(t, pt.Price("*"), unknown)
}

func TestTracker_TrackAggregatesByDimension(t *testing.T) {
	mem, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	tr, err := NewTracker(t.TempDir(), mem, NewPricingTable())
	require.NoError(t, err)

	tr.Track(Event{
		OrchestrationID: "orch-1", AgentID: "agent-a", Model: "claude-sonnet-4",
		Pattern: memory.PatternParallel, SessionID: "sess-1",
		Usage: memory.TokenUsage{Input: 100, Output: 50},
	})
	tr.Track(Event{
		OrchestrationID: "orch-1", AgentID: "agent-a", Model: "claude-sonnet-4",
		Pattern: memory.PatternParallel, SessionID: "sess-1",
		Usage: memory.TokenUsage{Input: 20, Output: 10},
	})

	stats := tr.Stats()
	require.EqualValues(t, 120, stats.TotalProject.Input)
	require.EqualValues(t, 60, stats.TotalProject.Output)
	require.EqualValues(t, 180, stats.TotalProject.Total)
	require.EqualValues(t, 180, stats.ByAgent["agent-a"].Total)
	require.EqualValues(t, 180, stats.ByModel["claude-sonnet-4"].Total)
}

func TestTracker_Summary_FiltersByModel(t *testing.T) {
	mem, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	tr, err := NewTracker(t.TempDir(), mem, NewPricingTable())
	require.NoError(t, err)

	tr.Track(Event{OrchestrationID: "o1", Model: "claude-sonnet-4", Usage: memory.TokenUsage{Input: 100}})
	tr.Track(Event{OrchestrationID: "o2", Model: "gpt-4o", Usage: memory.TokenUsage{Input: 200}})

	since := memory.Now().Add(-time.Hour)
	sonnetOnly, err := tr.Summary(since, Filters{Model: "claude-sonnet-4"})
	require.NoError(t, err)
	require.EqualValues(t, 100, sonnetOnly.Input)

	all, err := tr.Summary(since, Filters{})
	require.NoError(t, err)
	require.EqualValues(t, 300, all.Input)
}

func TestCheckBudget_SeverityTiers(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	start, end := DailyWindow(now)
	thresholds := BudgetThresholds{DailyUSD: 50, WarningRatio: 0.80, CriticalRatio: 0.95}

	ok := CheckBudget(50, 10, start, now, end, thresholds)
	require.Equal(t, SeverityOK, ok.Severity)
	require.False(t, ok.Exceeded)

	warning := CheckBudget(50, 42, start, now, end, thresholds)
	require.Equal(t, SeverityWarning, warning.Severity)

	critical := CheckBudget(50, 48, start, now, end, thresholds)
	require.Equal(t, SeverityCritical, critical.Severity)

	exceeded := CheckBudget(50, 55, start, now, end, thresholds)
	require.True(t, exceeded.Exceeded)
}
