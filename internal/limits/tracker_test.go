package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freePlan() Plan {
	return Plan{FiveHour: 5, Daily: 50, Weekly: 250, SafePace: 10}
}

func TestTracker_RecordAndCheck_ComputesRatioAndSafety(t *testing.T) {
	tr := New(freePlan())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		tr.RecordMessage()
	}

	status := tr.Check(WindowFiveHour)
	require.Equal(t, 3, status.Count)
	require.Equal(t, 5, status.Ceiling)
	require.InDelta(t, 0.6, status.Ratio, 1e-9)
	require.Equal(t, SafetyWarning, status.Safety)
}

func TestTracker_SafetyTierThresholds(t *testing.T) {
	require.Equal(t, SafetyOK, safetyFor(0.2))
	require.Equal(t, SafetyWarning, safetyFor(0.5))
	require.Equal(t, SafetyCritical, safetyFor(0.75))
	require.Equal(t, SafetyEmergency, safetyFor(0.9))
}

func TestTracker_PruneDropsOldSamples(t *testing.T) {
	tr := New(freePlan())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := base
	tr.now = func() time.Time { return cur }

	tr.RecordMessage() // sample at t=0

	cur = base.Add(6 * time.Hour) // past the 5-hour window
	status := tr.Check(WindowFiveHour)
	require.Equal(t, 0, status.Count)

	dailyStatus := tr.Check(WindowDaily) // still within 24h
	require.Equal(t, 1, dailyStatus.Count)
}

func TestTracker_WorstSafetyAcrossWindows(t *testing.T) {
	tr := New(Plan{FiveHour: 1, Daily: 1000, Weekly: 10000, SafePace: 10})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	tr.RecordMessage() // fills the 5-hour window to 100%

	require.Equal(t, SafetyEmergency, tr.WorstSafety())
}
