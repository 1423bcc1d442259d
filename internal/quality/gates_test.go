package quality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGates_CleanOutputPassesDefaultThreshold(t *testing.T) {
	g := New()
	result := g.Evaluate(PhaseImplement, "added input validation and a retry loop with exponential backoff")
	require.Equal(t, 100.0, result.Score)
	require.True(t, result.Pass)
	require.Empty(t, result.Violations)
}

func TestGates_PlaceholderTextFailsThreshold(t *testing.T) {
	g := New()
	result := g.Evaluate(PhaseTest, "// TODO: implement this properly later")
	require.Contains(t, result.Violations, ViolationPlaceholder)
	require.Less(t, result.Score, g.Threshold(PhaseTest))
	require.False(t, result.Pass)
}

func TestGates_MultipleViolationsCompoundPenalty(t *testing.T) {
	g := New()
	result := g.Evaluate(PhaseTest, `panic("not implemented") // TODO fix`)
	require.GreaterOrEqual(t, len(result.Violations), 2)
	require.Less(t, result.Score, 100.0-15.0)
}

func TestGates_SubScoresCoverAllPhaseMetrics(t *testing.T) {
	g := New()
	result := g.Evaluate(PhaseResearch, "surveyed three approaches and cited sources")
	require.Len(t, result.SubScores, 3)
	require.Contains(t, result.SubScores, "completeness")
	require.Contains(t, result.SubScores, "source_quality")
	require.Contains(t, result.SubScores, "relevance")
}

func TestGates_SetThresholdOverridesDefault(t *testing.T) {
	g := New()
	g.SetThreshold(PhaseDesign, 50)
	require.Equal(t, 50.0, g.Threshold(PhaseDesign))
}

func TestResult_SummaryIncludesViolationNames(t *testing.T) {
	g := New()
	result := g.Evaluate(PhaseImplement, "stub function, not yet implemented")
	summary := result.Summary()
	require.Contains(t, summary, "FAIL")
	require.Contains(t, summary, "placeholder")
}
