package loop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/quality"
)

func TestIterationHistory_RecordTracksEverFailed(t *testing.T) {
	h := newIterationHistory()
	h.record(quality.PhaseResearch, 1, true, 90)
	h.record(quality.PhaseDesign, 1, false, 50)

	require.False(t, h.everFailed[quality.PhaseResearch])
	require.True(t, h.everFailed[quality.PhaseDesign])
}

func TestIterationHistory_EarliestFailedIndexDefaultsToZero(t *testing.T) {
	h := newIterationHistory()
	phases := phaseSequence()
	require.Equal(t, 0, h.earliestFailedIndex(phases))

	h.record(quality.PhaseImplement, 1, false, 60)
	require.Equal(t, 2, h.earliestFailedIndex(phases))

	h.record(quality.PhaseResearch, 2, false, 60)
	require.Equal(t, 0, h.earliestFailedIndex(phases), "research failed later but sorts first in phase order")
}

func TestIterationHistory_AverageScoreAndErrorFraction(t *testing.T) {
	h := newIterationHistory()
	require.Equal(t, 0.0, h.averageScore())
	require.Equal(t, 0.0, h.errorFraction())

	h.record(quality.PhaseResearch, 1, true, 100)
	h.record(quality.PhaseDesign, 1, false, 50)

	require.Equal(t, 75.0, h.averageScore())
	require.Equal(t, 0.5, h.errorFraction())
}
