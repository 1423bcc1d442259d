package confidence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor_AllPerfectSignalsYieldHealthyStatus(t *testing.T) {
	m := New(DefaultWeights())
	result := m.Evaluate(Signals{Quality: 100, Velocity: 100, Iteration: 100, ErrorRate: 100, Historical: 100})
	require.Equal(t, 100.0, result.Score)
	require.Equal(t, StatusHealthy, result.Status)
}

func TestMonitor_AllZeroSignalsYieldCriticalStatus(t *testing.T) {
	m := New(DefaultWeights())
	result := m.Evaluate(Signals{})
	require.Equal(t, 0.0, result.Score)
	require.Equal(t, StatusCritical, result.Status)
}

func TestMonitor_MidRangeYieldsWarning(t *testing.T) {
	m := New(DefaultWeights())
	result := m.Evaluate(Signals{Quality: 50, Velocity: 50, Iteration: 50, ErrorRate: 50, Historical: 50})
	require.Equal(t, 50.0, result.Score)
	require.Equal(t, StatusWarning, result.Status)
}

func TestMonitor_ClampsOutOfRangeSignals(t *testing.T) {
	m := New(DefaultWeights())
	result := m.Evaluate(Signals{Quality: 150, Velocity: -20, Iteration: 100, ErrorRate: 100, Historical: 100})
	require.LessOrEqual(t, result.Score, 100.0)
}

func TestNormalizeVelocity_AtOrAboveMedianScoresFull(t *testing.T) {
	require.Equal(t, 100.0, NormalizeVelocity(5, 4))
	require.Equal(t, 100.0, NormalizeVelocity(4, 4))
	require.Equal(t, 50.0, NormalizeVelocity(2, 4))
}

func TestNormalizeIteration_InvertsAgainstCeiling(t *testing.T) {
	require.Equal(t, 100.0, NormalizeIteration(1, 10))
	require.Equal(t, 0.0, NormalizeIteration(10, 10))
	require.InDelta(t, 55.56, NormalizeIteration(5, 10), 0.1)
}

func TestNormalizeErrorRate_InvertsFraction(t *testing.T) {
	require.Equal(t, 100.0, NormalizeErrorRate(0))
	require.Equal(t, 0.0, NormalizeErrorRate(1))
	require.Equal(t, 75.0, NormalizeErrorRate(0.25))
}
