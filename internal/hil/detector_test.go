package hil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_HighRiskOps_Triggers(t *testing.T) {
	d := New()
	result := d.Classify("Please run DROP TABLE users on the production database")
	require.True(t, result.Triggered)
	require.Equal(t, FamilyHighRiskOps, result.Pattern)
	require.NotEmpty(t, result.HighlightedTerms)
}

func TestClassify_BenignText_DoesNotTrigger(t *testing.T) {
	d := New()
	result := d.Classify("Refactored the helper function to reduce duplication")
	require.False(t, result.Triggered)
}

func TestClassify_Ambiguity_Triggers(t *testing.T) {
	d := New()
	result := d.Classify("I'm not sure what you mean, this requirement is ambiguous and unclear")
	require.True(t, result.Triggered)
	require.Equal(t, FamilyAmbiguity, result.Pattern)
}

func TestSetEnabled_DisablesPattern(t *testing.T) {
	d := New()
	d.SetEnabled(FamilyHighRiskOps, false)
	result := d.Classify("drop table users")
	require.NotEqual(t, FamilyHighRiskOps, result.Pattern)
}

func TestRecordFeedback_LowPrecisionRaisesThreshold(t *testing.T) {
	d := New()
	before, _ := d.Pattern(FamilyManualTest)
	originalThreshold := before.Threshold

	for i := 0; i < 6; i++ {
		d.RecordFeedback(Feedback{Pattern: FamilyManualTest, WasTriggered: true, WasCorrect: false})
	}

	after, _ := d.Pattern(FamilyManualTest)
	require.Greater(t, after.Threshold, originalThreshold)
	require.Less(t, d.Precision(FamilyManualTest), lowPrecisionFloor)
}

func TestRecordFeedback_PrecisionAndRecallComputed(t *testing.T) {
	d := New()
	d.RecordFeedback(Feedback{Pattern: FamilyDesignDecision, WasTriggered: true, WasCorrect: true})
	d.RecordFeedback(Feedback{Pattern: FamilyDesignDecision, WasTriggered: true, WasCorrect: true})
	d.RecordFeedback(Feedback{Pattern: FamilyDesignDecision, WasTriggered: false, WasCorrect: false})

	require.Equal(t, 1.0, d.Precision(FamilyDesignDecision))
	require.InDelta(t, 2.0/3.0, d.Recall(FamilyDesignDecision), 1e-9)
}
