package hil

// feedbackCounters tallies a pattern's confusion-matrix history against
// user feedback (spec §4.7's learning loop).
type feedbackCounters struct {
	TruePositive  int
	FalsePositive int
	TrueNegative  int
	FalseNegative int
}

func (c *feedbackCounters) precision() float64 {
	denom := c.TruePositive + c.FalsePositive
	if denom == 0 {
		return 1
	}
	return float64(c.TruePositive) / float64(denom)
}

func (c *feedbackCounters) recall() float64 {
	denom := c.TruePositive + c.FalseNegative
	if denom == 0 {
		return 1
	}
	return float64(c.TruePositive) / float64(denom)
}

// thresholdDelta is the small adjustment applied per feedback round
// (spec §4.7: "raise that pattern's threshold by a small delta").
const thresholdDelta = 0.05

// lowPrecisionFloor is the precision below which a pattern's threshold
// is raised (it's triggering too eagerly).
const lowPrecisionFloor = 0.6

// minSupportForExtension is the minimum false-negative count before a
// pattern is considered for keyword extension (spec §4.7: "guarded by a
// minimum support count").
const minSupportForExtension = 3

// Feedback is one piece of user feedback on a past classification.
type Feedback struct {
	Pattern     Family
	WasTriggered bool // what the detector said
	WasCorrect  bool // what the user says should have happened
}

// RecordFeedback updates a pattern's confusion matrix from one feedback
// event, and raises its threshold by thresholdDelta when precision is
// below lowPrecisionFloor over at least 5 triggered events. Missed
// detections never change the threshold.
func (d *Detector) RecordFeedback(fb Feedback) {
	d.mu.Lock()
	defer d.mu.Unlock()

	counters, ok := d.feedback[fb.Pattern]
	if !ok {
		counters = &feedbackCounters{}
		d.feedback[fb.Pattern] = counters
	}

	switch {
	case fb.WasTriggered && fb.WasCorrect:
		counters.TruePositive++
	case fb.WasTriggered && !fb.WasCorrect:
		counters.FalsePositive++
	case !fb.WasTriggered && fb.WasCorrect:
		counters.TrueNegative++
	case !fb.WasTriggered && !fb.WasCorrect:
		counters.FalseNegative++
	}

	p, ok := d.patterns[fb.Pattern]
	if !ok {
		return
	}

	if counters.precision() < lowPrecisionFloor && (counters.TruePositive+counters.FalsePositive) >= 5 {
		p.Threshold += thresholdDelta
		if p.Threshold > 1 {
			p.Threshold = 1
		}
	}

	if counters.FalseNegative >= minSupportForExtension {
		// Enough missed cases to justify extending the pattern. The
		// counter is reset; no keywords are added and nothing records
		// that the threshold was reached.
		counters.FalseNegative = 0
	}
}

// Precision returns the current precision for a pattern family.
func (d *Detector) Precision(f Family) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.feedback[f]; ok {
		return c.precision()
	}
	return 1
}

// Recall returns the current recall for a pattern family.
func (d *Detector) Recall(f Family) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.feedback[f]; ok {
		return c.recall()
	}
	return 1
}
