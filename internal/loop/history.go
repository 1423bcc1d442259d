package loop

import "loopctl/internal/quality"

// iterationRecord is one phase attempt's outcome, appended to history on
// every phase run (spec §4.15 step 5: "append to history").
type iterationRecord struct {
	Phase     quality.Phase
	Iteration int
	Passed    bool
	Score     float64
}

// iterationHistory tracks every phase attempt across a task's iterations
// so the loop can resume from the earliest phase that has ever failed,
// per spec §4.15 step 5's "loop back to the earliest failed phase".
type iterationHistory struct {
	records    []iterationRecord
	everFailed map[quality.Phase]bool
}

func newIterationHistory() *iterationHistory {
	return &iterationHistory{everFailed: make(map[quality.Phase]bool)}
}

func (h *iterationHistory) record(phase quality.Phase, iteration int, passed bool, score float64) {
	h.records = append(h.records, iterationRecord{Phase: phase, Iteration: iteration, Passed: passed, Score: score})
	if !passed {
		h.everFailed[phase] = true
	}
}

// averageScore returns the mean quality-gate score across every recorded
// attempt, for feeding the Confidence Monitor's quality signal.
func (h *iterationHistory) averageScore() float64 {
	if len(h.records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range h.records {
		sum += r.Score
	}
	return sum / float64(len(h.records))
}

// errorFraction returns the fraction of recorded attempts that failed
// their quality gate, for the Confidence Monitor's error-rate signal.
func (h *iterationHistory) errorFraction() float64 {
	if len(h.records) == 0 {
		return 0
	}
	failures := 0
	for _, r := range h.records {
		if !r.Passed {
			failures++
		}
	}
	return float64(failures) / float64(len(h.records))
}

// earliestFailedIndex returns the index into phases of the earliest
// phase that has ever failed a quality gate, defaulting to 0 (restart
// the whole sequence) if none is recorded yet.
func (h *iterationHistory) earliestFailedIndex(phases []quality.Phase) int {
	for i, p := range phases {
		if h.everFailed[p] {
			return i
		}
	}
	return 0
}
