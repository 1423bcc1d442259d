// Package quality implements the Quality Gates (QG, spec §4.10):
// per-phase scoring on fixed sub-metrics, checked against a configurable
// pass threshold.
package quality

import (
	"regexp"
	"strings"
)

// Phase names one of the CLO's fixed phases (spec §4.15 step 4).
type Phase string

const (
	PhaseResearch   Phase = "research"
	PhaseDesign     Phase = "design"
	PhaseImplement  Phase = "implement"
	PhaseTest       Phase = "test"
	PhaseValidate   Phase = "validate"
)

// Violation names one kind of corner-cutting a gate looks for in phase
// output, the same taxonomy the teacher's verification package flags
// before allowing a shard's result to count as done.
type Violation string

const (
	ViolationMockCode      Violation = "mock_code"
	ViolationPlaceholder   Violation = "placeholder"
	ViolationIncomplete    Violation = "incomplete"
	ViolationEmptyFunction Violation = "empty_function"
	ViolationHardcoded     Violation = "hardcoded"
)

var violationPatterns = map[Violation]*regexp.Regexp{
	ViolationMockCode:      regexp.MustCompile(`(?i)\bmock\s+implementation\b|\bfunc\s+Mock\w*\(`),
	ViolationPlaceholder:   regexp.MustCompile(`(?i)\bTODO\b|\bFIXME\b|\bplaceholder\b|\bstub\b`),
	ViolationIncomplete:    regexp.MustCompile(`(?i)panic\(\s*"not implemented"\s*\)|\bnot yet implemented\b`),
	ViolationEmptyFunction: regexp.MustCompile(`func\s+\w+\([^)]*\)(\s+\w+)?\s*\{\s*\}`),
	ViolationHardcoded:     regexp.MustCompile(`(?i)\bhardcoded\b|\bmagic\s+(string|number)\b`),
}

// subMetrics lists each phase's fixed sub-metric names (spec §4.10:
// "per-phase scoring on fixed sub-metrics").
var subMetrics = map[Phase][]string{
	PhaseResearch:  {"completeness", "source_quality", "relevance"},
	PhaseDesign:    {"clarity", "feasibility", "consistency"},
	PhaseImplement: {"correctness", "coverage_intent", "no_placeholders"},
	PhaseTest:      {"coverage", "assertion_quality", "edge_cases"},
	PhaseValidate:  {"criteria_met", "regression_risk", "documentation"},
}

// defaultThresholds are spec §4.10's approximate defaults.
var defaultThresholds = map[Phase]float64{
	PhaseResearch:  75,
	PhaseDesign:    80,
	PhaseImplement: 85,
	PhaseTest:      90,
	PhaseValidate:  90,
}

// perViolationPenalty is subtracted from every sub-metric once per
// detected violation kind, regardless of phase — a corner cut anywhere
// in the output is a quality concern for the whole phase, not just the
// sub-metric it happens to resemble.
const perViolationPenalty = 15.0

// Result is one gate evaluation's outcome.
type Result struct {
	Phase      Phase
	Score      float64
	SubScores  map[string]float64
	Violations []Violation
	Pass       bool
	Threshold  float64
}

// Gates holds the configurable per-phase pass thresholds.
type Gates struct {
	thresholds map[Phase]float64
}

// New builds Gates seeded with spec §4.10's default thresholds.
func New() *Gates {
	thresholds := make(map[Phase]float64, len(defaultThresholds))
	for k, v := range defaultThresholds {
		thresholds[k] = v
	}
	return &Gates{thresholds: thresholds}
}

// SetThreshold overrides one phase's pass threshold.
func (g *Gates) SetThreshold(phase Phase, threshold float64) {
	g.thresholds[phase] = threshold
}

// Threshold returns the currently configured threshold for a phase.
func (g *Gates) Threshold(phase Phase) float64 {
	return g.thresholds[phase]
}

// Evaluate scores a phase's orchestration output against its sub-metrics
// and the configured threshold.
func (g *Gates) Evaluate(phase Phase, output string) Result {
	names := subMetrics[phase]
	if names == nil {
		names = []string{"overall"}
	}

	var violations []Violation
	for v, re := range violationPatterns {
		if re.MatchString(output) {
			violations = append(violations, v)
		}
	}

	penalty := float64(len(violations)) * perViolationPenalty
	subScores := make(map[string]float64, len(names))
	var total float64
	for _, name := range names {
		s := clamp(100 - penalty)
		subScores[name] = s
		total += s
	}
	score := total / float64(len(names))

	threshold := g.thresholds[phase]
	return Result{
		Phase:      phase,
		Score:      score,
		SubScores:  subScores,
		Violations: violations,
		Pass:       score >= threshold,
		Threshold:  threshold,
	}
}

// Summary renders a one-line human-readable gate outcome, e.g. for
// dashboard or log consumption.
func (r Result) Summary() string {
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	var reasons []string
	for _, v := range r.Violations {
		reasons = append(reasons, string(v))
	}
	if len(reasons) == 0 {
		return string(r.Phase) + " " + status
	}
	return string(r.Phase) + " " + status + " (" + strings.Join(reasons, ", ") + ")"
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
