// Package hil implements the Human-in-Loop Detector (HIL, spec §4.7):
// classifying whether a proposed action needs human review, and
// learning from feedback on its own calls.
package hil

import "regexp"

// Family names one of the built-in pattern families spec §4.7 lists.
type Family string

const (
	FamilyHighRiskOps     Family = "high-risk-ops"
	FamilyDesignDecision  Family = "design-decision"
	FamilyManualTest      Family = "manual-test"
	FamilyStrategicChoice Family = "strategic-choice"
	FamilyLegalCompliance Family = "legal-compliance"
	FamilyExternalImpact  Family = "external-impact"
	FamilyAmbiguity       Family = "ambiguity"
)

// Pattern scores one family: a keyword list, a set of compiled regexes,
// and a confidence threshold above which it triggers.
type Pattern struct {
	Family      Family
	Keywords    []string
	Regexes     []*regexp.Regexp
	Threshold   float64
	KeywordWt   float64
	RegexWt     float64
	ContextWt   float64
	Enabled     bool
}

// contextBoosters add to confidence whenever present, with or without a
// keyword/regex hit (spec §4.7: "contextual boosters"). Boosters alone
// contribute at most ContextWt, which is below every default threshold.
var contextBoosters = []string{"production", "customer", "irreversible", "permanent", "cannot be undone"}

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// DefaultPatterns returns the built-in pattern family set with the
// default weights and thresholds from spec §4.7.
func DefaultPatterns() []*Pattern {
	return []*Pattern{
		{
			Family:    FamilyHighRiskOps,
			Keywords:  []string{"drop table", "delete from", "rm -rf", "force push", "truncate", "deploy to production"},
			Regexes:   mustCompileAll(`(?i)\bdrop\s+(table|database)\b`, `(?i)\bgit\s+push\s+--force\b`),
			Threshold: 0.5,
			KeywordWt: 0.5, RegexWt: 0.4, ContextWt: 0.1,
			Enabled: true,
		},
		{
			Family:    FamilyDesignDecision,
			Keywords:  []string{"architecture", "which approach", "trade-off", "design decision", "should we use"},
			Threshold: 0.5,
			KeywordWt: 0.7, RegexWt: 0, ContextWt: 0.3,
			Enabled: true,
		},
		{
			Family:    FamilyManualTest,
			Keywords:  []string{"manual test", "verify visually", "check in browser", "please confirm"},
			Threshold: 0.5,
			KeywordWt: 0.8, RegexWt: 0, ContextWt: 0.2,
			Enabled: true,
		},
		{
			Family:    FamilyStrategicChoice,
			Keywords:  []string{"roadmap", "priorit", "business decision", "long-term", "strategy"},
			Threshold: 0.55,
			KeywordWt: 0.7, RegexWt: 0, ContextWt: 0.3,
			Enabled: true,
		},
		{
			Family:    FamilyLegalCompliance,
			Keywords:  []string{"gdpr", "hipaa", "pii", "compliance", "license", "legal review", "personal data"},
			Threshold: 0.45,
			KeywordWt: 0.8, RegexWt: 0, ContextWt: 0.2,
			Enabled: true,
		},
		{
			Family:    FamilyExternalImpact,
			Keywords:  []string{"customer-facing", "public api", "breaking change", "external users", "third-party"},
			Threshold: 0.5,
			KeywordWt: 0.7, RegexWt: 0, ContextWt: 0.3,
			Enabled: true,
		},
		{
			Family:    FamilyAmbiguity,
			Keywords:  []string{"not sure", "unclear", "could mean", "ambiguous", "not specified"},
			Threshold: 0.45,
			KeywordWt: 0.8, RegexWt: 0, ContextWt: 0.2,
			Enabled: true,
		},
	}
}
