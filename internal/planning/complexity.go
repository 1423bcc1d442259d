// Package planning implements the Competitive Planner (CP) and Plan
// Evaluator (PE) from spec §4.9: scoring a task's complexity, generating
// one or more candidate plans by strategy, and picking a winner.
package planning

import (
	"regexp"
	"strings"
)

// epicPatterns, complexPatterns and moderatePatterns are heuristic
// phrase-level signals for task complexity, graduated the same way the
// teacher's autopoiesis.ComplexityAnalyzer grades a request: epic-level
// phrasing outranks complex, which outranks moderate, each raising a
// floor on the final score rather than simply summing hits.
var (
	epicPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(full|complete|entire|whole)\s+(feature|system|module|service)\b`),
		regexp.MustCompile(`(?i)\bmigrate\s+(from|to)\b`),
		regexp.MustCompile(`(?i)\brewrite\s+(the\s+)?(entire|whole|complete)\b`),
		regexp.MustCompile(`(?i)\b(authentication|authorization|payment|billing|notification)\s+(system|service)\b`),
		regexp.MustCompile(`(?i)\b(api|database|frontend|backend)\s+(redesign|overhaul|rewrite)\b`),
	}

	complexPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(refactor|restructure)\s+(the\s+)?(entire|whole|all)\b`),
		regexp.MustCompile(`(?i)\b(database|schema)\s+(migration|change)\b`),
		regexp.MustCompile(`(?i)\bintegrate\s+with\b`),
		regexp.MustCompile(`(?i)\bcrud\s+(endpoint|api)\b`),
		regexp.MustCompile(`(?i)\bsplit\s+.+\s+into\s+(multiple|separate)\b`),
	}

	moderatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(update|change|modify)\s+(all|every|multiple)\s+files?\b`),
		regexp.MustCompile(`(?i)\badd\s+(a\s+)?(new\s+)?(component|handler|controller|service|repository)\b`),
		regexp.MustCompile(`(?i)\bextract\s+(method|function|class|interface)\b`),
	}

	// dependencyTags maps a task keyword to the risk/dependency tags it
	// implies (spec §4.9: "dependency tags inferred from task keywords").
	dependencyTags = map[string]string{
		"database": "data-related",
		"schema":   "data-related",
		"migrate":  "data-related",
		"api":      "api-dependency",
		"endpoint": "api-dependency",
		"grpc":     "api-dependency",
		"auth":     "security-sensitive",
		"payment":  "security-sensitive",
		"deploy":   "deployment-risk",
	}
)

// ComplexityResult is the ComplexityAnalyzer's output (spec §4.15 step 3).
type ComplexityResult struct {
	Score   float64  // 0-100
	Reasons []string
	Tags    []string
}

// ComplexityAnalyzer scores how involved a task description is.
type ComplexityAnalyzer struct{}

// NewComplexityAnalyzer builds a stateless analyzer.
func NewComplexityAnalyzer() *ComplexityAnalyzer { return &ComplexityAnalyzer{} }

// Analyze scores a task's title+description against the heuristic
// pattern tiers and keyword dependency tags.
func (a *ComplexityAnalyzer) Analyze(title, description string) ComplexityResult {
	text := strings.ToLower(title + " " + description)
	result := ComplexityResult{Score: 10}

	for _, p := range epicPatterns {
		if p.MatchString(text) {
			result.Score = maxf(result.Score, 90)
			result.Reasons = append(result.Reasons, "matches epic-level phrasing")
			break
		}
	}
	if result.Score < 70 {
		for _, p := range complexPatterns {
			if p.MatchString(text) {
				result.Score = maxf(result.Score, 70)
				result.Reasons = append(result.Reasons, "matches multi-phase phrasing")
				break
			}
		}
	}
	if result.Score < 45 {
		for _, p := range moderatePatterns {
			if p.MatchString(text) {
				result.Score = maxf(result.Score, 45)
				result.Reasons = append(result.Reasons, "matches multi-file phrasing")
				break
			}
		}
	}

	seen := make(map[string]bool)
	for kw, tag := range dependencyTags {
		if strings.Contains(text, kw) && !seen[tag] {
			seen[tag] = true
			result.Tags = append(result.Tags, tag)
		}
	}

	if result.Score > 100 {
		result.Score = 100
	}
	return result
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
