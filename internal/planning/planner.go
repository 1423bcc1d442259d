package planning

import (
	"time"

	"loopctl/internal/ids"
)

// Strategy is one of the plan-generation postures spec §4.9 names.
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyBalanced      Strategy = "balanced"
	StrategyAggressive    Strategy = "aggressive"
)

// Step is one ordered, phase-tagged unit of work within a plan.
type Step struct {
	Order       int
	Phase       string
	Description string
}

// Severity grades a Risk.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
)

// Risk is one identified hazard with its mitigation.
type Risk struct {
	Description string
	Severity    Severity
	Mitigation  string
}

// Estimate is a plan's effort projection.
type Estimate struct {
	Hours      float64
	Confidence float64 // 0-1
}

// Plan is one candidate approach to a task (spec §4.9).
type Plan struct {
	ID             string
	TaskID         string
	Strategy       Strategy
	Steps          []Step
	Risks          []Risk
	Estimate       Estimate
	DependencyTags []string
	CreatedAt      time.Time
}

// phaseOrder is the default phase sequence the CLO drives a task through
// (spec §4.15 step 4); the planner tags each generated step with one.
var phaseOrder = []string{"research", "design", "implement", "test", "validate"}

// StrategiesFor returns the strategy set to generate for a given
// complexity score, per spec §4.9's three-tier table.
func StrategiesFor(score float64) []Strategy {
	switch {
	case score >= 70:
		return []Strategy{StrategyConservative, StrategyBalanced, StrategyAggressive}
	case score >= 40:
		return []Strategy{StrategyConservative, StrategyBalanced}
	default:
		return []Strategy{StrategyBalanced}
	}
}

// Planner generates candidate plans for a task under one or more
// strategies.
type Planner struct{}

// NewPlanner builds a stateless Planner.
func NewPlanner() *Planner { return &Planner{} }

// Generate builds one Plan per requested strategy.
func (p *Planner) Generate(taskID string, complexity ComplexityResult, strategies []Strategy) []*Plan {
	plans := make([]*Plan, 0, len(strategies))
	for _, s := range strategies {
		plans = append(plans, p.generateOne(taskID, complexity, s))
	}
	return plans
}

func (p *Planner) generateOne(taskID string, complexity ComplexityResult, strategy Strategy) *Plan {
	baseHoursPerPhase := complexity.Score / 100 * 4
	var hoursMult, confidence float64
	var extraRisk bool

	switch strategy {
	case StrategyConservative:
		hoursMult, confidence = 1.4, 0.85
	case StrategyAggressive:
		hoursMult, confidence = 0.6, 0.55
		extraRisk = true
	default: // balanced
		hoursMult, confidence = 1.0, 0.7
	}

	steps := make([]Step, 0, len(phaseOrder))
	for i, phase := range phaseOrder {
		steps = append(steps, Step{
			Order:       i + 1,
			Phase:       phase,
			Description: strategy.stepDescription(phase),
		})
	}

	risks := make([]Risk, 0, len(complexity.Tags)+1)
	for _, tag := range complexity.Tags {
		risks = append(risks, riskForTag(tag, strategy))
	}
	if extraRisk {
		risks = append(risks, Risk{
			Description: "aggressive pacing skips redundant verification",
			Severity:    SeverityMedium,
			Mitigation:  "rely on quality gates to catch regressions post-hoc",
		})
	}
	if len(risks) == 0 {
		risks = append(risks, Risk{
			Description: "no elevated risk signals detected",
			Severity:    SeverityLow,
			Mitigation:  "standard quality gates apply",
		})
	}

	return &Plan{
		ID:       ids.New("plan"),
		TaskID:   taskID,
		Strategy: strategy,
		Steps:    steps,
		Risks:    risks,
		Estimate: Estimate{
			Hours:      round1(baseHoursPerPhase * float64(len(phaseOrder)) * hoursMult),
			Confidence: confidence,
		},
		DependencyTags: complexity.Tags,
		CreatedAt:      time.Now(),
	}
}

func (s Strategy) stepDescription(phase string) string {
	switch s {
	case StrategyConservative:
		return "thoroughly " + phase + " with extra review checkpoints"
	case StrategyAggressive:
		return "fast-path " + phase + ", deferring polish"
	default:
		return phase + " the task's scope"
	}
}

func riskForTag(tag string, strategy Strategy) Risk {
	severity := SeverityMedium
	if strategy == StrategyAggressive {
		severity = SeverityHigh
	} else if strategy == StrategyConservative {
		severity = SeverityLow
	}
	switch tag {
	case "data-related":
		return Risk{Description: "schema or data migration may be lossy", Severity: severity, Mitigation: "dry-run against a copy before applying"}
	case "api-dependency":
		return Risk{Description: "contract change may break existing callers", Severity: severity, Mitigation: "version the endpoint or add a compatibility shim"}
	case "security-sensitive":
		return Risk{Description: "touches auth/payment surface", Severity: SeverityHigh, Mitigation: "route through legal-compliance HIL review"}
	case "deployment-risk":
		return Risk{Description: "requires a production rollout", Severity: severity, Mitigation: "stage behind a flag and roll out gradually"}
	default:
		return Risk{Description: "unclassified dependency: " + tag, Severity: severity, Mitigation: "flag for manual review"}
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
