package planning

import "sort"

// Publisher is the subset of the Message Bus the evaluator needs; kept as
// a narrow interface here so this package doesn't import internal/bus
// (spec §4.9: "emit events plan:evaluated, plans:compared, plans:tie").
type Publisher interface {
	Publish(topic string, payload any)
}

// noopPublisher discards events for callers that don't care (tests, or
// standalone evaluation outside a loop run).
type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}

// Criteria are PE's five weighted scoring dimensions, each 0-100.
type Criteria struct {
	Completeness float64
	Feasibility  float64
	Risk         float64
	Clarity      float64
	Efficiency   float64
}

// weights are spec §4.9's fixed criteria weights.
const (
	weightCompleteness = 0.25
	weightFeasibility  = 0.25
	weightRisk         = 0.20
	weightClarity      = 0.15
	weightEfficiency   = 0.15
)

// Total blends the five sub-scores into the 0-100 overall score.
func (c Criteria) Total() float64 {
	return c.Completeness*weightCompleteness +
		c.Feasibility*weightFeasibility +
		c.Risk*weightRisk +
		c.Clarity*weightClarity +
		c.Efficiency*weightEfficiency
}

// Evaluation is one plan's scoring outcome.
type Evaluation struct {
	Plan     *Plan
	Criteria Criteria
	Score    float64
}

// Result is the outcome of evaluating a full candidate set.
type Result struct {
	Evaluations []*Evaluation
	Winner      *Plan
	NeedsReview bool
	TieReason   string
}

// Evaluator scores and ranks candidate plans (spec §4.9's PE).
type Evaluator struct {
	tieThreshold float64
	publisher    Publisher
}

// NewEvaluator builds an Evaluator. Pass nil for publisher to discard
// events.
func NewEvaluator(tieThreshold float64, publisher Publisher) *Evaluator {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Evaluator{tieThreshold: tieThreshold, publisher: publisher}
}

// Evaluate scores every plan, ranks them, and flags a tie when the top
// two scores are within the tie threshold.
func (e *Evaluator) Evaluate(plans []*Plan) Result {
	evaluations := make([]*Evaluation, 0, len(plans))
	for _, p := range plans {
		c := score(p)
		eval := &Evaluation{Plan: p, Criteria: c, Score: c.Total()}
		evaluations = append(evaluations, eval)
		e.publisher.Publish("plan:evaluated", eval)
	}

	sort.Slice(evaluations, func(i, j int) bool { return evaluations[i].Score > evaluations[j].Score })
	e.publisher.Publish("plans:compared", evaluations)

	result := Result{Evaluations: evaluations}
	if len(evaluations) == 0 {
		return result
	}
	result.Winner = evaluations[0].Plan

	if len(evaluations) >= 2 {
		margin := evaluations[0].Score - evaluations[1].Score
		if margin < e.tieThreshold {
			result.NeedsReview = true
			result.TieReason = "top two plans within tie threshold"
			e.publisher.Publish("plans:tie", result)
		}
	}
	return result
}

func score(p *Plan) Criteria {
	c := Criteria{
		Completeness: clamp(100 * float64(len(p.Steps)) / float64(len(phaseOrder))),
		Feasibility:  clamp(p.Estimate.Confidence * 100),
		Risk:         clamp(100 - averageRiskWeight(p.Risks)),
		Clarity:      clarityFor(p.Strategy),
		Efficiency:   clamp(100 - p.Estimate.Hours*3),
	}
	return c
}

func averageRiskWeight(risks []Risk) float64 {
	if len(risks) == 0 {
		return 0
	}
	var total float64
	for _, r := range risks {
		switch r.Severity {
		case SeverityLow:
			total += 10
		case SeverityMedium:
			total += 40
		case SeverityHigh:
			total += 75
		}
	}
	return total / float64(len(risks))
}

func clarityFor(s Strategy) float64 {
	switch s {
	case StrategyConservative:
		return 90
	case StrategyAggressive:
		return 60
	default:
		return 80
	}
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
