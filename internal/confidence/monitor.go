// Package confidence implements the Confidence Monitor (CM, spec §4.11):
// a single blended score from five normalized signals, with a status
// tier for dashboard and safety-check consumption.
package confidence

// Status tiers the overall confidence score for at-a-glance reporting.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// statusThresholds: >=70 healthy, >=40 warning, else critical. Spec §4.11
// leaves the exact cut points unspecified; these mirror the Limit
// Tracker's warning/critical band shape for consistency across the
// system's several 0-100 health scores.
const (
	healthyFloor = 70.0
	warningFloor = 40.0
)

func statusFor(score float64) Status {
	switch {
	case score >= healthyFloor:
		return StatusHealthy
	case score >= warningFloor:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// Signals is the five-input vector spec §4.11 blends, each already
// normalized to [0,100] by the caller (or by the Normalize helpers below).
type Signals struct {
	Quality    float64 // weighted average of recent QG scores
	Velocity   float64 // tasks/hour vs. historical median
	Iteration  float64 // fewer iterations is better; inverted
	ErrorRate  float64 // clamped inverse error rate
	Historical float64 // success rate on similar past tasks
}

// Weights assigns each signal's contribution to the overall score.
// Spec §4.11's default is equal weighting across all five.
type Weights struct {
	Quality    float64
	Velocity   float64
	Iteration  float64
	ErrorRate  float64
	Historical float64
}

// DefaultWeights is spec §4.11's "default equal weights".
func DefaultWeights() Weights {
	return Weights{Quality: 0.2, Velocity: 0.2, Iteration: 0.2, ErrorRate: 0.2, Historical: 0.2}
}

// Result is one confidence computation's output.
type Result struct {
	Score   float64
	Signals Signals
	Status  Status
}

// Monitor blends Signals into an overall confidence score using Weights.
type Monitor struct {
	weights Weights
}

// New builds a Monitor with the given weights (pass DefaultWeights() for
// spec's default).
func New(weights Weights) *Monitor {
	return &Monitor{weights: weights}
}

// Evaluate computes the overall score and status tier from one set of
// signals.
func (m *Monitor) Evaluate(s Signals) Result {
	score := clamp(s.Quality)*m.weights.Quality +
		clamp(s.Velocity)*m.weights.Velocity +
		clamp(s.Iteration)*m.weights.Iteration +
		clamp(s.ErrorRate)*m.weights.ErrorRate +
		clamp(s.Historical)*m.weights.Historical

	return Result{
		Score:   score,
		Signals: s,
		Status:  statusFor(score),
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

// NormalizeVelocity turns a current tasks/hour rate and a historical
// median into a [0,100] signal: at or above the median scores 100,
// falling behind scores proportionally lower, floored at 0.
func NormalizeVelocity(current, median float64) float64 {
	if median <= 0 {
		return 100
	}
	ratio := current / median
	if ratio > 1 {
		ratio = 1
	}
	return clamp(ratio * 100)
}

// NormalizeIteration inverts an iteration count against a configured
// ceiling (e.g. max-iterations from spec §4.15): 1 iteration scores near
// 100, reaching the ceiling scores 0.
func NormalizeIteration(count, ceiling int) float64 {
	if ceiling <= 0 {
		return 100
	}
	if count <= 1 {
		return 100
	}
	if count >= ceiling {
		return 0
	}
	return clamp(100 * (1 - float64(count-1)/float64(ceiling-1)))
}

// NormalizeErrorRate inverts a [0,1] error fraction into a [0,100] signal.
func NormalizeErrorRate(errorFraction float64) float64 {
	if errorFraction < 0 {
		errorFraction = 0
	}
	if errorFraction > 1 {
		errorFraction = 1
	}
	return clamp(100 * (1 - errorFraction))
}
