package planning

import (
	"time"

	"loopctl/internal/logging"
)

// Coordinator is the single entry point the Continuous Loop Orchestrator
// calls at spec §4.15 step 3: score complexity, decide whether a
// competitive plan set is warranted, and return the evaluated winner.
type Coordinator struct {
	analyzer  *ComplexityAnalyzer
	planner   *Planner
	evaluator *Evaluator
	cache     *Cache
	threshold float64
	logger    *logging.Logger
}

// NewCoordinator wires the complexity analyzer, planner, evaluator, and
// cache behind one call. threshold is spec §4.9's complexity gate
// (default 40); tieThreshold and cacheTTL come from config.
func NewCoordinator(threshold, tieThreshold float64, cacheTTL time.Duration, publisher Publisher) *Coordinator {
	return &Coordinator{
		analyzer:  NewComplexityAnalyzer(),
		planner:   NewPlanner(),
		evaluator: NewEvaluator(tieThreshold, publisher),
		cache:     NewCache(cacheTTL),
		threshold: threshold,
		logger:    logging.Get(logging.CategoryPlanning),
	}
}

// Outcome is what the CLO needs to proceed past planning.
type Outcome struct {
	Complexity  ComplexityResult
	Plans       []*Plan
	Result      Result
	FromCache   bool
}

// Plan scores the task, and if its complexity clears the threshold,
// generates (or reuses a cached) competitive plan set and evaluates it.
// Below threshold it still returns a single balanced plan so callers
// always have something to execute, just without the competitive
// generate/evaluate overhead.
func (c *Coordinator) Plan(taskID, title, description string, forceRegenerate bool) Outcome {
	complexity := c.analyzer.Analyze(title, description)
	strategies := StrategiesFor(complexity.Score)

	key := Key(taskID, complexity.Score)
	if !forceRegenerate {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug("plan cache hit for %s", taskID)
			return Outcome{Complexity: complexity, Plans: cached, Result: c.evaluator.Evaluate(cached), FromCache: true}
		}
	} else {
		c.cache.Invalidate(key)
	}

	plans := c.planner.Generate(taskID, complexity, strategies)
	c.cache.Put(key, plans)

	result := c.evaluator.Evaluate(plans)
	if result.NeedsReview {
		c.logger.Warn("task %s: plan tie needs review (%s)", taskID, result.TieReason)
	}
	return Outcome{Complexity: complexity, Plans: plans, Result: result}
}

// NeedsCompetitivePlanning reports whether a complexity score clears the
// gate spec §4.9 sets for generating more than a single balanced plan.
func (c *Coordinator) NeedsCompetitivePlanning(score float64) bool {
	return score >= c.threshold
}
