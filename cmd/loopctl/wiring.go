package main

import (
	"fmt"
	"os"
	"path/filepath"

	"loopctl/internal/agentrunner"
	"loopctl/internal/bus"
	"loopctl/internal/checkpoint"
	"loopctl/internal/confidence"
	"loopctl/internal/config"
	"loopctl/internal/dashboard"
	"loopctl/internal/embedding"
	"loopctl/internal/hil"
	"loopctl/internal/hooks"
	"loopctl/internal/limits"
	"loopctl/internal/loop"
	"loopctl/internal/memory"
	"loopctl/internal/orchestrator"
	"loopctl/internal/planning"
	"loopctl/internal/quality"
	"loopctl/internal/retrieval"
	"loopctl/internal/tasks"
	"loopctl/internal/usage"
	"loopctl/internal/vector"
)

// system bundles every built subsystem for one loopctl process. It is
// the thing main() tears down on exit and the thing each subcommand
// reaches into for the one call it needs.
type system struct {
	mem      *memory.Store
	vec      *vector.Store
	tasksMgr *tasks.Manager
	usageT   *usage.Tracker
	limitsT  *limits.Tracker
	bus      *bus.Bus
	dash     *dashboard.Dashboard
	loopCfg  loop.Config
	loopDeps loop.Deps

	// invoker is the §1-scoped-out LLM boundary's test double (no real
	// model is ever invoked by this CLI). Exposed so integration tests
	// can script agent responses the same way the loop package's own
	// tests do.
	invoker *agentrunner.FakeInvoker
}

// buildSystem constructs the full dependency graph in the order the
// packages were built in: M -> V -> CR -> {U,L,CO,HIL} -> TM -> CP/PE ->
// QG -> CM -> LH/MB -> AO -> CLO deps -> DB.
func buildSystem(ws string, cfg *config.Config, claimOwner string) (*system, error) {
	dbPath := filepath.Join(ws, ".loopctl", "loopctl.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	mem, err := memory.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	var vec *vector.Store
	if cfg.VectorStoreEnabled {
		engine := embedding.NewLocalHashEngine(256)
		cb := vector.CircuitBreakerConfig{
			Window:   cfg.CircuitBreaker.Window,
			K:        cfg.CircuitBreaker.K,
			Cooldown: cfg.CircuitBreaker.Cooldown,
		}
		vec, err = vector.Open(mem.DB(), engine, cb)
		if err != nil {
			_ = mem.Close()
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	}

	retrieverCfg := retrieval.DefaultConfig()
	contextTokenBudget := cfg.ContextTokenBudget
	retrieverCfg.TokenBudget = &contextTokenBudget
	retrieverCfg.CacheCapacity = cfg.CRCacheSize
	retrieverCfg.CacheTTL = cfg.CRCacheTTL
	retriever := retrieval.New(mem, vec, retrieverCfg)

	pricing := usage.NewPricingTable()
	usageT, err := usage.NewTracker(ws, mem, pricing)
	if err != nil {
		_ = mem.Close()
		return nil, fmt.Errorf("open usage tracker: %w", err)
	}

	plan, ok := cfg.Limits["free"]
	if !ok {
		for _, p := range cfg.Limits {
			plan = p
			break
		}
	}
	limitsT := limits.New(limits.Plan{
		FiveHour: plan.FiveHour,
		Daily:    plan.Daily,
		Weekly:   plan.Weekly,
		SafePace: int(plan.SafePace),
	})

	checkpointO := checkpoint.New()
	hilD := hil.New()
	tasksMgr := tasks.New(mem, cfg.ClaimLease)

	messageBus := bus.New()
	coordinator := planning.NewCoordinator(cfg.ComplexityThreshold, cfg.PlanTieThreshold, cfg.PlanCacheTTL, messageBus)

	qualityGates := quality.New()
	confidenceMonitor := confidence.New(confidence.DefaultWeights())

	hookPipeline := hooks.New()
	fakeInvoker := agentrunner.NewFakeInvoker()
	runner := agentrunner.New(fakeInvoker)
	orch := orchestrator.New(runner, hookPipeline, messageBus, mem)

	loopDeps := loop.Deps{
		Mem:          mem,
		Tasks:        tasksMgr,
		Planning:     coordinator,
		Orchestrator: orch,
		Retriever:    retriever,
		Quality:      qualityGates,
		Confidence:   confidenceMonitor,
		Usage:        usageT,
		Limits:       limitsT,
		Checkpoint:   checkpointO,
		HIL:          hilD,
		Bus:          messageBus,
	}
	loopCfg := loop.Config{
		Owner:              claimOwner,
		MaxIterations:      cfg.MaxIterations,
		ClaimLease:         cfg.ClaimLease,
		HeartbeatEvery:     cfg.HeartbeatEvery,
		WrapUpBudget:       cfg.WrapUpBudget,
		ContextTokenBudget: cfg.ContextTokenBudget,
		BudgetThresholds: usage.BudgetThresholds{
			DailyUSD:      cfg.BudgetDailyUSD,
			MonthlyUSD:    cfg.BudgetMonthlyUSD,
			WarningRatio:  cfg.AlertWarningRatio,
			CriticalRatio: cfg.AlertCriticalRatio,
		},
	}

	dashDeps := dashboard.Deps{
		Mem:    mem,
		Tasks:  tasksMgr,
		Usage:  usageT,
		Limits: limitsT,
		Bus:    messageBus,
	}
	dash, err := dashboard.New(mem.DB(), dashDeps, cfg)
	if err != nil {
		_ = mem.Close()
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	return &system{
		mem:      mem,
		vec:      vec,
		tasksMgr: tasksMgr,
		usageT:   usageT,
		limitsT:  limitsT,
		bus:      messageBus,
		dash:     dash,
		loopCfg:  loopCfg,
		loopDeps: loopDeps,
		invoker:  fakeInvoker,
	}, nil
}

func (s *system) Close() error {
	if s.usageT != nil {
		_ = s.usageT.Save()
	}
	return s.mem.Close()
}
