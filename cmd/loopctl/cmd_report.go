package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"loopctl/internal/memory"
	"loopctl/internal/usage"
)

var (
	reportWindow  string // "daily" | "monthly"
	reportModel   string
	reportAgent   string
	reportPattern string
	reportJSON    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "print a daily/monthly/pattern/agent/budget usage report",
	Long: `report summarizes token usage and cost over a billing window
(daily or monthly), optionally narrowed to a model, agent, or pattern,
and includes the budget status spec §4.4's check-budget-status computes
for that window.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportWindow, "window", "daily", `billing window: "daily" or "monthly"`)
	reportCmd.Flags().StringVar(&reportModel, "model", "", "filter to one model")
	reportCmd.Flags().StringVar(&reportAgent, "agent", "", "filter to one agent id")
	reportCmd.Flags().StringVar(&reportPattern, "pattern", "", "filter to one collaboration pattern")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
}

type reportOutput struct {
	Window string                `json:"window"`
	Counts usage.TokenCounts     `json:"counts"`
	Budget usage.BudgetStatus    `json:"budget"`
	Stats  usage.AggregatedStats `json:"allTimeStats"`
}

func runReport(cmd *cobra.Command, args []string) error {
	dbPath := filepath.Join(workspace, ".loopctl", "loopctl.db")
	mem, err := memory.Open(dbPath)
	if err != nil {
		return newUserError(fmt.Errorf("open state: %w", err))
	}
	defer func() { _ = mem.Close() }()

	usageT, err := usage.NewTracker(workspace, mem, usage.NewPricingTable())
	if err != nil {
		return fmt.Errorf("open usage tracker: %w", err)
	}

	now := time.Now()
	var start, end time.Time
	var limitUSD float64
	switch reportWindow {
	case "monthly":
		start, end = usage.MonthlyWindow(now)
		limitUSD = cfg.BudgetMonthlyUSD
	case "daily", "":
		start, end = usage.DailyWindow(now)
		limitUSD = cfg.BudgetDailyUSD
	default:
		return newUserError(fmt.Errorf(`unknown --window %q, want "daily" or "monthly"`, reportWindow))
	}

	counts, err := usageT.Summary(start, usage.Filters{Model: reportModel, AgentID: reportAgent, Pattern: reportPattern})
	if err != nil {
		return fmt.Errorf("summarize usage: %w", err)
	}

	budget := usage.CheckBudget(limitUSD, counts.CostUSD, start, now, end, usage.BudgetThresholds{
		DailyUSD:      cfg.BudgetDailyUSD,
		MonthlyUSD:    cfg.BudgetMonthlyUSD,
		WarningRatio:  cfg.AlertWarningRatio,
		CriticalRatio: cfg.AlertCriticalRatio,
	})

	out := reportOutput{Window: reportWindow, Counts: counts, Budget: budget, Stats: usageT.Stats()}

	if reportJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("%s report (%s - %s)\n", reportWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	fmt.Printf("  tokens: input=%d output=%d cache_create=%d cache_read=%d total=%d\n",
		counts.Input, counts.Output, counts.CacheCreate, counts.CacheRead, counts.Total)
	fmt.Printf("  cost: $%.4f of $%.2f budget (%.1f%%, %s)\n", counts.CostUSD, limitUSD, budget.Percent*100, budget.Severity)
	fmt.Printf("  projected: $%.4f by period end\n", budget.ProjectedUSD)
	if budget.Exceeded {
		fmt.Println("  ** budget exceeded **")
	}
	fmt.Println("  by pattern:")
	for pattern, c := range out.Stats.ByPattern {
		fmt.Printf("    %-12s total=%-8d cost=$%.4f\n", pattern, c.Total, c.CostUSD)
	}
	fmt.Println("  by agent:")
	for agent, c := range out.Stats.ByAgent {
		fmt.Printf("    %-12s total=%-8d cost=$%.4f\n", agent, c.Total, c.CostUSD)
	}
	return nil
}
