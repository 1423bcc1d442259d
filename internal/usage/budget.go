package usage

import "time"

// BudgetStatus is the spec §4.4 check-budget-status result:
// {limit, used, percent, projected, exceeded}.
type BudgetStatus struct {
	LimitUSD     float64
	UsedUSD      float64
	Percent      float64 // used/limit, not clamped — can exceed 1.0
	ProjectedUSD float64 // linear extrapolation of used to period end
	Exceeded     bool
	Severity     Severity
	PeriodStart  time.Time
	PeriodEnd    time.Time
}

// Severity buckets a budget's burn rate, per the warning/critical
// thresholds in spec §4.4 (defaults 80%/95%, spec §6.5).
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// BudgetThresholds carries the warning/critical ratios and the
// daily/monthly limits that check-budget-status is computed against.
type BudgetThresholds struct {
	DailyUSD      float64
	MonthlyUSD    float64
	WarningRatio  float64
	CriticalRatio float64
}

// CheckBudget computes status for one period (daily or monthly) given
// the amount already spent and the thresholds in effect. `now` and
// `periodStart` let the caller drive this for either window without
// the tracker needing to know which calendar period it's in.
func CheckBudget(limitUSD, usedUSD float64, periodStart, now, periodEnd time.Time, thresholds BudgetThresholds) BudgetStatus {
	status := BudgetStatus{
		LimitUSD:    limitUSD,
		UsedUSD:     usedUSD,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
	if limitUSD > 0 {
		status.Percent = usedUSD / limitUSD
	}
	status.Exceeded = status.Percent >= 1.0

	elapsed := now.Sub(periodStart)
	total := periodEnd.Sub(periodStart)
	if elapsed > 0 && total > 0 {
		status.ProjectedUSD = usedUSD * (float64(total) / float64(elapsed))
	} else {
		status.ProjectedUSD = usedUSD
	}

	switch {
	case status.Percent >= thresholds.CriticalRatio:
		status.Severity = SeverityCritical
	case status.Percent >= thresholds.WarningRatio:
		status.Severity = SeverityWarning
	default:
		status.Severity = SeverityOK
	}
	return status
}

// DailyWindow returns the [start, end) bounds of the UTC day containing t.
func DailyWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// MonthlyWindow returns the [start, end) bounds of the UTC month
// containing t.
func MonthlyWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
