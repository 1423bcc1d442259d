// Package config holds the orchestrator's frozen configuration structure.
// Every option in spec §6.5 has a field here with a documented default;
// unrecognized YAML keys are logged and ignored rather than rejected, per
// the "config as loose maps" redesign note in spec §9 — we still parse a
// fixed struct, but tolerate unknown input instead of failing startup.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"loopctl/internal/logging"
)

// PlanLimits describes the message-count ceilings for one subscription tier.
type PlanLimits struct {
	FiveHour int     `yaml:"five_hour" json:"five_hour"`
	Daily    int     `yaml:"daily" json:"daily"`
	Weekly   int     `yaml:"weekly" json:"weekly"`
	SafePace float64 `yaml:"safe_pace" json:"safe_pace"` // messages/hour sustainable without warning
}

// CircuitBreakerConfig tunes the vector store's breaker (spec §4.2).
type CircuitBreakerConfig struct {
	Window   int           `yaml:"window" json:"window"`     // rolling sample count
	K        int           `yaml:"k" json:"k"`               // consecutive failures to open
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"` // half-open wait
}

// RetentionConfig sets per-tier retention (spec §4.1, §4.16).
type RetentionConfig struct {
	RawHours    int `yaml:"raw_hours" json:"raw_hours"`
	WarmDays    int `yaml:"warm_days" json:"warm_days"`
	ColdDays    int `yaml:"cold_days" json:"cold_days"`
	ArchiveDays int `yaml:"archive_days" json:"archive_days"`
}

// FlushCadence sets the tiered metrics store's flush intervals (spec §4.16).
type FlushCadence struct {
	HotToWarm     time.Duration `yaml:"hot_to_warm" json:"hot_to_warm"`
	WarmToCold    time.Duration `yaml:"warm_to_cold" json:"warm_to_cold"`
	ColdToArchive time.Duration `yaml:"cold_to_archive" json:"cold_to_archive"`
}

// Config is the process-wide, immutable-after-load configuration.
type Config struct {
	ComplexityThreshold float64       `yaml:"complexity_threshold"`
	PlanTieThreshold    float64       `yaml:"plan_tie_threshold"`
	PlanCacheTTL        time.Duration `yaml:"plan_cache_ttl"`

	ContextTokenBudget int           `yaml:"context_token_budget"`
	CRCacheSize        int           `yaml:"cr_cache_size"`
	CRCacheTTL         time.Duration `yaml:"cr_cache_ttl"`

	CheckpointThresholdStart float64 `yaml:"checkpoint_threshold_start"`
	CheckpointThresholdMin   float64 `yaml:"checkpoint_threshold_min"`
	CheckpointThresholdMax   float64 `yaml:"checkpoint_threshold_max"`
	CompactionDropTokens     int     `yaml:"compaction_drop_tokens"`

	PatternRetryAttempts int           `yaml:"pattern_retry_attempts"`
	RetryBackoffBase     time.Duration `yaml:"retry_backoff_base"`
	TimeoutAgent         time.Duration `yaml:"timeout_agent"`
	TimeoutVectorQuery   time.Duration `yaml:"timeout_vector_query"`
	TimeoutDatabaseWrite time.Duration `yaml:"timeout_database_write"`
	TimeoutSSEWrite      time.Duration `yaml:"timeout_sse_write"`

	BudgetDailyUSD     float64 `yaml:"budget_daily_usd"`
	BudgetMonthlyUSD   float64 `yaml:"budget_monthly_usd"`
	AlertWarningRatio  float64 `yaml:"alert_warning_ratio"`
	AlertCriticalRatio float64 `yaml:"alert_critical_ratio"`

	Limits map[string]PlanLimits `yaml:"limits"`

	VectorStoreEnabled bool                 `yaml:"vector_store_enabled"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker"`

	Retention RetentionConfig `yaml:"retention"`
	Flush     FlushCadence    `yaml:"flush"`

	MaxIterations  int           `yaml:"max_iterations"`
	ClaimLease     time.Duration `yaml:"claim_lease"`
	HeartbeatEvery time.Duration `yaml:"heartbeat_every"`
	WrapUpBudget   time.Duration `yaml:"wrap_up_budget"`

	DebugMode bool   `yaml:"debug_mode"`
	LogLevel  string `yaml:"log_level"`

	DashboardAddr string `yaml:"dashboard_addr"`
}

// Default returns the documented defaults for every §6.5 option.
func Default() *Config {
	return &Config{
		ComplexityThreshold: 40,
		PlanTieThreshold:    10,
		PlanCacheTTL:        5 * time.Minute,

		ContextTokenBudget: 2000,
		CRCacheSize:        100,
		CRCacheTTL:         5 * time.Minute,

		CheckpointThresholdStart: 75,
		CheckpointThresholdMin:   60,
		CheckpointThresholdMax:   85,
		CompactionDropTokens:     50_000,

		PatternRetryAttempts: 3,
		RetryBackoffBase:     time.Second,
		TimeoutAgent:         60 * time.Second,
		TimeoutVectorQuery:   5 * time.Second,
		TimeoutDatabaseWrite: 2 * time.Second,
		TimeoutSSEWrite:      10 * time.Second,

		BudgetDailyUSD:     50,
		BudgetMonthlyUSD:   1000,
		AlertWarningRatio:  0.80,
		AlertCriticalRatio: 0.95,

		Limits: map[string]PlanLimits{
			"free": {FiveHour: 5, Daily: 50, Weekly: 250, SafePace: 10},
			"pro":  {FiveHour: 50, Daily: 450, Weekly: 2500, SafePace: 90},
			"team": {FiveHour: 200, Daily: 10000, Weekly: 60000, SafePace: 2000},
		},

		VectorStoreEnabled: true,
		CircuitBreaker: CircuitBreakerConfig{
			Window:   20,
			K:        5,
			Cooldown: 30 * time.Second,
		},

		Retention: RetentionConfig{
			RawHours:    24,
			WarmDays:    7,
			ColdDays:    7,
			ArchiveDays: 365,
		},
		Flush: FlushCadence{
			HotToWarm:     60 * time.Second,
			WarmToCold:    time.Hour,
			ColdToArchive: 24 * time.Hour,
		},

		MaxIterations:  10,
		ClaimLease:     5 * time.Minute,
		HeartbeatEvery: 30 * time.Second,
		WrapUpBudget:   60 * time.Second,

		DebugMode: true,
		LogLevel:  "info",

		DashboardAddr: ":8420",
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			var raw map[string]any
			if err := yaml.Unmarshal(b, &raw); err == nil {
				warnUnknownKeys(raw)
			}
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

var knownTopLevelKeys = func() map[string]bool {
	known := make(map[string]bool)
	for _, k := range []string{
		"complexity_threshold", "plan_tie_threshold", "plan_cache_ttl",
		"context_token_budget", "cr_cache_size", "cr_cache_ttl",
		"checkpoint_threshold_start", "checkpoint_threshold_min", "checkpoint_threshold_max",
		"compaction_drop_tokens", "pattern_retry_attempts", "retry_backoff_base",
		"timeout_agent", "timeout_vector_query", "timeout_database_write", "timeout_sse_write",
		"budget_daily_usd", "budget_monthly_usd", "alert_warning_ratio", "alert_critical_ratio",
		"limits", "vector_store_enabled", "circuit_breaker", "retention", "flush",
		"max_iterations", "claim_lease", "heartbeat_every", "wrap_up_budget",
		"debug_mode", "log_level", "dashboard_addr",
	} {
		known[k] = true
	}
	return known
}()

func warnUnknownKeys(raw map[string]any) {
	for k := range raw {
		if !knownTopLevelKeys[k] {
			logging.Get(logging.CategoryConfig).Warn("unknown config key ignored: %s", k)
		}
	}
}

// applyEnvOverrides lets a handful of hot operational knobs be set without
// editing the file, matching the teacher's env-override pattern.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOOPCTL_COMPLEXITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ComplexityThreshold = f
		}
	}
	if v := os.Getenv("LOOPCTL_BUDGET_DAILY_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BudgetDailyUSD = f
		}
	}
	if v := os.Getenv("LOOPCTL_DEBUG"); v != "" {
		cfg.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("LOOPCTL_DASHBOARD_ADDR"); v != "" {
		cfg.DashboardAddr = v
	}
}
