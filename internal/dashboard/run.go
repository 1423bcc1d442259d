package dashboard

import (
	"context"
	"database/sql"

	"loopctl/internal/config"
)

// Dashboard bundles the Registry, TieredMetrics store, SSE Hub and HTTP
// Server into the one running unit cmd/loopctl starts: the pieces are
// split into their own files for clarity but only ever stood up together.
type Dashboard struct {
	Registry *Registry
	Metrics  *TieredMetrics
	Hub      *Hub
	Server   *Server
}

// New builds a Dashboard from the already-open Memory Store's database
// handle, the shared subsystem Deps the Loop(s) also write to, and the
// resolved Config's retention/cadence/address settings.
func New(db *sql.DB, deps Deps, cfg *config.Config) (*Dashboard, error) {
	retention := RetentionConfig{
		WarmHours:   cfg.Retention.RawHours,
		ColdDays:    cfg.Retention.ColdDays,
		ArchiveDays: cfg.Retention.ArchiveDays,
	}
	cadence := FlushCadence{
		HotToWarm:     cfg.Flush.HotToWarm,
		WarmToCold:    cfg.Flush.WarmToCold,
		ColdToArchive: cfg.Flush.ColdToArchive,
	}

	metrics, err := NewTieredMetrics(db, retention, cadence)
	if err != nil {
		return nil, err
	}

	hub := NewHub(0)
	registry := NewRegistry(deps, hub)
	srv := NewServer(cfg.DashboardAddr, registry, metrics, hub)

	return &Dashboard{Registry: registry, Metrics: metrics, Hub: hub, Server: srv}, nil
}

// Start begins the tiered metrics flush/retention schedule and serves HTTP
// until ListenAndServe returns (typically via Shutdown).
func (d *Dashboard) Start() error {
	if err := d.Metrics.Start(); err != nil {
		return err
	}
	return d.Server.ListenAndServe()
}

// Shutdown stops the HTTP server and the tiered metrics schedule. It is
// the counterpart callers use to unwind a Start() that is blocked in
// ListenAndServe.
func (d *Dashboard) Shutdown(ctx context.Context) error {
	srvErr := d.Server.Shutdown(ctx)
	metricsErr := d.Metrics.Shutdown()
	if srvErr != nil {
		return srvErr
	}
	return metricsErr
}
