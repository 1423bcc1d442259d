package memory

import (
	"time"

	"loopctl/internal/errtax"
	"loopctl/internal/logging"
)

// RetentionPolicy mirrors config.RetentionConfig without importing the
// config package (avoiding an import cycle); the loop package converts.
type RetentionPolicy struct {
	RawUsageMaxAge time.Duration // default 24h equivalent (spec §4.1)
	HourlyMaxAge   time.Duration // default 7 days
	DailyMaxAge    time.Duration // default 365 days
}

// CleanupOldRecords deletes token_usage rows past raw retention, and
// orchestrations (with their observations) past the daily-rollup horizon.
// Hourly/daily roll-ups themselves live in the dashboard's tiered metrics
// store (internal/dashboard), not here; M only retains the raw event log.
func (s *Store) CleanupOldRecords(p RetentionPolicy) (tokenRowsDeleted, orchestrationsDeleted int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := Now()
	if p.RawUsageMaxAge > 0 {
		res, derr := s.db.Exec(`DELETE FROM token_usage WHERE ts < ?`, now.Add(-p.RawUsageMaxAge))
		if derr != nil {
			return 0, 0, errtax.New(errtax.PersistenceUnavailable, "memory.CleanupOldRecords.token_usage", derr)
		}
		tokenRowsDeleted, _ = res.RowsAffected()
	}

	if p.DailyMaxAge > 0 {
		cutoff := now.Add(-p.DailyMaxAge)
		// Observations reference orchestrations by foreign key; delete
		// children first to respect the constraint.
		_, derr := s.db.Exec(
			`DELETE FROM observations WHERE orchestration_id IN (SELECT id FROM orchestrations WHERE created_at < ?)`,
			cutoff,
		)
		if derr != nil {
			return tokenRowsDeleted, 0, errtax.New(errtax.PersistenceUnavailable, "memory.CleanupOldRecords.observations", derr)
		}
		res, derr := s.db.Exec(`DELETE FROM orchestrations WHERE created_at < ?`, cutoff)
		if derr != nil {
			return tokenRowsDeleted, 0, errtax.New(errtax.PersistenceUnavailable, "memory.CleanupOldRecords.orchestrations", derr)
		}
		orchestrationsDeleted, _ = res.RowsAffected()
	}

	logging.Get(logging.CategoryMemory).Info(
		"retention cleanup: %d token_usage rows, %d orchestrations deleted",
		tokenRowsDeleted, orchestrationsDeleted,
	)
	return tokenRowsDeleted, orchestrationsDeleted, nil
}
