package dashboard

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/klauspost/compress/zstd"

	"loopctl/internal/errtax"
	"loopctl/internal/logging"
)

// hotCapacity and hotTTL are spec §4.16's hot-tier bounds: "in-memory ring
// per session, TTL 5 minutes, capped entries (e.g., 60 samples)".
const (
	hotCapacity = 60
	hotTTL      = 5 * time.Minute
)

type hotSample struct {
	value float64
	at    time.Time
}

type hotKey struct {
	session string
	metric  string
}

// TieredMetrics is the dashboard's hot/warm/cold/archive metrics store
// (spec §4.16). Hot lives entirely in memory; warm/cold/archive extend
// the shared Memory Store's SQLite file with their own tables via
// mem.DB(), the same "packages add their own tables to the one file"
// pattern memory.Store.DB's doc comment documents for vector/usage.
type TieredMetrics struct {
	db *sql.DB

	mu  sync.Mutex
	hot map[hotKey][]hotSample

	retention RetentionConfig
	cadence   FlushCadence

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	scheduler gocron.Scheduler
	logger    *logging.Logger
}

// RetentionConfig and FlushCadence mirror internal/config's shapes
// without importing config (avoiding an import cycle the way
// memory.RetentionPolicy already does for M's own retention).
type RetentionConfig struct {
	WarmHours   int
	ColdDays    int
	ArchiveDays int
}

type FlushCadence struct {
	HotToWarm     time.Duration
	WarmToCold    time.Duration
	ColdToArchive time.Duration
}

// DefaultRetentionConfig mirrors spec §4.16's documented defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{WarmHours: 24, ColdDays: 7, ArchiveDays: 365}
}

// DefaultFlushCadence mirrors spec §4.16's documented cadence.
func DefaultFlushCadence() FlushCadence {
	return FlushCadence{HotToWarm: 60 * time.Second, WarmToCold: time.Hour, ColdToArchive: 24 * time.Hour}
}

// NewTieredMetrics migrates the tiered tables into db and returns a ready
// store. Call Start to begin the flush/retention schedule.
func NewTieredMetrics(db *sql.DB, retention RetentionConfig, cadence FlushCadence) (*TieredMetrics, error) {
	tm := &TieredMetrics{
		db:        db,
		hot:       make(map[hotKey][]hotSample),
		retention: retention,
		cadence:   cadence,
		logger:    logging.Get(logging.CategoryDashboard),
	}
	if err := tm.migrate(); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errtax.New(errtax.FatalAgent, "dashboard.NewTieredMetrics.zstd_encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errtax.New(errtax.FatalAgent, "dashboard.NewTieredMetrics.zstd_decoder", err)
	}
	tm.encoder = enc
	tm.decoder = dec
	return tm, nil
}

func (tm *TieredMetrics) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dash_metrics_warm (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			ts DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dash_warm_session_metric ON dash_metrics_warm(session_id, metric, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_dash_warm_ts ON dash_metrics_warm(ts)`,
		`CREATE TABLE IF NOT EXISTS dash_metrics_cold (
			session_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			bucket DATETIME NOT NULL,
			count INTEGER NOT NULL,
			sum REAL NOT NULL,
			min REAL NOT NULL,
			max REAL NOT NULL,
			PRIMARY KEY (session_id, metric, bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS dash_metrics_archive (
			session_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			bucket DATETIME NOT NULL,
			count INTEGER NOT NULL,
			sum REAL NOT NULL,
			min REAL NOT NULL,
			max REAL NOT NULL,
			detail_zstd BLOB,
			PRIMARY KEY (session_id, metric, bucket)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tm.db.Exec(stmt); err != nil {
			return errtax.New(errtax.PersistenceUnavailable, "dashboard.migrate", err)
		}
	}
	return nil
}

// Record adds one sample to the hot ring. Spec §4.16's <1ms hot-read
// guarantee is why this never touches the database.
func (tm *TieredMetrics) Record(sessionID, metric string, value float64) {
	k := hotKey{session: sessionID, metric: metric}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	samples := append(tm.hot[k], hotSample{value: value, at: time.Now()})
	if len(samples) > hotCapacity {
		samples = samples[len(samples)-hotCapacity:]
	}
	tm.hot[k] = samples
}

// pruneHot drops samples past hotTTL; the 5-minute retention-cleanup job
// calls this, and reads prune lazily too so a slow sweep never serves a
// stale sample.
func (tm *TieredMetrics) pruneHot() {
	cutoff := time.Now().Add(-hotTTL)
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for k, samples := range tm.hot {
		kept := samples[:0]
		for _, s := range samples {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(tm.hot, k)
		} else {
			tm.hot[k] = kept
		}
	}
}

// HotSeries returns a session/metric's buffered hot samples, newest last.
func (tm *TieredMetrics) HotSeries(sessionID, metric string) []float64 {
	return timeHotRead(func() []float64 {
		k := hotKey{session: sessionID, metric: metric}
		cutoff := time.Now().Add(-hotTTL)
		tm.mu.Lock()
		defer tm.mu.Unlock()
		var out []float64
		for _, s := range tm.hot[k] {
			if s.at.After(cutoff) {
				out = append(out, s.value)
			}
		}
		return out
	})
}

// flushHotToWarm copies every currently-buffered hot sample into the warm
// SQL table. It does not clear the hot ring: hot entries still serve
// sub-millisecond reads until their own TTL evicts them independently.
func (tm *TieredMetrics) flushHotToWarm() {
	tm.mu.Lock()
	type row struct {
		k hotKey
		s hotSample
	}
	var rows []row
	for k, samples := range tm.hot {
		for _, s := range samples {
			rows = append(rows, row{k: k, s: s})
		}
	}
	tm.mu.Unlock()

	if len(rows) == 0 {
		return
	}
	tx, err := tm.db.Begin()
	if err != nil {
		tm.logger.Warn("flush hot->warm: begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO dash_metrics_warm (session_id, metric, value, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		tm.logger.Warn("flush hot->warm: prepare: %v", err)
		return
	}
	for _, r := range rows {
		if _, err := stmt.Exec(r.k.session, r.k.metric, r.s.value, r.s.at); err != nil {
			tm.logger.Warn("flush hot->warm: insert: %v", err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		tm.logger.Warn("flush hot->warm: commit: %v", err)
		return
	}
	tm.logger.Debug("flushed %d hot samples to warm", len(rows))
}

// rollupWarmToCold aggregates warm rows into hourly cold buckets. The
// 2-hour overlap spec §4.16 asks for means it reprocesses the last two
// completed hours every run (idempotent upsert), covering late-arriving
// warm writes from a session whose flush lagged behind the clock.
func (tm *TieredMetrics) rollupWarmToCold() {
	since := time.Now().Add(-3 * time.Hour) // covers the 2h overlap window plus the hour just closed
	rows, err := tm.db.Query(`
		SELECT session_id, metric, strftime('%Y-%m-%dT%H:00:00Z', ts) AS bucket,
			COUNT(*), SUM(value), MIN(value), MAX(value)
		FROM dash_metrics_warm WHERE ts >= ?
		GROUP BY session_id, metric, bucket`, since)
	if err != nil {
		tm.logger.Warn("rollup warm->cold: query: %v", err)
		return
	}
	defer rows.Close()

	upserted := 0
	for rows.Next() {
		var sessionID, metric, bucket string
		var count int64
		var sum, min, max float64
		if err := rows.Scan(&sessionID, &metric, &bucket, &count, &sum, &min, &max); err != nil {
			continue
		}
		_, err := tm.db.Exec(`
			INSERT INTO dash_metrics_cold (session_id, metric, bucket, count, sum, min, max)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, metric, bucket) DO UPDATE SET
				count = excluded.count, sum = excluded.sum, min = excluded.min, max = excluded.max`,
			sessionID, metric, bucket, count, sum, min, max)
		if err != nil {
			tm.logger.Warn("rollup warm->cold: upsert: %v", err)
			continue
		}
		upserted++
	}
	tm.logger.Debug("rolled up %d warm->cold buckets", upserted)
}

// archiveDetail is the small JSON blob zstd-compressed into each daily
// archive row, giving offline export something richer than the four
// summary numbers without keeping raw rows around for a year.
type archiveDetail struct {
	SourceBuckets int `json:"sourceBuckets"`
}

// rollupColdToArchive aggregates cold (hourly) buckets into daily archive
// rows, with the 2-day overlap spec §4.16 asks for.
func (tm *TieredMetrics) rollupColdToArchive() {
	since := time.Now().Add(-72 * time.Hour)
	rows, err := tm.db.Query(`
		SELECT session_id, metric, strftime('%Y-%m-%dT00:00:00Z', bucket) AS day,
			SUM(count), SUM(sum), MIN(min), MAX(max), COUNT(*)
		FROM dash_metrics_cold WHERE bucket >= ?
		GROUP BY session_id, metric, day`, since)
	if err != nil {
		tm.logger.Warn("rollup cold->archive: query: %v", err)
		return
	}
	defer rows.Close()

	upserted := 0
	for rows.Next() {
		var sessionID, metric, day string
		var count int64
		var sum, min, max float64
		var sourceBuckets int
		if err := rows.Scan(&sessionID, &metric, &day, &count, &sum, &min, &max, &sourceBuckets); err != nil {
			continue
		}
		detail, _ := json.Marshal(archiveDetail{SourceBuckets: sourceBuckets})
		compressed := tm.encoder.EncodeAll(detail, nil)
		_, err := tm.db.Exec(`
			INSERT INTO dash_metrics_archive (session_id, metric, bucket, count, sum, min, max, detail_zstd)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, metric, bucket) DO UPDATE SET
				count = excluded.count, sum = excluded.sum, min = excluded.min, max = excluded.max,
				detail_zstd = excluded.detail_zstd`,
			sessionID, metric, day, count, sum, min, max, compressed)
		if err != nil {
			tm.logger.Warn("rollup cold->archive: upsert: %v", err)
			continue
		}
		upserted++
	}
	tm.logger.Debug("rolled up %d cold->archive buckets", upserted)
}

// archiveDetailFor decompresses one archive row's detail blob, exercising
// the zstd decoder symmetrically with the encoder rollupColdToArchive uses.
func (tm *TieredMetrics) archiveDetailFor(compressed []byte) (archiveDetail, error) {
	var d archiveDetail
	if len(compressed) == 0 {
		return d, nil
	}
	raw, err := tm.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return d, errtax.New(errtax.InvariantViolation, "dashboard.archiveDetailFor", err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, errtax.New(errtax.InvariantViolation, "dashboard.archiveDetailFor.unmarshal", err)
	}
	return d, nil
}

func (tm *TieredMetrics) cleanupWarm() {
	cutoff := time.Now().Add(-time.Duration(tm.retention.WarmHours) * time.Hour)
	res, err := tm.db.Exec(`DELETE FROM dash_metrics_warm WHERE ts < ?`, cutoff)
	if err != nil {
		tm.logger.Warn("retention warm: %v", err)
		return
	}
	n, _ := res.RowsAffected()
	tm.logger.Debug("retention warm: deleted %d rows", n)
}

func (tm *TieredMetrics) cleanupCold() {
	cutoff := time.Now().Add(-time.Duration(tm.retention.ColdDays) * 24 * time.Hour)
	res, err := tm.db.Exec(`DELETE FROM dash_metrics_cold WHERE bucket < ?`, cutoff)
	if err != nil {
		tm.logger.Warn("retention cold: %v", err)
		return
	}
	n, _ := res.RowsAffected()
	tm.logger.Debug("retention cold: deleted %d rows", n)
}

func (tm *TieredMetrics) cleanupArchive() {
	cutoff := time.Now().Add(-time.Duration(tm.retention.ArchiveDays) * 24 * time.Hour)
	res, err := tm.db.Exec(`DELETE FROM dash_metrics_archive WHERE bucket < ?`, cutoff)
	if err != nil {
		tm.logger.Warn("retention archive: %v", err)
		return
	}
	n, _ := res.RowsAffected()
	tm.logger.Debug("retention archive: deleted %d rows", n)
}

// Start schedules the flush and retention jobs spec §4.16 documents,
// mirroring the teacher pack's gocron.NewScheduler/NewJob usage
// (kluzzebass-gastrolog's cron-rotation and periodic-compaction jobs).
func (tm *TieredMetrics) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return errtax.New(errtax.FatalAgent, "dashboard.TieredMetrics.Start", err)
	}
	tm.scheduler = s

	jobs := []struct {
		def  gocron.JobDefinition
		task func()
		name string
	}{
		{gocron.DurationJob(tm.cadence.HotToWarm), tm.flushHotToWarm, "flush-hot-to-warm"},
		{gocron.CronJob("5 * * * *", false), tm.rollupWarmToCold, "rollup-warm-to-cold"},
		{gocron.CronJob("5 0 * * *", false), tm.rollupColdToArchive, "rollup-cold-to-archive"},
		{gocron.DurationJob(5 * time.Minute), tm.pruneHot, "retention-hot"},
		{gocron.CronJob("0 * * * *", false), tm.cleanupWarmAndCold, "retention-warm-cold"},
		{gocron.CronJob("5 0 * * *", false), tm.cleanupArchive, "retention-archive"},
	}
	for _, j := range jobs {
		if _, err := s.NewJob(j.def, gocron.NewTask(j.task), gocron.WithName(j.name)); err != nil {
			return errtax.New(errtax.FatalAgent, "dashboard.TieredMetrics.Start.NewJob."+j.name, err)
		}
	}
	s.Start()
	return nil
}

// cleanupWarmAndCold runs both tiers' hourly retention together; spec
// §4.16 only names an explicit cadence for warm ("hourly") and doesn't
// give cold its own, so cold rides the same hourly job rather than
// invent an undocumented cadence.
func (tm *TieredMetrics) cleanupWarmAndCold() {
	tm.cleanupWarm()
	tm.cleanupCold()
}

// Shutdown stops the scheduler.
func (tm *TieredMetrics) Shutdown() error {
	if tm.scheduler == nil {
		return nil
	}
	return tm.scheduler.Shutdown()
}

// RangeQuery serves spec §6.2's GET /api/metrics: picks the finest tier
// whose retention still reaches back to since (warm, then cold, then
// archive), per spec §4.16's tier ladder.
type RangePoint struct {
	Bucket        time.Time `json:"bucket"`
	Count         int64     `json:"count"`
	Sum           float64   `json:"sum"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	SourceBuckets int       `json:"sourceBuckets,omitempty"` // archive tier only
}

func (tm *TieredMetrics) RangeQuery(sessionID, metric string, since, until time.Time) ([]RangePoint, error) {
	warmHorizon := time.Now().Add(-time.Duration(tm.retention.WarmHours) * time.Hour)
	coldHorizon := time.Now().Add(-time.Duration(tm.retention.ColdDays) * 24 * time.Hour)

	switch {
	case since.After(warmHorizon):
		return timeRangeQuery("warm", func() ([]RangePoint, error) {
			return tm.queryWarm(sessionID, metric, since, until)
		})
	case since.After(coldHorizon):
		return timeRangeQuery("cold", func() ([]RangePoint, error) {
			return tm.queryBucketed("dash_metrics_cold", sessionID, metric, since, until)
		})
	default:
		return timeRangeQuery("archive", func() ([]RangePoint, error) {
			return tm.queryArchive(sessionID, metric, since, until)
		})
	}
}

// queryArchive is queryBucketed plus decompression of each row's zstd
// detail blob into SourceBuckets, exercising the decoder side of the
// encode/decode pair rollupColdToArchive writes.
func (tm *TieredMetrics) queryArchive(sessionID, metric string, since, until time.Time) ([]RangePoint, error) {
	rows, err := tm.db.Query(`SELECT bucket, count, sum, min, max, detail_zstd FROM dash_metrics_archive
		WHERE session_id = ? AND metric = ? AND bucket >= ? AND bucket <= ?
		ORDER BY bucket ASC`, sessionID, metric, since, until)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "dashboard.queryArchive", err)
	}
	defer rows.Close()

	var out []RangePoint
	for rows.Next() {
		var p RangePoint
		var blob []byte
		if err := rows.Scan(&p.Bucket, &p.Count, &p.Sum, &p.Min, &p.Max, &blob); err != nil {
			return nil, errtax.New(errtax.PersistenceUnavailable, "dashboard.queryArchive.scan", err)
		}
		if detail, err := tm.archiveDetailFor(blob); err == nil {
			p.SourceBuckets = detail.SourceBuckets
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (tm *TieredMetrics) queryWarm(sessionID, metric string, since, until time.Time) ([]RangePoint, error) {
	rows, err := tm.db.Query(`
		SELECT ts, 1, value, value, value FROM dash_metrics_warm
		WHERE session_id = ? AND metric = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, sessionID, metric, since, until)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "dashboard.queryWarm", err)
	}
	defer rows.Close()
	return scanRangePoints(rows)
}

func (tm *TieredMetrics) queryBucketed(table, sessionID, metric string, since, until time.Time) ([]RangePoint, error) {
	rows, err := tm.db.Query(`SELECT bucket, count, sum, min, max FROM `+table+`
		WHERE session_id = ? AND metric = ? AND bucket >= ? AND bucket <= ?
		ORDER BY bucket ASC`, sessionID, metric, since, until)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "dashboard.queryBucketed", err)
	}
	defer rows.Close()
	return scanRangePoints(rows)
}

func scanRangePoints(rows *sql.Rows) ([]RangePoint, error) {
	var out []RangePoint
	for rows.Next() {
		var p RangePoint
		if err := rows.Scan(&p.Bucket, &p.Count, &p.Sum, &p.Min, &p.Max); err != nil {
			return nil, errtax.New(errtax.PersistenceUnavailable, "dashboard.scanRangePoints", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
