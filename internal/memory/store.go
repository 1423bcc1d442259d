// Package memory implements the Memory Store (M): the durable,
// transactional record of orchestrations, observations, tasks, and token
// usage backing everything above it in the dependency order from spec §2.
//
// Writes are single-writer (guarded by a mutex, matching the teacher's
// store.LocalStore discipline) over a WAL-mode SQLite database opened via
// database/sql + mattn/go-sqlite3; keyword search runs against an FTS5
// virtual table, which gives BM25 ranking natively.
package memory

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"loopctl/internal/errtax"
	"loopctl/internal/logging"
)

// Store is the single owner of the SQLite connection for one project.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	// claimFailureLimit is how many lease-expiry reverts a task tolerates
	// before it is moved to failed (spec §4.1's "after N reverts").
	claimFailureLimit int
}

// Open creates (or opens) the database at path, applies pragmas and schema,
// and returns a ready Store. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "memory.Open", err)
	}
	db.SetMaxOpenConns(1) // single writer; readers multiplex through this handle too
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, errtax.New(errtax.PersistenceUnavailable, "memory.Open.pragma", err)
		}
	}

	s := &Store{db: db, claimFailureLimit: 3}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetClaimFailureLimit overrides the default revert-count before a task
// is marked failed by the lease sweeper.
func (s *Store) SetClaimFailureLimit(n int) { s.claimFailureLimit = n }

func (s *Store) migrate() error {
	timer := logging.StartTimer(logging.CategoryMemory, "migrate")
	defer timer.Stop()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT '',
			estimate_hours REAL NOT NULL DEFAULT 0,
			acceptance_criteria TEXT NOT NULL DEFAULT '[]',
			criteria_met TEXT NOT NULL DEFAULT '[]',
			dependencies TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'pending',
			claim_owner TEXT,
			claim_lease_expiry DATETIME,
			claim_heartbeat DATETIME,
			claim_failures INTEGER NOT NULL DEFAULT 0,
			result_summary TEXT NOT NULL DEFAULT '',
			fail_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orchestrations (
			id TEXT PRIMARY KEY,
			pattern TEXT NOT NULL,
			agent_ids TEXT NOT NULL DEFAULT '[]',
			task_id TEXT,
			inputs TEXT NOT NULL DEFAULT '',
			result_summary TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			tokens_input INTEGER NOT NULL DEFAULT 0,
			tokens_output INTEGER NOT NULL DEFAULT 0,
			tokens_cache_create INTEGER NOT NULL DEFAULT 0,
			tokens_cache_read INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			concept_tags TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			concept_tags TEXT NOT NULL DEFAULT '[]',
			importance INTEGER NOT NULL DEFAULT 5,
			agent_insights TEXT NOT NULL DEFAULT '{}',
			recommendations TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(orchestration_id) REFERENCES orchestrations(id)
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS observations_fts USING fts5(
			id UNINDEXED, content, concept_tags, content='observations', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS observations_ai AFTER INSERT ON observations BEGIN
			INSERT INTO observations_fts(rowid, id, content, concept_tags) VALUES (new.rowid, new.id, new.content, new.concept_tags);
		END`,
		`CREATE TABLE IF NOT EXISTS token_usage (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			model TEXT NOT NULL,
			tokens_input INTEGER NOT NULL DEFAULT 0,
			tokens_output INTEGER NOT NULL DEFAULT 0,
			tokens_cache_create INTEGER NOT NULL DEFAULT 0,
			tokens_cache_read INTEGER NOT NULL DEFAULT 0,
			cost_input REAL NOT NULL DEFAULT 0,
			cost_output REAL NOT NULL DEFAULT 0,
			cost_cache_create REAL NOT NULL DEFAULT 0,
			cost_cache_read REAL NOT NULL DEFAULT 0,
			cache_savings_usd REAL NOT NULL DEFAULT 0,
			cache_savings_pct REAL NOT NULL DEFAULT 0,
			pattern TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority)`,
		`CREATE INDEX IF NOT EXISTS idx_orch_task ON orchestrations(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_obs_orch ON observations(orchestration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_ts ON token_usage(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errtax.New(errtax.PersistenceUnavailable, "memory.migrate", fmt.Errorf("%s: %w", stmt, err))
		}
	}
	return nil
}

// DB exposes the raw handle for packages (vector, usage) that extend this
// schema with their own tables inside the same file.
func (s *Store) DB() *sql.DB { return s.db }

// Now is overridable in tests that need deterministic lease math.
var Now = time.Now
