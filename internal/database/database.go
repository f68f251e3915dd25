// Package database is the PostgreSQL store for the moat service. Every
// query is scoped by owner id; no cross-tenant reads happen here.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable wraps driver-level failures so callers can
	// distinguish "the store is down" from domain errors.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Database wraps the SQL connection used by all services.
type Database struct {
	db *sql.DB
}

// NewPostgres opens a PostgreSQL connection and initializes the schema.
func NewPostgres(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	d := &Database{db: db}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB exposes the underlying handle for components that manage their own
// tables, such as the logging manager.
func (d *Database) DB() *sql.DB {
	return d.db
}

// initSchema creates the moat tables.
func (d *Database) initSchema() error {
	schema := `
	-- One row per recorded mistake, clustered by signature per owner.
	CREATE TABLE IF NOT EXISTS failure_patterns (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		signature TEXT NOT NULL,
		detected_in TEXT,
		original_output TEXT,
		failure_reason TEXT NOT NULL,
		prevention_rule TEXT NOT NULL,
		prevention_prompt_addition TEXT NOT NULL,
		context_snapshot TEXT,
		template_id TEXT,
		config_snapshot TEXT,
		severity TEXT NOT NULL DEFAULT 'medium',
		resolved BOOLEAN NOT NULL DEFAULT false,
		resolved_at TIMESTAMP,
		occurrence_count INTEGER NOT NULL DEFAULT 1,
		last_occurrence TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Mirror ledger for approved / production-validated outputs.
	CREATE TABLE IF NOT EXISTS success_patterns (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		signature TEXT NOT NULL,
		context TEXT NOT NULL,
		outcome TEXT NOT NULL,
		success_factors TEXT,
		template_id TEXT,
		config_snapshot TEXT,
		context_snapshot TEXT,
		output_example TEXT,
		usage_count INTEGER NOT NULL DEFAULT 1,
		success_rate REAL NOT NULL DEFAULT 1.0,
		last_used TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Matches persisted for monthly frequency aggregates.
	CREATE TABLE IF NOT EXISTS pattern_matches (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		pattern_id TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		match_type TEXT NOT NULL,
		match_confidence REAL NOT NULL,
		detected_in TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Run/activity ledger; one row per scanned artifact with an owner.
	CREATE TABLE IF NOT EXISTS agent_runs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		safety_checked BOOLEAN NOT NULL DEFAULT false,
		safety_passed BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Billing attributes consulted by the guarantee tracker.
	CREATE TABLE IF NOT EXISTS user_profiles (
		owner_id TEXT PRIMARY KEY,
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		guarantee_coverage TEXT,
		integration_access TEXT,
		prevented_failures_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_failure_patterns_owner ON failure_patterns(owner_id, resolved);
	CREATE INDEX IF NOT EXISTS idx_success_patterns_owner ON success_patterns(owner_id);
	CREATE INDEX IF NOT EXISTS idx_pattern_matches_owner_created ON pattern_matches(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_agent_runs_owner_created ON agent_runs(owner_id, created_at);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
// Used throughout the database package for parameterized queries.
func rebind(query string) string {
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// severityOrder yields a numeric sort key for the severity column so
// ORDER BY ranks critical above high above medium above low.
const severityOrder = `CASE severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// storeErr tags a driver error as a store-availability failure.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func (d *Database) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, rebind(query), args...).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}
