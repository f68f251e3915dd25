package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/keysplatform/moat/pkg/models"
)

// InsertPatternMatch records a match event for monthly frequency
// aggregates. The match itself stays ephemeral; only the ledger row
// persists.
func (d *Database) InsertPatternMatch(ctx context.Context, ownerID string, m models.PatternMatch, at time.Time) error {
	_, err := d.db.ExecContext(ctx, rebind(`
		INSERT INTO pattern_matches (id, owner_id, pattern_id, pattern_type, match_type, match_confidence, detected_in, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), ownerID, m.PatternID, string(m.Kind), string(m.Class),
		m.Confidence, sqlNullString(m.DetectedIn), at,
	)
	if err != nil {
		return storeErr("insert pattern match", err)
	}
	return nil
}

// CountPatternMatchesSince counts match events for an owner from the
// given instant forward.
func (d *Database) CountPatternMatchesSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	return d.count(ctx, `
		SELECT COUNT(*) FROM pattern_matches
		WHERE owner_id = ? AND created_at >= ?`, ownerID, since)
}

// CountMatchProjectsSince counts the distinct projects (detected_in
// tags) where matches occurred since the given instant.
func (d *Database) CountMatchProjectsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	return d.count(ctx, `
		SELECT COUNT(DISTINCT detected_in) FROM pattern_matches
		WHERE owner_id = ? AND created_at >= ? AND detected_in IS NOT NULL`, ownerID, since)
}

// InsertRun appends a row to the run/activity ledger.
func (d *Database) InsertRun(ctx context.Context, run *models.AgentRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx, rebind(`
		INSERT INTO agent_runs (id, owner_id, safety_checked, safety_passed, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		run.ID, run.OwnerID, run.SafetyChecked, run.SafetyPassed, run.CreatedAt,
	)
	if err != nil {
		return storeErr("insert run", err)
	}
	return nil
}

// CountRuns counts every run ever recorded for an owner.
func (d *Database) CountRuns(ctx context.Context, ownerID string) (int, error) {
	return d.count(ctx, `SELECT COUNT(*) FROM agent_runs WHERE owner_id = ?`, ownerID)
}

// CountRunsSince counts runs from the given instant forward.
func (d *Database) CountRunsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	return d.count(ctx, `
		SELECT COUNT(*) FROM agent_runs
		WHERE owner_id = ? AND created_at >= ?`, ownerID, since)
}

// CountSafetyCheckedRunsSince counts runs that carried safety results.
func (d *Database) CountSafetyCheckedRunsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	return d.count(ctx, `
		SELECT COUNT(*) FROM agent_runs
		WHERE owner_id = ? AND created_at >= ? AND safety_checked = true`, ownerID, since)
}

// CountBlockedRunsSince counts runs whose safety checks did not pass.
func (d *Database) CountBlockedRunsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	return d.count(ctx, `
		SELECT COUNT(*) FROM agent_runs
		WHERE owner_id = ? AND created_at >= ? AND safety_checked = true AND safety_passed = false`,
		ownerID, since)
}

// CountActiveDaysSince counts the distinct calendar days with at least
// one run since the given instant.
func (d *Database) CountActiveDaysSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, rebind(`
		SELECT COUNT(DISTINCT DATE(created_at)) FROM agent_runs
		WHERE owner_id = ? AND created_at >= ?`),
		ownerID, since,
	).Scan(&n)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, storeErr("count active days", err)
	}
	return n, nil
}
