package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/keysplatform/moat/pkg/models"
)

const failureColumns = `id, owner_id, category, description, signature, detected_in,
	original_output, failure_reason, prevention_rule, prevention_prompt_addition,
	context_snapshot, template_id, config_snapshot, severity, resolved, resolved_at,
	occurrence_count, last_occurrence, created_at`

// InsertFailurePattern stores a new failure pattern row.
func (d *Database) InsertFailurePattern(ctx context.Context, p *models.FailurePattern) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx, rebind(`
		INSERT INTO failure_patterns (`+failureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.OwnerID, string(p.Category), p.Description, p.Signature,
		sqlNullString(p.DetectedIn), sqlNullString(p.OriginalOutput), p.FailureReason,
		p.PreventionRule, p.PreventionHint, sqlNullString(p.ContextSnapshot),
		sqlNullString(p.TemplateID), sqlNullString(p.ConfigSnapshot), string(p.Severity),
		p.Resolved, p.ResolvedAt, p.OccurrenceCount, p.LastOccurrence, p.CreatedAt,
	)
	if err != nil {
		return storeErr("insert failure pattern", err)
	}
	return nil
}

// ListUnresolvedFailures returns every unresolved failure pattern for an
// owner, ordered by severity then occurrence count, both descending.
func (d *Database) ListUnresolvedFailures(ctx context.Context, ownerID string) ([]*models.FailurePattern, error) {
	rows, err := d.db.QueryContext(ctx, rebind(`
		SELECT `+failureColumns+`
		FROM failure_patterns
		WHERE owner_id = ? AND resolved = false
		ORDER BY `+severityOrder+` DESC, occurrence_count DESC`),
		ownerID,
	)
	if err != nil {
		return nil, storeErr("list unresolved failures", err)
	}
	defer rows.Close()

	var patterns []*models.FailurePattern
	for rows.Next() {
		p, err := scanFailure(rows)
		if err != nil {
			return nil, storeErr("scan failure pattern", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list unresolved failures", err)
	}

	return patterns, nil
}

// UpdateFailureOccurrence applies the repeat-report rules: increment the
// occurrence count, replace the failure reason with the latest one, and
// refresh the last-occurrence timestamp. Returns the updated record.
func (d *Database) UpdateFailureOccurrence(ctx context.Context, id, reason string, at time.Time) (*models.FailurePattern, error) {
	row := d.db.QueryRowContext(ctx, rebind(`
		UPDATE failure_patterns
		SET occurrence_count = occurrence_count + 1,
			failure_reason = ?,
			last_occurrence = ?
		WHERE id = ?
		RETURNING `+failureColumns),
		reason, at, id,
	)

	p, err := scanFailure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("update failure occurrence", err)
	}
	return p, nil
}

// ResolveFailurePattern marks a pattern resolved, the only terminal
// state a failure pattern has.
func (d *Database) ResolveFailurePattern(ctx context.Context, ownerID, id string, at time.Time) (*models.FailurePattern, error) {
	row := d.db.QueryRowContext(ctx, rebind(`
		UPDATE failure_patterns
		SET resolved = true, resolved_at = ?
		WHERE id = ? AND owner_id = ?
		RETURNING `+failureColumns),
		at, id, ownerID,
	)

	p, err := scanFailure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("resolve failure pattern", err)
	}
	return p, nil
}

// ListPreventionHints projects the top unresolved patterns to their
// prompt additions, ordered by severity then occurrence count.
func (d *Database) ListPreventionHints(ctx context.Context, ownerID string, limit int) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, rebind(`
		SELECT prevention_prompt_addition
		FROM failure_patterns
		WHERE owner_id = ? AND resolved = false
		ORDER BY `+severityOrder+` DESC, occurrence_count DESC
		LIMIT ?`),
		ownerID, limit,
	)
	if err != nil {
		return nil, storeErr("list prevention hints", err)
	}
	defer rows.Close()

	var hints []string
	for rows.Next() {
		var hint string
		if err := rows.Scan(&hint); err != nil {
			return nil, storeErr("scan prevention hint", err)
		}
		if hint != "" {
			hints = append(hints, hint)
		}
	}
	return hints, rows.Err()
}

// CountFailurePatterns counts all failure patterns for an owner,
// resolved or not.
func (d *Database) CountFailurePatterns(ctx context.Context, ownerID string) (int, error) {
	return d.count(ctx, `SELECT COUNT(*) FROM failure_patterns WHERE owner_id = ?`, ownerID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFailure(row rowScanner) (*models.FailurePattern, error) {
	p := &models.FailurePattern{}
	var category, severity string
	var detectedIn, originalOutput, contextSnapshot, templateID, configSnapshot sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.OwnerID, &category, &p.Description, &p.Signature, &detectedIn,
		&originalOutput, &p.FailureReason, &p.PreventionRule, &p.PreventionHint,
		&contextSnapshot, &templateID, &configSnapshot, &severity, &p.Resolved,
		&resolvedAt, &p.OccurrenceCount, &p.LastOccurrence, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Category = models.PatternCategory(category)
	p.Severity = models.Severity(severity)
	p.DetectedIn = detectedIn.String
	p.OriginalOutput = originalOutput.String
	p.ContextSnapshot = contextSnapshot.String
	p.TemplateID = templateID.String
	p.ConfigSnapshot = configSnapshot.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}

	return p, nil
}
