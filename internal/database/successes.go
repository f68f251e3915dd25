package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/keysplatform/moat/pkg/models"
)

const successColumns = `id, owner_id, category, description, signature, context, outcome,
	success_factors, template_id, config_snapshot, context_snapshot, output_example,
	usage_count, success_rate, last_used, created_at`

// InsertSuccessPattern stores a new success pattern row.
func (d *Database) InsertSuccessPattern(ctx context.Context, p *models.SuccessPattern) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	factorsJSON := ""
	if len(p.SuccessFactors) > 0 {
		b, err := json.Marshal(p.SuccessFactors)
		if err != nil {
			return storeErr("marshal success factors", err)
		}
		factorsJSON = string(b)
	}

	_, err := d.db.ExecContext(ctx, rebind(`
		INSERT INTO success_patterns (`+successColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.OwnerID, string(p.Category), p.Description, p.Signature, p.Context,
		p.Outcome, sqlNullString(factorsJSON), sqlNullString(p.TemplateID),
		sqlNullString(p.ConfigSnapshot), sqlNullString(p.ContextSnapshot),
		sqlNullString(p.OutputExample), p.UsageCount, p.SuccessRate, p.LastUsed, p.CreatedAt,
	)
	if err != nil {
		return storeErr("insert success pattern", err)
	}
	return nil
}

// ListSuccessPatterns returns all success patterns for an owner; used
// by the matching pass, which needs every candidate.
func (d *Database) ListSuccessPatterns(ctx context.Context, ownerID string) ([]*models.SuccessPattern, error) {
	return d.querySuccesses(ctx, `
		SELECT `+successColumns+`
		FROM success_patterns
		WHERE owner_id = ?`, ownerID)
}

// TopSuccessPatterns returns the owner's best patterns ordered by
// success rate then usage count, both descending.
func (d *Database) TopSuccessPatterns(ctx context.Context, ownerID string, limit int) ([]*models.SuccessPattern, error) {
	return d.querySuccesses(ctx, `
		SELECT `+successColumns+`
		FROM success_patterns
		WHERE owner_id = ?
		ORDER BY success_rate DESC, usage_count DESC
		LIMIT ?`, ownerID, limit)
}

// UpdateSuccessUsage applies the repeat-match rules: bump the usage
// count, set the recomputed success rate, and refresh last_used.
func (d *Database) UpdateSuccessUsage(ctx context.Context, id string, usageCount int, successRate float64, at time.Time) (*models.SuccessPattern, error) {
	row := d.db.QueryRowContext(ctx, rebind(`
		UPDATE success_patterns
		SET usage_count = ?, success_rate = ?, last_used = ?
		WHERE id = ?
		RETURNING `+successColumns),
		usageCount, successRate, at, id,
	)

	p, err := scanSuccess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("update success usage", err)
	}
	return p, nil
}

// CountSuccessPatterns counts all success patterns for an owner.
func (d *Database) CountSuccessPatterns(ctx context.Context, ownerID string) (int, error) {
	return d.count(ctx, `SELECT COUNT(*) FROM success_patterns WHERE owner_id = ?`, ownerID)
}

func (d *Database) querySuccesses(ctx context.Context, query string, args ...any) ([]*models.SuccessPattern, error) {
	rows, err := d.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, storeErr("query success patterns", err)
	}
	defer rows.Close()

	var patterns []*models.SuccessPattern
	for rows.Next() {
		p, err := scanSuccess(rows)
		if err != nil {
			return nil, storeErr("scan success pattern", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query success patterns", err)
	}

	return patterns, nil
}

func scanSuccess(row rowScanner) (*models.SuccessPattern, error) {
	p := &models.SuccessPattern{}
	var category string
	var factorsJSON, templateID, configSnapshot, contextSnapshot, outputExample sql.NullString

	err := row.Scan(
		&p.ID, &p.OwnerID, &category, &p.Description, &p.Signature, &p.Context,
		&p.Outcome, &factorsJSON, &templateID, &configSnapshot, &contextSnapshot,
		&outputExample, &p.UsageCount, &p.SuccessRate, &p.LastUsed, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Category = models.PatternCategory(category)
	p.TemplateID = templateID.String
	p.ConfigSnapshot = configSnapshot.String
	p.ContextSnapshot = contextSnapshot.String
	p.OutputExample = outputExample.String
	if factorsJSON.Valid && factorsJSON.String != "" {
		_ = json.Unmarshal([]byte(factorsJSON.String), &p.SuccessFactors)
	}

	return p, nil
}
