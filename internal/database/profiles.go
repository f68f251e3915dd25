package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/keysplatform/moat/pkg/models"
)

// GetUserProfile loads the billing attributes for an owner.
func (d *Database) GetUserProfile(ctx context.Context, ownerID string) (*models.UserProfile, error) {
	p := &models.UserProfile{}
	var coverageJSON, integrationsJSON sql.NullString

	err := d.db.QueryRowContext(ctx, rebind(`
		SELECT owner_id, subscription_tier, guarantee_coverage, integration_access, prevented_failures_count
		FROM user_profiles
		WHERE owner_id = ?`),
		ownerID,
	).Scan(&p.OwnerID, &p.SubscriptionTier, &coverageJSON, &integrationsJSON, &p.PreventedFailuresCount)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get user profile", err)
	}

	if coverageJSON.Valid && coverageJSON.String != "" {
		_ = json.Unmarshal([]byte(coverageJSON.String), &p.GuaranteeCoverage)
	}
	if integrationsJSON.Valid && integrationsJSON.String != "" {
		_ = json.Unmarshal([]byte(integrationsJSON.String), &p.IntegrationAccess)
	}

	return p, nil
}

// UpsertUserProfile inserts or replaces an owner's billing attributes.
func (d *Database) UpsertUserProfile(ctx context.Context, p *models.UserProfile) error {
	coverageJSON, err := json.Marshal(p.GuaranteeCoverage)
	if err != nil {
		return storeErr("marshal guarantee coverage", err)
	}
	integrationsJSON, err := json.Marshal(p.IntegrationAccess)
	if err != nil {
		return storeErr("marshal integration access", err)
	}

	_, err = d.db.ExecContext(ctx, rebind(`
		INSERT INTO user_profiles (owner_id, subscription_tier, guarantee_coverage, integration_access, prevented_failures_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			subscription_tier = excluded.subscription_tier,
			guarantee_coverage = excluded.guarantee_coverage,
			integration_access = excluded.integration_access,
			prevented_failures_count = excluded.prevented_failures_count,
			updated_at = excluded.updated_at`),
		p.OwnerID, p.SubscriptionTier, string(coverageJSON), string(integrationsJSON),
		p.PreventedFailuresCount, time.Now().UTC(),
	)
	if err != nil {
		return storeErr("upsert user profile", err)
	}
	return nil
}

// IncrementPreventedFailures bumps the owner's prevented-failures
// counter by one.
func (d *Database) IncrementPreventedFailures(ctx context.Context, ownerID string) error {
	_, err := d.db.ExecContext(ctx, rebind(`
		UPDATE user_profiles
		SET prevented_failures_count = prevented_failures_count + 1, updated_at = ?
		WHERE owner_id = ?`),
		time.Now().UTC(), ownerID,
	)
	if err != nil {
		return storeErr("increment prevented failures", err)
	}
	return nil
}
