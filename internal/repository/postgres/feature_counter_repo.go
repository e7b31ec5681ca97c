// internal/repository/postgres/feature_counter_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"soko-service/internal/domain/usage"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FeatureCounterRepository struct {
	db *pgxpool.Pool
}

func NewFeatureCounterRepository(db *pgxpool.Pool) *FeatureCounterRepository {
	return &FeatureCounterRepository{db: db}
}

const counterColumns = `id, subscription_id, feature_name, usage_count, limit_value, created_at, updated_at`

func scanCounter(row pgx.Row) (*usage.FeatureCounter, error) {
	var c usage.FeatureCounter
	err := row.Scan(
		&c.ID, &c.SubscriptionID, &c.FeatureName,
		&c.UsageCount, &c.LimitValue, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feature counter: %w", err)
	}
	return &c, nil
}

// FindForUpdate locks one counter row for a check-then-act increment.
func (r *FeatureCounterRepository) FindForUpdate(ctx context.Context, tx pgx.Tx, subscriptionID int64, feature string) (*usage.FeatureCounter, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM feature_counters
		WHERE subscription_id = $1 AND feature_name = $2
		FOR UPDATE
	`, counterColumns)
	return scanCounter(tx.QueryRow(ctx, query, subscriptionID, feature))
}

// Find retrieves one counter without locking
func (r *FeatureCounterRepository) Find(ctx context.Context, subscriptionID int64, feature string) (*usage.FeatureCounter, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM feature_counters
		WHERE subscription_id = $1 AND feature_name = $2
	`, counterColumns)
	return scanCounter(r.db.QueryRow(ctx, query, subscriptionID, feature))
}

// CreateWithTx lazily creates a zero counter. A racing create resolves via
// the unique key on (subscription_id, feature_name): the conflict arm takes
// the existing row's lock and returns it, so the caller always ends up
// holding exactly one locked counter.
func (r *FeatureCounterRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64, feature string, limit sql.NullInt32) (*usage.FeatureCounter, error) {
	query := fmt.Sprintf(`
		INSERT INTO feature_counters (subscription_id, feature_name, usage_count, limit_value)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (subscription_id, feature_name)
		DO UPDATE SET updated_at = now()
		RETURNING %s
	`, counterColumns)

	return scanCounter(tx.QueryRow(ctx, query, subscriptionID, feature, limit))
}

// IncrementWithTx bumps a locked counter by one
func (r *FeatureCounterRepository) IncrementWithTx(ctx context.Context, tx pgx.Tx, id int64) (int, error) {
	var newCount int
	err := tx.QueryRow(ctx, `
		UPDATE feature_counters
		SET usage_count = usage_count + 1, updated_at = $1
		WHERE id = $2
		RETURNING usage_count
	`, time.Now(), id).Scan(&newCount)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return newCount, nil
}

// ListBySubscription retrieves all counters owned by one subscription
func (r *FeatureCounterRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]usage.FeatureCounter, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM feature_counters
		WHERE subscription_id = $1
		ORDER BY feature_name ASC
	`, counterColumns)

	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature counters: %w", err)
	}
	defer rows.Close()

	var counters []usage.FeatureCounter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, *c)
	}

	return counters, rows.Err()
}

// ResetAllWithTx zeroes every counter of a subscription; called by ledger
// renewals under the subscription row lock.
func (r *FeatureCounterRepository) ResetAllWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE feature_counters
		SET usage_count = 0, updated_at = $1
		WHERE subscription_id = $2
	`, time.Now(), subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to reset feature counters: %w", err)
	}
	return nil
}

// ReplaceLimitsWithTx installs fresh counters sized to a new plan after an
// upgrade or downgrade. Existing rows are zeroed and re-limited rather than
// deleted so usage history survives in the audit trail.
func (r *FeatureCounterRepository) ReplaceLimitsWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64, limits map[string]sql.NullInt32) error {
	for feature, limit := range limits {
		_, err := tx.Exec(ctx, `
			INSERT INTO feature_counters (subscription_id, feature_name, usage_count, limit_value)
			VALUES ($1, $2, 0, $3)
			ON CONFLICT (subscription_id, feature_name)
			DO UPDATE SET usage_count = 0, limit_value = EXCLUDED.limit_value, updated_at = NOW()
		`, subscriptionID, feature, limit)
		if err != nil {
			return fmt.Errorf("failed to replace counter %s: %w", feature, err)
		}
	}
	return nil
}

// ListNearLimit finds counters at or above the given fraction of their limit
// across all live subscriptions, for the feature-limit sweep.
func (r *FeatureCounterRepository) ListNearLimit(ctx context.Context, fraction float64) ([]usage.FeatureCounter, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM feature_counters fc
		WHERE fc.limit_value IS NOT NULL AND fc.limit_value > 0
		  AND fc.usage_count >= CEIL(fc.limit_value * $1)
		  AND EXISTS (
		      SELECT 1 FROM subscriptions s
		      WHERE s.id = fc.subscription_id
		        AND s.status = 'active' AND s.end_date > NOW()
		  )
	`, counterColumns)

	rows, err := r.db.Query(ctx, query, fraction)
	if err != nil {
		return nil, fmt.Errorf("failed to list near-limit counters: %w", err)
	}
	defer rows.Close()

	var counters []usage.FeatureCounter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, *c)
	}

	return counters, rows.Err()
}
