// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soko-service/internal/domain/subscription"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, subscription_reference, account_id, plan_id,
	       start_date, end_date, auto_renew,
	       amount_paid_minor, currency, settlement_reference,
	       status, activated_at, cancelled_at, cancellation_reason,
	       created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(
		&s.ID, &s.SubscriptionReference, &s.AccountID, &s.PlanID,
		&s.StartDate, &s.EndDate, &s.AutoRenew,
		&s.AmountPaidMinor, &s.Currency, &s.SettlementReference,
		&s.Status, &s.ActivatedAt, &s.CancelledAt, &s.CancellationReason,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

// CreateWithTx creates a subscription within a transaction
func (r *SubscriptionRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, s *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			subscription_reference, account_id, plan_id,
			start_date, end_date, auto_renew,
			amount_paid_minor, currency, settlement_reference,
			status, activated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx, query,
		s.SubscriptionReference, s.AccountID, s.PlanID,
		s.StartDate, s.EndDate, s.AutoRenew,
		s.AmountPaidMinor, s.Currency, s.SettlementReference,
		s.Status, s.ActivatedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)
	return scanSubscription(r.db.QueryRow(ctx, query, id))
}

// FindByIDForUpdate locks the subscription row for the duration of the
// transaction. Every ledger transition and counter reset goes through this
// lock, which is the per-subscription critical section.
func (r *SubscriptionRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1 FOR UPDATE`, subscriptionColumns)
	return scanSubscription(tx.QueryRow(ctx, query, id))
}

// FindLiveByAccount resolves the account's live subscription: active status
// and NOW() within [start, end). Overlap during an upgrade window is legal,
// so the most recently activated row wins rather than a uniqueness
// constraint.
func (r *SubscriptionRepository) FindLiveByAccount(ctx context.Context, accountID int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE account_id = $1 AND status = 'active'
		  AND start_date <= NOW() AND end_date > NOW()
		ORDER BY activated_at DESC NULLS LAST, id DESC
		LIMIT 1
	`, subscriptionColumns)
	return scanSubscription(r.db.QueryRow(ctx, query, accountID))
}

// FindLiveByAccountForUpdate is FindLiveByAccount inside the caller's
// transaction, locking the row.
func (r *SubscriptionRepository) FindLiveByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE account_id = $1 AND status = 'active'
		  AND start_date <= NOW() AND end_date > NOW()
		ORDER BY activated_at DESC NULLS LAST, id DESC
		LIMIT 1
		FOR UPDATE
	`, subscriptionColumns)
	return scanSubscription(tx.QueryRow(ctx, query, accountID))
}

// FindCurrentByAccountForUpdate locks the account's most recent renewable
// subscription (active or expired; cancelled rows never come back). Used by
// renewal settlements that may revive a lapsed subscription.
func (r *SubscriptionRepository) FindCurrentByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE account_id = $1 AND status IN ('active', 'expired')
		ORDER BY activated_at DESC NULLS LAST, id DESC
		LIMIT 1
		FOR UPDATE
	`, subscriptionColumns)
	return scanSubscription(tx.QueryRow(ctx, query, accountID))
}

// UpdateTransitionWithTx persists the mutable fields a ledger transition may
// touch. Must run inside the transaction holding the row lock.
func (r *SubscriptionRepository) UpdateTransitionWithTx(ctx context.Context, tx pgx.Tx, s *subscription.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $1, start_date = $2, end_date = $3,
		    amount_paid_minor = $4, currency = $5, settlement_reference = $6,
		    status = $7, activated_at = $8, cancelled_at = $9,
		    cancellation_reason = $10, auto_renew = $11, updated_at = $12
		WHERE id = $13
	`

	result, err := tx.Exec(ctx, query,
		s.PlanID, s.StartDate, s.EndDate,
		s.AmountPaidMinor, s.Currency, s.SettlementReference,
		s.Status, s.ActivatedAt, s.CancelledAt,
		s.CancellationReason, s.AutoRenew, time.Now(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// UpdateAutoRenew flips the auto-renew flag outside of a transition
func (r *SubscriptionRepository) UpdateAutoRenew(ctx context.Context, id int64, autoRenew bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET auto_renew = $1, updated_at = $2 WHERE id = $3`,
		autoRenew, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update auto renew: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// List retrieves an account's subscriptions with filters
func (r *SubscriptionRepository) List(ctx context.Context, accountID int64, filters *subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error) {
	where := `WHERE account_id = $1`
	args := []interface{}{accountID}

	if filters.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, len(args)+1)
		args = append(args, *filters.Status)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM subscriptions ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, subscriptionColumns, where, len(args)+1, len(args)+2)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, *s)
	}

	return subs, total, rows.Err()
}

// ListExpiringWithin retrieves live subscriptions whose end date falls within
// the given window from now, used by the lifecycle sweep.
func (r *SubscriptionRepository) ListExpiringWithin(ctx context.Context, window time.Duration) ([]subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status = 'active'
		  AND start_date <= NOW()
		  AND end_date > NOW()
		  AND end_date <= NOW() + $1::interval
		ORDER BY end_date ASC
	`, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, window.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}

	return subs, rows.Err()
}

// ListOverdueActive retrieves subscriptions still marked active whose end
// date has passed; the sweep expires them through the ledger.
func (r *SubscriptionRepository) ListOverdueActive(ctx context.Context, limit int) ([]subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status = 'active' AND end_date <= NOW()
		ORDER BY end_date ASC
		LIMIT $1
	`, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}

	return subs, rows.Err()
}

// Stats aggregates subscription counts and revenue
func (r *SubscriptionRepository) Stats(ctx context.Context) (*subscription.SubscriptionStats, error) {
	var stats subscription.SubscriptionStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE status = 'expired'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COALESCE(SUM(amount_paid_minor), 0)
		FROM subscriptions
	`).Scan(
		&stats.TotalSubscriptions,
		&stats.ActiveSubscriptions,
		&stats.ExpiredSubscriptions,
		&stats.CancelledSubscriptions,
		&stats.TotalRevenueMinor,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate subscription stats: %w", err)
	}
	return &stats, nil
}
