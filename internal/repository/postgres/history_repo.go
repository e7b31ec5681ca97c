// internal/repository/postgres/history_repo.go
package postgres

import (
	"context"
	"fmt"

	"soko-service/internal/domain/subscription"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendWithTx appends one audit entry inside the transition's transaction.
// Entries are only ever inserted, never updated or deleted; the serial id
// gives per-subscription commit order because the subscription row lock is
// held while inserting.
func (r *HistoryRepository) AppendWithTx(ctx context.Context, tx pgx.Tx, e *subscription.HistoryEntry) error {
	query := `
		INSERT INTO subscription_history (
			subscription_id, action, previous_plan_id, new_plan_id,
			amount_minor, actor, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		e.SubscriptionID, e.Action, e.PreviousPlanID, e.NewPlanID,
		e.AmountMinor, e.Actor, e.Note,
	).Scan(&e.ID, &e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	return nil
}

// ListBySubscription retrieves the audit trail in commit order
func (r *HistoryRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]subscription.HistoryEntry, error) {
	query := `
		SELECT id, subscription_id, action, previous_plan_id, new_plan_id,
		       amount_minor, actor, note, created_at
		FROM subscription_history
		WHERE subscription_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []subscription.HistoryEntry
	for rows.Next() {
		var e subscription.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.SubscriptionID, &e.Action, &e.PreviousPlanID, &e.NewPlanID,
			&e.AmountMinor, &e.Actor, &e.Note, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// CountByAction counts entries of one action for a subscription
func (r *HistoryRepository) CountByAction(ctx context.Context, subscriptionID int64, action subscription.HistoryAction) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscription_history WHERE subscription_id = $1 AND action = $2`,
		subscriptionID, action,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history entries: %w", err)
	}
	return count, nil
}
