// internal/repository/postgres/settlement_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soko-service/internal/domain/settlement"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettlementRepository struct {
	db *pgxpool.Pool
}

func NewSettlementRepository(db *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{db: db}
}

const settlementColumns = `id, reference, account_id, plan_id, purpose,
	       amount_minor, currency, status, subscription_id, failure_reason,
	       applied_at, created_at, updated_at`

func scanSettlement(row pgx.Row) (*settlement.Settlement, error) {
	var s settlement.Settlement
	err := row.Scan(
		&s.ID, &s.Reference, &s.AccountID, &s.PlanID, &s.Purpose,
		&s.AmountMinor, &s.Currency, &s.Status, &s.SubscriptionID, &s.FailureReason,
		&s.AppliedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan settlement: %w", err)
	}
	return &s, nil
}

// FindByReferenceForUpdate locks the settlement row carrying the gateway
// reference. Together with the unique key on reference this serializes
// concurrent deliveries of the same event.
func (r *SettlementRepository) FindByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*settlement.Settlement, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements WHERE reference = $1 FOR UPDATE`, settlementColumns)
	return scanSettlement(tx.QueryRow(ctx, query, reference))
}

// FindByReference retrieves a settlement without locking
func (r *SettlementRepository) FindByReference(ctx context.Context, reference string) (*settlement.Settlement, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements WHERE reference = $1`, settlementColumns)
	return scanSettlement(r.db.QueryRow(ctx, query, reference))
}

// FindByID retrieves a settlement by ID
func (r *SettlementRepository) FindByID(ctx context.Context, id int64) (*settlement.Settlement, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements WHERE id = $1`, settlementColumns)
	return scanSettlement(r.db.QueryRow(ctx, query, id))
}

// CreateWithTx inserts a new settlement in pending state. A racing insert of
// the same reference trips the unique key and surfaces as ErrDuplicateEntry;
// the caller re-reads the winner's row after it commits.
func (r *SettlementRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, s *settlement.Settlement) error {
	query := `
		INSERT INTO settlements (
			reference, account_id, plan_id, purpose,
			amount_minor, currency, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		s.Reference, s.AccountID, s.PlanID, s.Purpose,
		s.AmountMinor, s.Currency, s.Status,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		if IsUniqueViolation(err) {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	return nil
}

// MarkAppliedWithTx records the successful application inside the same
// transaction that committed the ledger transition.
func (r *SettlementRepository) MarkAppliedWithTx(ctx context.Context, tx pgx.Tx, id, subscriptionID int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE settlements
		SET status = 'applied', subscription_id = $1, failure_reason = NULL,
		    applied_at = $2, updated_at = $2
		WHERE id = $3
	`, subscriptionID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark settlement applied: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed application in its own transaction, after the
// applying transaction rolled back. The row keeps the original payload and
// stays eligible for retry with the same reference; an already applied row is
// never downgraded.
func (r *SettlementRepository) MarkFailed(ctx context.Context, s *settlement.Settlement, reason string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO settlements (reference, account_id, plan_id, purpose, amount_minor, currency, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, 'failed', $7)
		ON CONFLICT (reference)
		DO UPDATE SET status = 'failed', failure_reason = EXCLUDED.failure_reason, updated_at = NOW()
		WHERE settlements.status <> 'applied'
	`, s.Reference, s.AccountID, s.PlanID, s.Purpose, s.AmountMinor, s.Currency, reason)
	if err != nil {
		return fmt.Errorf("failed to mark settlement failed: %w", err)
	}
	return nil
}

// List retrieves settlements with filters, newest first
func (r *SettlementRepository) List(ctx context.Context, filters *settlement.SettlementListFilters) ([]settlement.Settlement, int64, error) {
	where := `WHERE 1=1`
	args := []interface{}{}

	if filters.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, len(args)+1)
		args = append(args, *filters.Status)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM settlements `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count settlements: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT %s FROM settlements %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, settlementColumns, where, len(args)+1, len(args)+2)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []settlement.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, 0, err
		}
		settlements = append(settlements, *s)
	}

	return settlements, total, rows.Err()
}
