// internal/repository/postgres/alert_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soko-service/internal/domain/alert"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AlertRepository struct {
	db *pgxpool.Pool
}

func NewAlertRepository(db *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, subscription_id, account_id, type, priority, message,
	       alert_date, sent, sent_at, created_at`

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var a alert.Alert
	err := row.Scan(
		&a.ID, &a.SubscriptionID, &a.AccountID, &a.Type, &a.Priority, &a.Message,
		&a.AlertDate, &a.Sent, &a.SentAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	return &a, nil
}

// CreateOncePerDay inserts the alert unless one of the same type already
// exists for the subscription on the same UTC date. Returns
// ErrDuplicateEntry when today's alert was already decided.
func (r *AlertRepository) CreateOncePerDay(ctx context.Context, a *alert.Alert) error {
	query := `
		INSERT INTO alerts (subscription_id, account_id, type, priority, message, alert_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subscription_id, type, alert_date) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		a.SubscriptionID, a.AccountID, a.Type, a.Priority, a.Message, a.AlertDate,
	).Scan(&a.ID, &a.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// MarkSent flags the alert as dispatched. Dispatch is best-effort; an alert
// row without the sent flag is a notification that never left the building,
// not an error.
func (r *AlertRepository) MarkSent(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE alerts SET sent = TRUE, sent_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ListByAccount retrieves an account's alerts, newest first
func (r *AlertRepository) ListByAccount(ctx context.Context, accountID int64, filters *alert.AlertListFilters) ([]alert.Alert, int64, error) {
	where := `WHERE account_id = $1`
	args := []interface{}{accountID}

	if filters.Type != nil {
		where += fmt.Sprintf(` AND type = $%d`, len(args)+1)
		args = append(args, *filters.Type)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM alerts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT %s FROM alerts %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, alertColumns, where, len(args)+1, len(args)+2)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, *a)
	}

	return alerts, total, rows.Err()
}
