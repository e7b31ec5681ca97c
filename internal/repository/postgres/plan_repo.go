// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soko-service/internal/domain/plan"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, plan_code, name, tier, summary,
	       price_minor, currency, duration_months,
	       unlimited_uploads, cross_category_leads, priority_listing, analytics_access,
	       max_packages, max_services, allowed_categories,
	       status, is_public, created_at, updated_at`

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.PlanCode, &p.Name, &p.Tier, &p.Summary,
		&p.PriceMinor, &p.Currency, &p.DurationMonths,
		&p.UnlimitedUploads, &p.CrossCategoryLeads, &p.PriorityListing, &p.AnalyticsAccess,
		&p.MaxPackages, &p.MaxServices, &p.AllowedCategories,
		&p.Status, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	return &p, nil
}

// Create creates a new plan
func (r *PlanRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (
			plan_code, name, tier, summary,
			price_minor, currency, duration_months,
			unlimited_uploads, cross_category_leads, priority_listing, analytics_access,
			max_packages, max_services, allowed_categories,
			status, is_public
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.PlanCode, p.Name, p.Tier, p.Summary,
		p.PriceMinor, p.Currency, p.DurationMonths,
		p.UnlimitedUploads, p.CrossCategoryLeads, p.PriorityListing, p.AnalyticsAccess,
		p.MaxPackages, p.MaxServices, p.AllowedCategories,
		p.Status, p.IsPublic,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if IsUniqueViolation(err) {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

// FindByID retrieves a plan by ID
func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE id = $1`, planColumns)
	return scanPlan(r.db.QueryRow(ctx, query, id))
}

// FindByCode retrieves a plan by its code
func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE plan_code = $1`, planColumns)
	return scanPlan(r.db.QueryRow(ctx, query, code))
}

// ListActive retrieves all active plans, public ones first
func (r *PlanRepository) ListActive(ctx context.Context) ([]plan.Plan, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM plans
		WHERE status = 'active'
		ORDER BY is_public DESC, price_minor ASC
	`, planColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}

	return plans, rows.Err()
}

// Update updates an editable plan field set. Limit and price changes only
// affect future purchases; live subscriptions keep their counter snapshots.
func (r *PlanRepository) Update(ctx context.Context, p *plan.Plan) error {
	query := `
		UPDATE plans
		SET name = $1, summary = $2,
		    price_minor = $3, duration_months = $4,
		    unlimited_uploads = $5, cross_category_leads = $6,
		    priority_listing = $7, analytics_access = $8,
		    max_packages = $9, max_services = $10, allowed_categories = $11,
		    is_public = $12, updated_at = $13
		WHERE id = $14
	`

	result, err := r.db.Exec(ctx, query,
		p.Name, p.Summary,
		p.PriceMinor, p.DurationMonths,
		p.UnlimitedUploads, p.CrossCategoryLeads,
		p.PriorityListing, p.AnalyticsAccess,
		p.MaxPackages, p.MaxServices, p.AllowedCategories,
		p.IsPublic, time.Now(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// SetStatus activates or deactivates a plan
func (r *PlanRepository) SetStatus(ctx context.Context, id int64, status plan.PlanStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE plans SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// CountLiveSubscriptions counts active subscriptions referencing the plan;
// plans with live references must not be deleted.
func (r *PlanRepository) CountLiveSubscriptions(ctx context.Context, planID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions
		WHERE plan_id = $1 AND status = 'active' AND end_date > NOW()
	`, planID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count live subscriptions: %w", err)
	}
	return count, nil
}

// Delete removes a plan. Callers must check CountLiveSubscriptions first.
func (r *PlanRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
