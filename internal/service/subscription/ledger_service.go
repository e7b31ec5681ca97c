// internal/service/subscription/ledger_service.go
package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"soko-service/internal/domain/plan"
	"soko-service/internal/domain/settlement"
	"soko-service/internal/domain/subscription"
	"soko-service/internal/domain/usage"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// SubscriptionRepository is the ledger's storage surface. All transition
// writes go through pgx.Tx so a settlement and its subscription move commit
// or roll back together.
type SubscriptionRepository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, s *subscription.Subscription) error
	FindByID(ctx context.Context, id int64) (*subscription.Subscription, error)
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*subscription.Subscription, error)
	FindLiveByAccount(ctx context.Context, accountID int64) (*subscription.Subscription, error)
	FindLiveByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error)
	FindCurrentByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error)
	UpdateTransitionWithTx(ctx context.Context, tx pgx.Tx, s *subscription.Subscription) error
	UpdateAutoRenew(ctx context.Context, id int64, autoRenew bool) error
	List(ctx context.Context, accountID int64, filters *subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error)
	Stats(ctx context.Context) (*subscription.SubscriptionStats, error)
}

type HistoryRepository interface {
	AppendWithTx(ctx context.Context, tx pgx.Tx, e *subscription.HistoryEntry) error
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]subscription.HistoryEntry, error)
}

type CounterRepository interface {
	ReplaceLimitsWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64, limits map[string]sql.NullInt32) error
	ResetAllWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64) error
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]usage.FeatureCounter, error)
}

type PlanRepository interface {
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// ExpiryPublisher fans out the expired event after the transition committed.
type ExpiryPublisher interface {
	PublishExpired(ctx context.Context, ev subscription.ExpiredEvent)
}

// LedgerService owns the subscription state machine. Every transition runs
// under SELECT ... FOR UPDATE on the subscription row, so concurrent
// settlements, cancellations and the expiry sweeper serialize per
// subscription and history IDs record commit order.
type LedgerService struct {
	db       TxBeginner
	subs     SubscriptionRepository
	history  HistoryRepository
	counters CounterRepository
	plans    PlanRepository
	events   ExpiryPublisher
	logger   *zap.Logger
}

func NewLedgerService(
	db TxBeginner,
	subs SubscriptionRepository,
	history HistoryRepository,
	counters CounterRepository,
	plans PlanRepository,
	events ExpiryPublisher,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		db:       db,
		subs:     subs,
		history:  history,
		counters: counters,
		plans:    plans,
		events:   events,
		logger:   logger,
	}
}

// ActivateNewWithTx creates and activates a subscription for a settlement
// with purpose "new". The caller holds the transaction; any live subscription
// the account already has must have been locked first.
func (s *LedgerService) ActivateNewWithTx(ctx context.Context, tx pgx.Tx, stl *settlement.Settlement, p *plan.Plan) (*subscription.Subscription, error) {
	now := time.Now().UTC()
	sub := &subscription.Subscription{
		SubscriptionReference: ulid.Make().String(),
		AccountID:             stl.AccountID,
		PlanID:                p.ID,
		StartDate:             now,
		EndDate:               now.AddDate(0, p.DurationMonths, 0),
		AutoRenew:             false,
		AmountPaidMinor:       stl.AmountMinor,
		Currency:              stl.Currency,
		SettlementReference:   sql.NullString{String: stl.Reference, Valid: true},
		Status:                subscription.StatusActive,
		ActivatedAt:           sql.NullTime{Time: now, Valid: true},
	}
	if err := s.subs.CreateWithTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	if err := s.history.AppendWithTx(ctx, tx, &subscription.HistoryEntry{
		SubscriptionID: sub.ID,
		Action:         subscription.ActionCreated,
		NewPlanID:      sql.NullInt64{Int64: p.ID, Valid: true},
		AmountMinor:    stl.AmountMinor,
		Actor:          "settlement:" + stl.Reference,
	}); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if err := s.counters.ReplaceLimitsWithTx(ctx, tx, sub.ID, planLimits(p)); err != nil {
		return nil, fmt.Errorf("seed counters: %w", err)
	}

	return sub, nil
}

// RenewWithTx extends a locked subscription by one full plan term. An active
// subscription extends from its current end date; an expired one restarts
// from now. Feature counters reset to zero for the new term.
func (s *LedgerService) RenewWithTx(ctx context.Context, tx pgx.Tx, sub *subscription.Subscription, p *plan.Plan, stl *settlement.Settlement) error {
	if !sub.CanTransition(subscription.ActionRenewed) {
		return fmt.Errorf("%w: cannot renew subscription in status %s", xerrors.ErrInvalidTransition, sub.Status)
	}
	if sub.PlanID != p.ID {
		return fmt.Errorf("%w: renewal settlement plan %d does not match subscription plan %d",
			xerrors.ErrInvalidInput, p.ID, sub.PlanID)
	}

	now := time.Now().UTC()
	base := now
	if sub.Status == subscription.StatusActive && sub.EndDate.After(now) {
		base = sub.EndDate
	} else {
		sub.StartDate = now
	}
	sub.EndDate = base.AddDate(0, p.DurationMonths, 0)
	sub.Status = subscription.StatusActive
	sub.AmountPaidMinor = stl.AmountMinor
	sub.Currency = stl.Currency
	sub.SettlementReference = sql.NullString{String: stl.Reference, Valid: true}

	if err := s.subs.UpdateTransitionWithTx(ctx, tx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	if err := s.history.AppendWithTx(ctx, tx, &subscription.HistoryEntry{
		SubscriptionID: sub.ID,
		Action:         subscription.ActionRenewed,
		PreviousPlanID: sql.NullInt64{Int64: sub.PlanID, Valid: true},
		NewPlanID:      sql.NullInt64{Int64: p.ID, Valid: true},
		AmountMinor:    stl.AmountMinor,
		Actor:          "settlement:" + stl.Reference,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if err := s.counters.ResetAllWithTx(ctx, tx, sub.ID); err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}

	return nil
}

// ChangePlanWithTx moves a locked active subscription onto a different plan.
// The direction (upgrade vs downgrade) follows price comparison against the
// current plan. The term resets in full: the new plan's duration starts now,
// and counters restart at zero with the new plan's limits.
func (s *LedgerService) ChangePlanWithTx(ctx context.Context, tx pgx.Tx, sub *subscription.Subscription, newPlan *plan.Plan, stl *settlement.Settlement) (subscription.HistoryAction, error) {
	if sub.Status != subscription.StatusActive {
		return "", fmt.Errorf("%w: cannot change plan of subscription in status %s", xerrors.ErrInvalidTransition, sub.Status)
	}
	if sub.PlanID == newPlan.ID {
		return "", fmt.Errorf("%w: subscription already on plan %d", xerrors.ErrInvalidInput, newPlan.ID)
	}

	current, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return "", fmt.Errorf("load current plan: %w", err)
	}

	action := subscription.ActionUpgraded
	if newPlan.PriceMinor < current.PriceMinor {
		action = subscription.ActionDowngraded
	}

	now := time.Now().UTC()
	previousPlanID := sub.PlanID
	sub.PlanID = newPlan.ID
	sub.StartDate = now
	sub.EndDate = now.AddDate(0, newPlan.DurationMonths, 0)
	sub.AmountPaidMinor = stl.AmountMinor
	sub.Currency = stl.Currency
	sub.SettlementReference = sql.NullString{String: stl.Reference, Valid: true}

	if err := s.subs.UpdateTransitionWithTx(ctx, tx, sub); err != nil {
		return "", fmt.Errorf("update subscription: %w", err)
	}

	if err := s.history.AppendWithTx(ctx, tx, &subscription.HistoryEntry{
		SubscriptionID: sub.ID,
		Action:         action,
		PreviousPlanID: sql.NullInt64{Int64: previousPlanID, Valid: true},
		NewPlanID:      sql.NullInt64{Int64: newPlan.ID, Valid: true},
		AmountMinor:    stl.AmountMinor,
		Actor:          "settlement:" + stl.Reference,
	}); err != nil {
		return "", fmt.Errorf("append history: %w", err)
	}

	if err := s.counters.ReplaceLimitsWithTx(ctx, tx, sub.ID, planLimits(newPlan)); err != nil {
		return "", fmt.Errorf("replace counters: %w", err)
	}

	return action, nil
}

// Cancel ends the subscription immediately. Entitlements stop at commit, not
// at the period end, and there is no resurrection path afterwards.
func (s *LedgerService) Cancel(ctx context.Context, id, accountID int64, reason string) (*subscription.Subscription, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.subs.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub.AccountID != accountID {
		return nil, xerrors.ErrForbidden
	}
	if !sub.CanTransition(subscription.ActionCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel subscription in status %s", xerrors.ErrInvalidTransition, sub.Status)
	}

	now := time.Now().UTC()
	sub.Status = subscription.StatusCancelled
	sub.AutoRenew = false
	sub.CancelledAt = sql.NullTime{Time: now, Valid: true}
	sub.CancellationReason = sql.NullString{String: reason, Valid: reason != ""}

	if err := s.subs.UpdateTransitionWithTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	if err := s.history.AppendWithTx(ctx, tx, &subscription.HistoryEntry{
		SubscriptionID: sub.ID,
		Action:         subscription.ActionCancelled,
		PreviousPlanID: sql.NullInt64{Int64: sub.PlanID, Valid: true},
		Actor:          fmt.Sprintf("account:%d", accountID),
		Note:           sql.NullString{String: reason, Valid: reason != ""},
	}); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("subscription cancelled",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("account_id", accountID),
	)
	return sub, nil
}

// Expire moves an overdue active subscription to expired and publishes the
// expiry event after commit. Expiring an already expired or cancelled
// subscription is a no-op so the sweeper can always retry a batch.
func (s *LedgerService) Expire(ctx context.Context, id int64) (*subscription.Subscription, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.subs.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusExpired || sub.Status == subscription.StatusCancelled {
		return sub, nil
	}
	if !sub.CanTransition(subscription.ActionExpired) {
		return nil, fmt.Errorf("%w: cannot expire subscription in status %s", xerrors.ErrInvalidTransition, sub.Status)
	}

	now := time.Now().UTC()
	sub.Status = subscription.StatusExpired

	if err := s.subs.UpdateTransitionWithTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	if err := s.history.AppendWithTx(ctx, tx, &subscription.HistoryEntry{
		SubscriptionID: sub.ID,
		Action:         subscription.ActionExpired,
		PreviousPlanID: sql.NullInt64{Int64: sub.PlanID, Valid: true},
		Actor:          "system:expiry",
	}); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("subscription expired",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("account_id", sub.AccountID),
	)

	if s.events != nil {
		s.events.PublishExpired(ctx, subscription.ExpiredEvent{
			SubscriptionID: sub.ID,
			AccountID:      sub.AccountID,
			PreviousPlanID: sub.PlanID,
			ExpiredAt:      now,
		})
	}

	return sub, nil
}

// GetSubscription returns a subscription owned by the given account.
func (s *LedgerService) GetSubscription(ctx context.Context, id, accountID int64) (*subscription.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.AccountID != accountID {
		return nil, xerrors.ErrForbidden
	}
	return sub, nil
}

// GetLiveSubscription returns the account's currently live subscription, or
// ErrNotFound when there is none.
func (s *LedgerService) GetLiveSubscription(ctx context.Context, accountID int64) (*subscription.Subscription, error) {
	return s.subs.FindLiveByAccount(ctx, accountID)
}

// ListSubscriptions pages through the account's subscriptions, newest first.
func (s *LedgerService) ListSubscriptions(ctx context.Context, accountID int64, filters *subscription.SubscriptionListFilters) (*subscription.SubscriptionListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	subs, total, err := s.subs.List(ctx, accountID, filters)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(filters.PageSize) - 1) / int64(filters.PageSize))
	return &subscription.SubscriptionListResponse{
		Subscriptions: subs,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
		TotalPages:    totalPages,
	}, nil
}

// GetHistory returns the subscription's audit trail in commit order.
func (s *LedgerService) GetHistory(ctx context.Context, id, accountID int64) ([]subscription.HistoryEntry, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.AccountID != accountID {
		return nil, xerrors.ErrForbidden
	}
	return s.history.ListBySubscription(ctx, id)
}

// GetUsage reports the live subscription's counters against their limits.
func (s *LedgerService) GetUsage(ctx context.Context, accountID int64) (*subscription.SubscriptionUsageInfo, error) {
	sub, err := s.subs.FindLiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	counters, err := s.counters.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	info := &subscription.SubscriptionUsageInfo{
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		EndDate:        sub.EndDate,
		Counters:       make([]subscription.CounterUsage, 0, len(counters)),
	}
	for _, c := range counters {
		cu := subscription.CounterUsage{
			Feature: c.FeatureName,
			Used:    c.UsageCount,
		}
		if c.LimitValue.Valid {
			limit := int(c.LimitValue.Int32)
			remaining := limit - c.UsageCount
			if remaining < 0 {
				remaining = 0
			}
			cu.Limit = &limit
			cu.Remaining = &remaining
		}
		info.Counters = append(info.Counters, cu)
	}
	return info, nil
}

// SetAutoRenew flips the auto-renew flag on an owned subscription.
func (s *LedgerService) SetAutoRenew(ctx context.Context, id, accountID int64, autoRenew bool) error {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.AccountID != accountID {
		return xerrors.ErrForbidden
	}
	return s.subs.UpdateAutoRenew(ctx, id, autoRenew)
}

// GetStats aggregates ledger counts for the admin dashboard.
func (s *LedgerService) GetStats(ctx context.Context) (*subscription.SubscriptionStats, error) {
	return s.subs.Stats(ctx)
}

// planLimits maps a plan's numeric limits onto feature counter seeds.
// A NULL limit means the counter tallies without ever blocking.
func planLimits(p *plan.Plan) map[string]sql.NullInt32 {
	return map[string]sql.NullInt32{
		plan.FeaturePackages: p.MaxPackages,
		plan.FeatureServices: p.MaxServices,
	}
}
