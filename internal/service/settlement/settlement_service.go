// internal/service/settlement/settlement_service.go
package settlement

import (
	"context"
	"errors"
	"fmt"

	"soko-service/internal/domain/plan"
	"soko-service/internal/domain/settlement"
	"soko-service/internal/domain/subscription"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SettlementRepository is the bridge's storage surface. The settlements table
// carries a unique index on reference; together with the row lock that index
// is what makes application exactly-once.
type SettlementRepository interface {
	FindByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*settlement.Settlement, error)
	FindByReference(ctx context.Context, reference string) (*settlement.Settlement, error)
	FindByID(ctx context.Context, id int64) (*settlement.Settlement, error)
	CreateWithTx(ctx context.Context, tx pgx.Tx, s *settlement.Settlement) error
	MarkAppliedWithTx(ctx context.Context, tx pgx.Tx, id, subscriptionID int64) error
	MarkFailed(ctx context.Context, s *settlement.Settlement, reason string) error
	List(ctx context.Context, filters *settlement.SettlementListFilters) ([]settlement.Settlement, int64, error)
}

type PlanRepository interface {
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
}

type SubscriptionLocker interface {
	FindLiveByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error)
	FindCurrentByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error)
}

// Ledger is the slice of the subscription state machine the bridge drives.
// Every method joins the bridge's transaction.
type Ledger interface {
	ActivateNewWithTx(ctx context.Context, tx pgx.Tx, stl *settlement.Settlement, p *plan.Plan) (*subscription.Subscription, error)
	RenewWithTx(ctx context.Context, tx pgx.Tx, sub *subscription.Subscription, p *plan.Plan, stl *settlement.Settlement) error
	ChangePlanWithTx(ctx context.Context, tx pgx.Tx, sub *subscription.Subscription, newPlan *plan.Plan, stl *settlement.Settlement) (subscription.HistoryAction, error)
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// AlertEmitter records a payment-failed alert. Best-effort; never blocks the
// settlement outcome.
type AlertEmitter interface {
	EmitPaymentFailed(ctx context.Context, subscriptionID, accountID int64, reason string)
}

// SettlementService applies verified gateway payments to the ledger. A
// settlement and the transition it drives commit in one transaction, so a
// reference observed as applied always has its subscription row alongside.
type SettlementService struct {
	db     TxBeginner
	repo   SettlementRepository
	plans  PlanRepository
	subs   SubscriptionLocker
	ledger Ledger
	alerts AlertEmitter
	logger *zap.Logger
}

func NewSettlementService(
	db TxBeginner,
	repo SettlementRepository,
	plans PlanRepository,
	subs SubscriptionLocker,
	ledger Ledger,
	alerts AlertEmitter,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		db:     db,
		repo:   repo,
		plans:  plans,
		subs:   subs,
		ledger: ledger,
		alerts: alerts,
		logger: logger,
	}
}

// Apply processes one settlement report. Redelivery of an already applied
// reference returns the first application's result with Duplicate set; a
// reference recorded as failed is retried in place. Two concurrent deliveries
// of the same reference serialize on the row lock and the unique index, so
// exactly one of them drives a transition.
func (s *SettlementService) Apply(ctx context.Context, req *settlement.ReportSettlementRequest) (*settlement.Result, error) {
	if !req.Purpose.IsValid() {
		return nil, fmt.Errorf("%w: unknown settlement purpose %q", xerrors.ErrInvalidInput, req.Purpose)
	}

	p, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, s.recordFailure(ctx, req, 0, "plan not found")
		}
		return nil, err
	}
	if p.Status != plan.StatusActive {
		return nil, s.recordFailure(ctx, req, 0, "plan is not purchasable")
	}
	if req.AmountMinor != p.PriceMinor || req.Currency != p.Currency {
		return nil, s.recordFailure(ctx, req, 0, "amount does not match plan price")
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stl, err := s.repo.FindByReferenceForUpdate(ctx, tx, req.Reference)
	switch {
	case err == nil:
		if stl.Status == settlement.StatusApplied {
			return duplicateResult(stl), nil
		}
		// Failed earlier; retry under the same reference.
		stl.AccountID = req.AccountID
		stl.PlanID = req.PlanID
		stl.Purpose = req.Purpose
		stl.AmountMinor = req.AmountMinor
		stl.Currency = req.Currency
	case errors.Is(err, xerrors.ErrNotFound):
		stl = &settlement.Settlement{
			Reference:   req.Reference,
			AccountID:   req.AccountID,
			PlanID:      req.PlanID,
			Purpose:     req.Purpose,
			AmountMinor: req.AmountMinor,
			Currency:    req.Currency,
			Status:      settlement.StatusPending,
		}
		if err := s.repo.CreateWithTx(ctx, tx, stl); err != nil {
			if errors.Is(err, xerrors.ErrDuplicateEntry) {
				// Lost the insert race. The winner's transaction holds the
				// row; re-read it after our aborted transaction is gone.
				tx.Rollback(ctx)
				return s.resolveDuplicate(ctx, req.Reference)
			}
			return nil, fmt.Errorf("create settlement: %w", err)
		}
	default:
		return nil, err
	}

	sub, err := s.route(ctx, tx, stl, p)
	if err != nil {
		tx.Rollback(ctx)
		return nil, s.recordFailure(ctx, req, subscriptionIDOf(sub), reasonOf(err))
	}

	if err := s.repo.MarkAppliedWithTx(ctx, tx, stl.ID, sub.ID); err != nil {
		return nil, fmt.Errorf("mark applied: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("settlement applied",
		zap.String("reference", stl.Reference),
		zap.String("purpose", string(stl.Purpose)),
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("account_id", stl.AccountID),
	)

	return &settlement.Result{
		Applied:        true,
		SubscriptionID: sub.ID,
		Status:         string(settlement.StatusApplied),
	}, nil
}

// route drives the ledger transition matching the settlement purpose. The
// relevant subscription rows are locked here so the bridge and the ledger
// agree on ordering.
func (s *SettlementService) route(ctx context.Context, tx pgx.Tx, stl *settlement.Settlement, p *plan.Plan) (*subscription.Subscription, error) {
	switch stl.Purpose {
	case settlement.PurposeNew:
		_, err := s.subs.FindLiveByAccountForUpdate(ctx, tx, stl.AccountID)
		if err == nil {
			return nil, fmt.Errorf("%w: account already has a live subscription", xerrors.ErrConflict)
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return s.ledger.ActivateNewWithTx(ctx, tx, stl, p)

	case settlement.PurposeRenewal:
		sub, err := s.subs.FindCurrentByAccountForUpdate(ctx, tx, stl.AccountID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: no subscription to renew", xerrors.ErrNotFound)
			}
			return nil, err
		}
		if err := s.ledger.RenewWithTx(ctx, tx, sub, p, stl); err != nil {
			return sub, err
		}
		return sub, nil

	case settlement.PurposeUpgrade:
		sub, err := s.subs.FindLiveByAccountForUpdate(ctx, tx, stl.AccountID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: no live subscription to change plan on", xerrors.ErrNotFound)
			}
			return nil, err
		}
		if _, err := s.ledger.ChangePlanWithTx(ctx, tx, sub, p, stl); err != nil {
			return sub, err
		}
		return sub, nil
	}
	return nil, fmt.Errorf("%w: unknown settlement purpose %q", xerrors.ErrInvalidInput, stl.Purpose)
}

// resolveDuplicate reads the winner of an insert race. The winner may still
// be mid-transaction; a plain read then misses the row and the caller is told
// to redeliver.
func (s *SettlementService) resolveDuplicate(ctx context.Context, reference string) (*settlement.Result, error) {
	stl, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: settlement %s is being processed", xerrors.ErrConflict, reference)
		}
		return nil, err
	}
	if stl.Status == settlement.StatusApplied {
		return duplicateResult(stl), nil
	}
	return nil, fmt.Errorf("%w: settlement %s is being processed", xerrors.ErrConflict, reference)
}

// recordFailure persists a failed settlement outside the aborted transaction
// so the reference stays visible and retryable, then returns the original
// failure to the caller.
func (s *SettlementService) recordFailure(ctx context.Context, req *settlement.ReportSettlementRequest, subscriptionID int64, reason string) error {
	stl := &settlement.Settlement{
		Reference:   req.Reference,
		AccountID:   req.AccountID,
		PlanID:      req.PlanID,
		Purpose:     req.Purpose,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	if err := s.repo.MarkFailed(ctx, stl, reason); err != nil {
		s.logger.Error("failed to record settlement failure",
			zap.String("reference", req.Reference),
			zap.Error(err),
		)
	}

	s.logger.Warn("settlement failed",
		zap.String("reference", req.Reference),
		zap.Int64("account_id", req.AccountID),
		zap.String("reason", reason),
	)

	if s.alerts != nil && subscriptionID > 0 {
		s.alerts.EmitPaymentFailed(ctx, subscriptionID, req.AccountID, reason)
	}

	return fmt.Errorf("settlement %s failed: %s", req.Reference, reason)
}

// GetByReference returns the settlement recorded under a gateway reference.
func (s *SettlementService) GetByReference(ctx context.Context, reference string) (*settlement.Settlement, error) {
	return s.repo.FindByReference(ctx, reference)
}

// RetryFailed re-applies a settlement previously recorded as failed, using
// the fields it was recorded with. Applied settlements are never re-run.
func (s *SettlementService) RetryFailed(ctx context.Context, id int64) (*settlement.Result, error) {
	stl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stl.Status != settlement.StatusFailed {
		return nil, fmt.Errorf("%w: settlement %s is %s, only failed settlements can be retried",
			xerrors.ErrConflict, stl.Reference, stl.Status)
	}

	return s.Apply(ctx, &settlement.ReportSettlementRequest{
		Reference:   stl.Reference,
		AccountID:   stl.AccountID,
		PlanID:      stl.PlanID,
		AmountMinor: stl.AmountMinor,
		Currency:    stl.Currency,
		Purpose:     stl.Purpose,
	})
}

// ListSettlements pages through recorded settlements for the admin surface.
func (s *SettlementService) ListSettlements(ctx context.Context, filters *settlement.SettlementListFilters) ([]settlement.Settlement, int64, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	return s.repo.List(ctx, filters)
}

func duplicateResult(stl *settlement.Settlement) *settlement.Result {
	return &settlement.Result{
		Applied:        true,
		Duplicate:      true,
		SubscriptionID: stl.SubscriptionID.Int64,
		Status:         string(stl.Status),
	}
}

func subscriptionIDOf(sub *subscription.Subscription) int64 {
	if sub == nil {
		return 0
	}
	return sub.ID
}

func reasonOf(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}
