// internal/service/usage/usage_service.go
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"soko-service/internal/domain/plan"
	"soko-service/internal/domain/subscription"
	"soko-service/internal/domain/usage"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type CounterRepository interface {
	FindForUpdate(ctx context.Context, tx pgx.Tx, subscriptionID int64, feature string) (*usage.FeatureCounter, error)
	Find(ctx context.Context, subscriptionID int64, feature string) (*usage.FeatureCounter, error)
	CreateWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64, feature string, limit sql.NullInt32) (*usage.FeatureCounter, error)
	IncrementWithTx(ctx context.Context, tx pgx.Tx, id int64) (int, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]usage.FeatureCounter, error)
}

type SubscriptionReader interface {
	FindLiveByAccount(ctx context.Context, accountID int64) (*subscription.Subscription, error)
}

type PlanRepository interface {
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// MeterService tallies feature use against plan limits. Increments run as a
// locked check-then-act: the counter row is locked, compared to its limit and
// only then bumped, so two concurrent uploads at limit-1 can never both pass.
type MeterService struct {
	db       TxBeginner
	counters CounterRepository
	subs     SubscriptionReader
	plans    PlanRepository
	logger   *zap.Logger
}

func NewMeterService(db TxBeginner, counters CounterRepository, subs SubscriptionReader, plans PlanRepository, logger *zap.Logger) *MeterService {
	return &MeterService{
		db:       db,
		counters: counters,
		subs:     subs,
		plans:    plans,
		logger:   logger,
	}
}

// Increment bumps the feature counter on the account's live subscription.
// A counter that does not exist yet is created with the plan's limit for that
// feature. Returns ErrLimitReached, with the counter unchanged, when the
// increment would pass the limit.
func (s *MeterService) Increment(ctx context.Context, accountID int64, feature string) (*usage.IncrementResult, error) {
	if feature != plan.FeaturePackages && feature != plan.FeatureServices {
		return nil, fmt.Errorf("%w: unknown feature %q", xerrors.ErrInvalidInput, feature)
	}

	sub, err := s.subs.FindLiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	counter, err := s.counters.FindForUpdate(ctx, tx, sub.ID, feature)
	if errors.Is(err, xerrors.ErrNotFound) {
		counter, err = s.createCounter(ctx, tx, sub, feature)
	}
	if err != nil {
		return nil, err
	}

	if counter.LimitReached() {
		return nil, fmt.Errorf("%w: %s at %d/%d", xerrors.ErrLimitReached,
			feature, counter.UsageCount, counter.LimitValue.Int32)
	}

	newCount, err := s.counters.IncrementWithTx(ctx, tx, counter.ID)
	if err != nil {
		return nil, fmt.Errorf("increment counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	counter.UsageCount = newCount
	return &usage.IncrementResult{
		NewCount:     newCount,
		LimitReached: counter.LimitReached(),
	}, nil
}

// createCounter lazily materializes the counter row with the limit the plan
// carries for the feature. The repo upserts, so a concurrent creator winning
// the race just hands us its locked row.
func (s *MeterService) createCounter(ctx context.Context, tx pgx.Tx, sub *subscription.Subscription, feature string) (*usage.FeatureCounter, error) {
	p, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}

	var limit sql.NullInt32
	if v, ok := p.LimitFor(feature); ok {
		limit = sql.NullInt32{Int32: int32(v), Valid: true}
	}

	counter, err := s.counters.CreateWithTx(ctx, tx, sub.ID, feature, limit)
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return counter, nil
}

// CurrentUsage returns the counter snapshot for one feature on the account's
// live subscription. A counter never touched reads as zero.
func (s *MeterService) CurrentUsage(ctx context.Context, accountID int64, feature string) (*usage.FeatureCounter, error) {
	sub, err := s.subs.FindLiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	counter, err := s.counters.Find(ctx, sub.ID, feature)
	if errors.Is(err, xerrors.ErrNotFound) {
		p, perr := s.plans.FindByID(ctx, sub.PlanID)
		if perr != nil {
			return nil, perr
		}
		counter = &usage.FeatureCounter{
			SubscriptionID: sub.ID,
			FeatureName:    feature,
		}
		if v, ok := p.LimitFor(feature); ok {
			counter.LimitValue = sql.NullInt32{Int32: int32(v), Valid: true}
		}
		return counter, nil
	}
	return counter, err
}

// ListCounters returns all counters on a subscription.
func (s *MeterService) ListCounters(ctx context.Context, subscriptionID int64) ([]usage.FeatureCounter, error) {
	return s.counters.ListBySubscription(ctx, subscriptionID)
}
