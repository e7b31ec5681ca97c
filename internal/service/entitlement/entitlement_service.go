// internal/service/entitlement/entitlement_service.go
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"soko-service/internal/domain/entitlement"
	"soko-service/internal/domain/plan"
	"soko-service/internal/domain/subscription"
	"soko-service/internal/domain/usage"
	xerrors "soko-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type SubscriptionReader interface {
	FindLiveByAccount(ctx context.Context, accountID int64) (*subscription.Subscription, error)
}

type PlanRepository interface {
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
}

type CounterReader interface {
	Find(ctx context.Context, subscriptionID int64, feature string) (*usage.FeatureCounter, error)
}

// Meter is the slice of the usage meter the gate records through.
type Meter interface {
	Increment(ctx context.Context, accountID int64, feature string) (*usage.IncrementResult, error)
}

// GateService answers "may this account do this right now". Checks run in a
// fixed order (subscription, business-category fit, plan limit) and denials
// come back as decisions, not errors, so callers always get a reason they can
// show the provider. The check itself is advisory; the authoritative limit
// enforcement happens in RecordUsage under the counter row lock.
type GateService struct {
	subs     SubscriptionReader
	plans    PlanRepository
	counters CounterReader
	meter    Meter
	logger   *zap.Logger
}

func NewGateService(subs SubscriptionReader, plans PlanRepository, counters CounterReader, meter Meter, logger *zap.Logger) *GateService {
	return &GateService{
		subs:     subs,
		plans:    plans,
		counters: counters,
		meter:    meter,
		logger:   logger,
	}
}

// CanPerform evaluates one gated action for the account.
func (s *GateService) CanPerform(ctx context.Context, accountID int64, req *entitlement.CheckRequest) (entitlement.Decision, error) {
	if !req.Action.IsValid() {
		return entitlement.Decision{}, fmt.Errorf("%w: unknown action %q", xerrors.ErrInvalidInput, req.Action)
	}
	if req.Action == entitlement.ActionUploadService && req.ServiceType == "" {
		return entitlement.Decision{}, fmt.Errorf("%w: service_type is required for %s", xerrors.ErrInvalidInput, req.Action)
	}

	sub, err := s.subs.FindLiveByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return entitlement.Deny("no active subscription"), nil
		}
		return entitlement.Decision{}, err
	}

	p, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return entitlement.Decision{}, err
	}

	switch req.Action {
	case entitlement.ActionUploadPackage:
		if !entitlement.CategoryAllowsPackages(req.BusinessCategory) && !p.UnlimitedUploads {
			return entitlement.Deny("business type cannot upload packages"), nil
		}
		return s.checkLimit(ctx, sub.ID, p, plan.FeaturePackages)

	case entitlement.ActionUploadService:
		if !entitlement.CategoryAllowsService(req.BusinessCategory, req.ServiceType) && !p.UnlimitedUploads {
			return entitlement.Deny(fmt.Sprintf("business type mismatch: %s cannot upload %s",
				req.BusinessCategory, req.ServiceType)), nil
		}
		return s.checkLimit(ctx, sub.ID, p, plan.FeatureServices)
	}

	return entitlement.Decision{}, fmt.Errorf("%w: unknown action %q", xerrors.ErrInvalidInput, req.Action)
}

// checkLimit denies when the feature counter already sits at its plan limit.
// Plans with unlimited uploads skip the counter entirely.
func (s *GateService) checkLimit(ctx context.Context, subscriptionID int64, p *plan.Plan, feature string) (entitlement.Decision, error) {
	if p.UnlimitedUploads {
		return entitlement.Allow(), nil
	}

	limit, ok := p.LimitFor(feature)
	if !ok {
		return entitlement.Allow(), nil
	}

	counter, err := s.counters.Find(ctx, subscriptionID, feature)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			// Never used the feature yet.
			return entitlement.Allow(), nil
		}
		return entitlement.Decision{}, err
	}

	if counter.UsageCount >= limit {
		return entitlement.Deny(fmt.Sprintf("limit reached: %d/%d", counter.UsageCount, limit)), nil
	}
	return entitlement.Allow(), nil
}

// RecordUsage commits one unit of feature use after the guarded creation
// succeeded. This is the enforcing half of the gate: the meter locks the
// counter and refuses increments past the limit.
func (s *GateService) RecordUsage(ctx context.Context, accountID int64, req *entitlement.RecordUsageRequest) (*entitlement.RecordUsageResponse, error) {
	result, err := s.meter.Increment(ctx, accountID, req.Feature)
	if err != nil {
		return nil, err
	}

	if result.LimitReached {
		s.logger.Info("feature limit hit",
			zap.Int64("account_id", accountID),
			zap.String("feature", req.Feature),
			zap.Int("count", result.NewCount),
		)
	}

	return &entitlement.RecordUsageResponse{
		Count:        result.NewCount,
		LimitReached: result.LimitReached,
	}, nil
}
