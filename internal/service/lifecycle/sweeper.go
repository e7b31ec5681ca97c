// internal/service/lifecycle/sweeper.go
package lifecycle

import (
	"context"
	"time"

	"soko-service/internal/domain/subscription"
	"soko-service/internal/domain/usage"

	"go.uber.org/zap"
)

const (
	expiryWarningWindow = 7 * 24 * time.Hour
	renewalReminderDays = 3
	nearLimitFraction   = 0.9
	expireBatchSize     = 200
)

type SubscriptionRepository interface {
	FindByID(ctx context.Context, id int64) (*subscription.Subscription, error)
	ListExpiringWithin(ctx context.Context, window time.Duration) ([]subscription.Subscription, error)
	ListOverdueActive(ctx context.Context, limit int) ([]subscription.Subscription, error)
}

type CounterRepository interface {
	ListNearLimit(ctx context.Context, fraction float64) ([]usage.FeatureCounter, error)
}

// Ledger is the transition surface the sweeper drives. Expire is idempotent,
// so overlapping sweeps and crashed batches are safe to rerun.
type Ledger interface {
	Expire(ctx context.Context, id int64) (*subscription.Subscription, error)
}

// Alerts is the dispatcher surface. Per-day dedup lives behind it, so the
// sweeper emits freely every pass.
type Alerts interface {
	EmitExpiryWarning(ctx context.Context, subscriptionID, accountID int64, daysLeft int)
	EmitRenewalReminder(ctx context.Context, subscriptionID, accountID int64, endDate time.Time)
	EmitFeatureLimit(ctx context.Context, subscriptionID, accountID int64, feature string, used, limit int)
	EmitUpgradeSuggestion(ctx context.Context, subscriptionID, accountID int64, feature string)
	EmitExpired(ctx context.Context, subscriptionID, accountID int64)
}

// Sweeper walks the ledger on a fixed interval: warns ahead of expiry,
// expires overdue subscriptions and flags counters close to their limit.
type Sweeper struct {
	subs     SubscriptionRepository
	counters CounterRepository
	ledger   Ledger
	alerts   Alerts
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(subs SubscriptionRepository, counters CounterRepository, ledger Ledger, alerts Alerts, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		subs:     subs,
		counters: counters,
		ledger:   ledger,
		alerts:   alerts,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("lifecycle sweeper started", zap.Duration("interval", s.interval))

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Each stage logs and continues on error; a broken
// database moment should not skip the stages after it.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.expireOverdue(ctx)
	s.warnExpiring(ctx)
	s.warnNearLimit(ctx)
}

func (s *Sweeper) expireOverdue(ctx context.Context) {
	subs, err := s.subs.ListOverdueActive(ctx, expireBatchSize)
	if err != nil {
		s.logger.Error("failed to list overdue subscriptions", zap.Error(err))
		return
	}

	for _, sub := range subs {
		if _, err := s.ledger.Expire(ctx, sub.ID); err != nil {
			s.logger.Error("failed to expire subscription",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		s.alerts.EmitExpired(ctx, sub.ID, sub.AccountID)
	}

	if len(subs) > 0 {
		s.logger.Info("expired overdue subscriptions", zap.Int("count", len(subs)))
	}
}

func (s *Sweeper) warnExpiring(ctx context.Context) {
	subs, err := s.subs.ListExpiringWithin(ctx, expiryWarningWindow)
	if err != nil {
		s.logger.Error("failed to list expiring subscriptions", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, sub := range subs {
		daysLeft := int(sub.EndDate.Sub(now).Hours() / 24)
		if daysLeft < 0 {
			continue
		}
		s.alerts.EmitExpiryWarning(ctx, sub.ID, sub.AccountID, daysLeft)
		if daysLeft <= renewalReminderDays {
			s.alerts.EmitRenewalReminder(ctx, sub.ID, sub.AccountID, sub.EndDate)
		}
	}
}

func (s *Sweeper) warnNearLimit(ctx context.Context) {
	counters, err := s.counters.ListNearLimit(ctx, nearLimitFraction)
	if err != nil {
		s.logger.Error("failed to list near-limit counters", zap.Error(err))
		return
	}

	for _, c := range counters {
		sub, err := s.subs.FindByID(ctx, c.SubscriptionID)
		if err != nil {
			s.logger.Error("failed to load subscription for counter",
				zap.Int64("counter_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		if !sub.IsLive(time.Now().UTC()) {
			continue
		}
		limit := int(c.LimitValue.Int32)
		if c.UsageCount >= limit {
			s.alerts.EmitUpgradeSuggestion(ctx, sub.ID, sub.AccountID, c.FeatureName)
			continue
		}
		s.alerts.EmitFeatureLimit(ctx, sub.ID, sub.AccountID, c.FeatureName, c.UsageCount, limit)
	}
}
