package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"soko-service/internal/domain/subscription"
	"soko-service/internal/domain/usage"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockSubRepo struct{ mock.Mock }

func (m *mockSubRepo) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) ListExpiringWithin(ctx context.Context, window time.Duration) ([]subscription.Subscription, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) ListOverdueActive(ctx context.Context, limit int) ([]subscription.Subscription, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Subscription), args.Error(1)
}

type mockCounterRepo struct{ mock.Mock }

func (m *mockCounterRepo) ListNearLimit(ctx context.Context, fraction float64) ([]usage.FeatureCounter, error) {
	args := m.Called(ctx, fraction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]usage.FeatureCounter), args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Expire(ctx context.Context, id int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

type mockAlerts struct{ mock.Mock }

func (m *mockAlerts) EmitExpiryWarning(ctx context.Context, subscriptionID, accountID int64, daysLeft int) {
	m.Called(ctx, subscriptionID, accountID, daysLeft)
}

func (m *mockAlerts) EmitRenewalReminder(ctx context.Context, subscriptionID, accountID int64, endDate time.Time) {
	m.Called(ctx, subscriptionID, accountID, endDate)
}

func (m *mockAlerts) EmitFeatureLimit(ctx context.Context, subscriptionID, accountID int64, feature string, used, limit int) {
	m.Called(ctx, subscriptionID, accountID, feature, used, limit)
}

func (m *mockAlerts) EmitUpgradeSuggestion(ctx context.Context, subscriptionID, accountID int64, feature string) {
	m.Called(ctx, subscriptionID, accountID, feature)
}

func (m *mockAlerts) EmitExpired(ctx context.Context, subscriptionID, accountID int64) {
	m.Called(ctx, subscriptionID, accountID)
}

type sweepFixture struct {
	subs     *mockSubRepo
	counters *mockCounterRepo
	ledger   *mockLedger
	alerts   *mockAlerts
	sweeper  *Sweeper
}

func newSweep(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		subs:     new(mockSubRepo),
		counters: new(mockCounterRepo),
		ledger:   new(mockLedger),
		alerts:   new(mockAlerts),
	}
	f.sweeper = NewSweeper(f.subs, f.counters, f.ledger, f.alerts, time.Hour, zap.NewNop())
	return f
}

func (f *sweepFixture) quietStages(overdue []subscription.Subscription, expiring []subscription.Subscription, near []usage.FeatureCounter) {
	f.subs.On("ListOverdueActive", mock.Anything, expireBatchSize).Return(overdue, nil)
	f.subs.On("ListExpiringWithin", mock.Anything, expiryWarningWindow).Return(expiring, nil)
	f.counters.On("ListNearLimit", mock.Anything, nearLimitFraction).Return(near, nil)
}

func TestSweepExpiresOverdue(t *testing.T) {
	f := newSweep(t)
	overdue := []subscription.Subscription{
		{ID: 1, AccountID: 10},
		{ID: 2, AccountID: 20},
	}
	f.quietStages(overdue, nil, nil)
	f.ledger.On("Expire", mock.Anything, int64(1)).Return(&subscription.Subscription{ID: 1}, nil)
	f.ledger.On("Expire", mock.Anything, int64(2)).Return(&subscription.Subscription{ID: 2}, nil)
	f.alerts.On("EmitExpired", mock.Anything, int64(1), int64(10)).Return()
	f.alerts.On("EmitExpired", mock.Anything, int64(2), int64(20)).Return()

	f.sweeper.Sweep(context.Background())

	f.ledger.AssertExpectations(t)
	f.alerts.AssertExpectations(t)
}

func TestSweepContinuesPastExpireError(t *testing.T) {
	f := newSweep(t)
	overdue := []subscription.Subscription{
		{ID: 1, AccountID: 10},
		{ID: 2, AccountID: 20},
	}
	f.quietStages(overdue, nil, nil)
	f.ledger.On("Expire", mock.Anything, int64(1)).Return(nil, errors.New("lock timeout"))
	f.ledger.On("Expire", mock.Anything, int64(2)).Return(&subscription.Subscription{ID: 2}, nil)
	f.alerts.On("EmitExpired", mock.Anything, int64(2), int64(20)).Return()

	f.sweeper.Sweep(context.Background())

	// No expired alert for the subscription that failed to transition.
	f.alerts.AssertNotCalled(t, "EmitExpired", mock.Anything, int64(1), int64(10))
	f.ledger.AssertExpectations(t)
}

func TestSweepWarnsExpiring(t *testing.T) {
	f := newSweep(t)
	now := time.Now().UTC()
	expiring := []subscription.Subscription{
		{ID: 1, AccountID: 10, EndDate: now.Add(5*24*time.Hour + time.Minute)},
		{ID: 2, AccountID: 20, EndDate: now.Add(2*24*time.Hour + time.Minute)},
	}
	f.quietStages(nil, expiring, nil)
	f.alerts.On("EmitExpiryWarning", mock.Anything, int64(1), int64(10), 5).Return()
	f.alerts.On("EmitExpiryWarning", mock.Anything, int64(2), int64(20), 2).Return()
	f.alerts.On("EmitRenewalReminder", mock.Anything, int64(2), int64(20), expiring[1].EndDate).Return()

	f.sweeper.Sweep(context.Background())

	f.alerts.AssertExpectations(t)
	// The reminder only joins the warning inside the three-day window.
	f.alerts.AssertNotCalled(t, "EmitRenewalReminder", mock.Anything, int64(1), mock.Anything, mock.Anything)
}

func TestSweepRemindsAtThreeDayBoundary(t *testing.T) {
	f := newSweep(t)
	now := time.Now().UTC()
	expiring := []subscription.Subscription{
		{ID: 3, AccountID: 30, AutoRenew: true, EndDate: now.Add(3*24*time.Hour + time.Minute)},
	}
	f.quietStages(nil, expiring, nil)
	f.alerts.On("EmitExpiryWarning", mock.Anything, int64(3), int64(30), 3).Return()
	f.alerts.On("EmitRenewalReminder", mock.Anything, int64(3), int64(30), expiring[0].EndDate).Return()

	f.sweeper.Sweep(context.Background())

	f.alerts.AssertExpectations(t)
}

func TestSweepFlagsNearLimitCounters(t *testing.T) {
	f := newSweep(t)
	near := []usage.FeatureCounter{
		{ID: 5, SubscriptionID: 33, FeatureName: "services", UsageCount: 9, LimitValue: sql.NullInt32{Int32: 10, Valid: true}},
	}
	now := time.Now().UTC()
	f.quietStages(nil, nil, near)
	f.subs.On("FindByID", mock.Anything, int64(33)).Return(&subscription.Subscription{
		ID:        33,
		AccountID: 42,
		Status:    subscription.StatusActive,
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 1, 0),
	}, nil)
	f.alerts.On("EmitFeatureLimit", mock.Anything, int64(33), int64(42), "services", 9, 10).Return()

	f.sweeper.Sweep(context.Background())

	f.alerts.AssertExpectations(t)
}

func TestSweepSuggestsUpgradeOnFullCounter(t *testing.T) {
	f := newSweep(t)
	near := []usage.FeatureCounter{
		{ID: 5, SubscriptionID: 33, FeatureName: "services", UsageCount: 10, LimitValue: sql.NullInt32{Int32: 10, Valid: true}},
	}
	now := time.Now().UTC()
	f.quietStages(nil, nil, near)
	f.subs.On("FindByID", mock.Anything, int64(33)).Return(&subscription.Subscription{
		ID:        33,
		AccountID: 42,
		Status:    subscription.StatusActive,
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 1, 0),
	}, nil)
	f.alerts.On("EmitUpgradeSuggestion", mock.Anything, int64(33), int64(42), "services").Return()

	f.sweeper.Sweep(context.Background())

	f.alerts.AssertExpectations(t)
	f.alerts.AssertNotCalled(t, "EmitFeatureLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepSkipsNearLimitOnDeadSubscription(t *testing.T) {
	f := newSweep(t)
	near := []usage.FeatureCounter{
		{ID: 5, SubscriptionID: 33, FeatureName: "services", UsageCount: 9, LimitValue: sql.NullInt32{Int32: 10, Valid: true}},
	}
	now := time.Now().UTC()
	f.quietStages(nil, nil, near)
	f.subs.On("FindByID", mock.Anything, int64(33)).Return(&subscription.Subscription{
		ID:        33,
		AccountID: 42,
		Status:    subscription.StatusExpired,
		StartDate: now.AddDate(0, -2, 0),
		EndDate:   now.AddDate(0, -1, 0),
	}, nil)

	f.sweeper.Sweep(context.Background())

	f.alerts.AssertNotCalled(t, "EmitFeatureLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepStageErrorDoesNotStopLaterStages(t *testing.T) {
	f := newSweep(t)
	f.subs.On("ListOverdueActive", mock.Anything, expireBatchSize).Return(nil, errors.New("db down"))
	f.subs.On("ListExpiringWithin", mock.Anything, expiryWarningWindow).Return([]subscription.Subscription{}, nil)
	f.counters.On("ListNearLimit", mock.Anything, nearLimitFraction).Return([]usage.FeatureCounter{}, nil)

	f.sweeper.Sweep(context.Background())

	f.counters.AssertExpectations(t)
}
