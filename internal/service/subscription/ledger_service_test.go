package subscription

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"soko-service/internal/domain/plan"
	"soko-service/internal/domain/settlement"
	"soko-service/internal/domain/subscription"
	"soko-service/internal/domain/usage"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (db *fakeDB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return db.tx, nil
}

type mockSubRepo struct{ mock.Mock }

func (m *mockSubRepo) CreateWithTx(ctx context.Context, tx pgx.Tx, s *subscription.Subscription) error {
	args := m.Called(ctx, tx, s)
	if args.Error(0) == nil {
		s.ID = 33
	}
	return args.Error(0)
}

func (m *mockSubRepo) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) FindLiveByAccount(ctx context.Context, accountID int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) FindLiveByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, tx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) FindCurrentByAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*subscription.Subscription, error) {
	args := m.Called(ctx, tx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubRepo) UpdateTransitionWithTx(ctx context.Context, tx pgx.Tx, s *subscription.Subscription) error {
	args := m.Called(ctx, tx, s)
	return args.Error(0)
}

func (m *mockSubRepo) UpdateAutoRenew(ctx context.Context, id int64, autoRenew bool) error {
	args := m.Called(ctx, id, autoRenew)
	return args.Error(0)
}

func (m *mockSubRepo) List(ctx context.Context, accountID int64, filters *subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error) {
	args := m.Called(ctx, accountID, filters)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]subscription.Subscription), args.Get(1).(int64), args.Error(2)
}

func (m *mockSubRepo) Stats(ctx context.Context) (*subscription.SubscriptionStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.SubscriptionStats), args.Error(1)
}

type mockHistoryRepo struct{ mock.Mock }

func (m *mockHistoryRepo) AppendWithTx(ctx context.Context, tx pgx.Tx, e *subscription.HistoryEntry) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

func (m *mockHistoryRepo) ListBySubscription(ctx context.Context, subscriptionID int64) ([]subscription.HistoryEntry, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.HistoryEntry), args.Error(1)
}

type mockCounterRepo struct{ mock.Mock }

func (m *mockCounterRepo) ReplaceLimitsWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64, limits map[string]sql.NullInt32) error {
	args := m.Called(ctx, tx, subscriptionID, limits)
	return args.Error(0)
}

func (m *mockCounterRepo) ResetAllWithTx(ctx context.Context, tx pgx.Tx, subscriptionID int64) error {
	args := m.Called(ctx, tx, subscriptionID)
	return args.Error(0)
}

func (m *mockCounterRepo) ListBySubscription(ctx context.Context, subscriptionID int64) ([]usage.FeatureCounter, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]usage.FeatureCounter), args.Error(1)
}

type mockPlanRepo struct{ mock.Mock }

func (m *mockPlanRepo) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*plan.Plan), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishExpired(ctx context.Context, ev subscription.ExpiredEvent) {
	m.Called(ctx, ev)
}

type ledgerFixture struct {
	tx       *fakeTx
	subs     *mockSubRepo
	history  *mockHistoryRepo
	counters *mockCounterRepo
	plans    *mockPlanRepo
	events   *mockPublisher
	svc      *LedgerService
}

func newLedger(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		tx:       &fakeTx{},
		subs:     new(mockSubRepo),
		history:  new(mockHistoryRepo),
		counters: new(mockCounterRepo),
		plans:    new(mockPlanRepo),
		events:   new(mockPublisher),
	}
	f.svc = NewLedgerService(&fakeDB{tx: f.tx}, f.subs, f.history, f.counters, f.plans, f.events, zap.NewNop())
	return f
}

func monthlyPlan() *plan.Plan {
	return &plan.Plan{
		ID:             7,
		PriceMinor:     4999,
		Currency:       "KES",
		DurationMonths: 1,
		MaxPackages:    sql.NullInt32{Int32: 3, Valid: true},
		MaxServices:    sql.NullInt32{Int32: 10, Valid: true},
	}
}

func settledPayment() *settlement.Settlement {
	return &settlement.Settlement{
		Reference:   "MPX-001",
		AccountID:   42,
		PlanID:      7,
		AmountMinor: 4999,
		Currency:    "KES",
	}
}

func TestActivateNew(t *testing.T) {
	f := newLedger(t)
	f.subs.On("CreateWithTx", mock.Anything, f.tx, mock.AnythingOfType("*subscription.Subscription")).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.MatchedBy(func(e *subscription.HistoryEntry) bool {
		return e.Action == subscription.ActionCreated && e.Actor == "settlement:MPX-001"
	})).Return(nil)
	f.counters.On("ReplaceLimitsWithTx", mock.Anything, f.tx, int64(33), map[string]sql.NullInt32{
		plan.FeaturePackages: {Int32: 3, Valid: true},
		plan.FeatureServices: {Int32: 10, Valid: true},
	}).Return(nil)

	sub, err := f.svc.ActivateNewWithTx(context.Background(), f.tx, settledPayment(), monthlyPlan())
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, int64(42), sub.AccountID)
	assert.NotEmpty(t, sub.SubscriptionReference)
	assert.True(t, sub.ActivatedAt.Valid)
	assert.WithinDuration(t, sub.StartDate.AddDate(0, 1, 0), sub.EndDate, time.Second)
	f.counters.AssertExpectations(t)
}

func TestRenewActiveExtendsFromEndDate(t *testing.T) {
	f := newLedger(t)
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -20)
	end := now.AddDate(0, 0, 10)
	sub := &subscription.Subscription{
		ID:        33,
		AccountID: 42,
		PlanID:    7,
		Status:    subscription.StatusActive,
		StartDate: start,
		EndDate:   end,
	}
	f.subs.On("UpdateTransitionWithTx", mock.Anything, f.tx, sub).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.MatchedBy(func(e *subscription.HistoryEntry) bool {
		return e.Action == subscription.ActionRenewed
	})).Return(nil)
	f.counters.On("ResetAllWithTx", mock.Anything, f.tx, int64(33)).Return(nil)

	err := f.svc.RenewWithTx(context.Background(), f.tx, sub, monthlyPlan(), settledPayment())
	require.NoError(t, err)

	// Remaining time is kept: the new term stacks on the old end date.
	assert.WithinDuration(t, end.AddDate(0, 1, 0), sub.EndDate, time.Second)
	assert.Equal(t, start, sub.StartDate)
	f.counters.AssertExpectations(t)
}

func TestRenewExpiredRestartsFromNow(t *testing.T) {
	f := newLedger(t)
	now := time.Now().UTC()
	sub := &subscription.Subscription{
		ID:        33,
		AccountID: 42,
		PlanID:    7,
		Status:    subscription.StatusExpired,
		StartDate: now.AddDate(0, -2, 0),
		EndDate:   now.AddDate(0, -1, 0),
	}
	f.subs.On("UpdateTransitionWithTx", mock.Anything, f.tx, sub).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.Anything).Return(nil)
	f.counters.On("ResetAllWithTx", mock.Anything, f.tx, int64(33)).Return(nil)

	err := f.svc.RenewWithTx(context.Background(), f.tx, sub, monthlyPlan(), settledPayment())
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.WithinDuration(t, now, sub.StartDate, time.Second)
	assert.WithinDuration(t, now.AddDate(0, 1, 0), sub.EndDate, time.Second)
}

func TestRenewPlanMismatch(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, PlanID: 9, Status: subscription.StatusActive}

	err := f.svc.RenewWithTx(context.Background(), f.tx, sub, monthlyPlan(), settledPayment())
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	f.subs.AssertNotCalled(t, "UpdateTransitionWithTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRenewCancelledRejected(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, PlanID: 7, Status: subscription.StatusCancelled}

	err := f.svc.RenewWithTx(context.Background(), f.tx, sub, monthlyPlan(), settledPayment())
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestChangePlanUpgrade(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, AccountID: 42, PlanID: 7, Status: subscription.StatusActive}
	newPlan := &plan.Plan{ID: 9, PriceMinor: 9999, Currency: "KES", DurationMonths: 1}

	f.plans.On("FindByID", mock.Anything, int64(7)).Return(monthlyPlan(), nil)
	f.subs.On("UpdateTransitionWithTx", mock.Anything, f.tx, sub).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.MatchedBy(func(e *subscription.HistoryEntry) bool {
		return e.Action == subscription.ActionUpgraded &&
			e.PreviousPlanID.Int64 == 7 && e.NewPlanID.Int64 == 9
	})).Return(nil)
	f.counters.On("ReplaceLimitsWithTx", mock.Anything, f.tx, int64(33), mock.Anything).Return(nil)

	action, err := f.svc.ChangePlanWithTx(context.Background(), f.tx, sub, newPlan, settledPayment())
	require.NoError(t, err)
	assert.Equal(t, subscription.ActionUpgraded, action)
	assert.Equal(t, int64(9), sub.PlanID)
	f.history.AssertExpectations(t)
}

func TestChangePlanDowngrade(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, AccountID: 42, PlanID: 7, Status: subscription.StatusActive}
	newPlan := &plan.Plan{ID: 5, PriceMinor: 999, Currency: "KES", DurationMonths: 1}

	f.plans.On("FindByID", mock.Anything, int64(7)).Return(monthlyPlan(), nil)
	f.subs.On("UpdateTransitionWithTx", mock.Anything, f.tx, sub).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.Anything).Return(nil)
	f.counters.On("ReplaceLimitsWithTx", mock.Anything, f.tx, int64(33), mock.Anything).Return(nil)

	action, err := f.svc.ChangePlanWithTx(context.Background(), f.tx, sub, newPlan, settledPayment())
	require.NoError(t, err)
	assert.Equal(t, subscription.ActionDowngraded, action)
}

func TestChangePlanSamePlanRejected(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, PlanID: 7, Status: subscription.StatusActive}

	_, err := f.svc.ChangePlanWithTx(context.Background(), f.tx, sub, monthlyPlan(), settledPayment())
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestChangePlanExpiredRejected(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, PlanID: 7, Status: subscription.StatusExpired}
	newPlan := &plan.Plan{ID: 9, PriceMinor: 9999}

	_, err := f.svc.ChangePlanWithTx(context.Background(), f.tx, sub, newPlan, settledPayment())
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, AccountID: 42, PlanID: 7, Status: subscription.StatusActive, AutoRenew: true}
	f.subs.On("FindByIDForUpdate", mock.Anything, f.tx, int64(33)).Return(sub, nil)
	f.subs.On("UpdateTransitionWithTx", mock.Anything, f.tx, sub).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.MatchedBy(func(e *subscription.HistoryEntry) bool {
		return e.Action == subscription.ActionCancelled && e.Actor == "account:42"
	})).Return(nil)

	got, err := f.svc.Cancel(context.Background(), 33, 42, "switching providers")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, got.Status)
	assert.False(t, got.AutoRenew)
	assert.True(t, got.CancelledAt.Valid)
	assert.Equal(t, "switching providers", got.CancellationReason.String)
	assert.True(t, f.tx.committed)
}

func TestCancelWrongOwner(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, AccountID: 42, Status: subscription.StatusActive}
	f.subs.On("FindByIDForUpdate", mock.Anything, f.tx, int64(33)).Return(sub, nil)

	_, err := f.svc.Cancel(context.Background(), 33, 99, "")
	assert.ErrorIs(t, err, xerrors.ErrForbidden)
	assert.False(t, f.tx.committed)
}

func TestCancelExpiredRejected(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, AccountID: 42, Status: subscription.StatusExpired}
	f.subs.On("FindByIDForUpdate", mock.Anything, f.tx, int64(33)).Return(sub, nil)

	_, err := f.svc.Cancel(context.Background(), 33, 42, "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestExpirePublishesEvent(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, AccountID: 42, PlanID: 7, Status: subscription.StatusActive}
	f.subs.On("FindByIDForUpdate", mock.Anything, f.tx, int64(33)).Return(sub, nil)
	f.subs.On("UpdateTransitionWithTx", mock.Anything, f.tx, sub).Return(nil)
	f.history.On("AppendWithTx", mock.Anything, f.tx, mock.MatchedBy(func(e *subscription.HistoryEntry) bool {
		return e.Action == subscription.ActionExpired && e.Actor == "system:expiry"
	})).Return(nil)
	f.events.On("PublishExpired", mock.Anything, mock.MatchedBy(func(ev subscription.ExpiredEvent) bool {
		return ev.SubscriptionID == 33 && ev.AccountID == 42
	})).Return()

	got, err := f.svc.Expire(context.Background(), 33)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)
	assert.True(t, f.tx.committed)
	f.events.AssertExpectations(t)
}

func TestExpireAlreadyExpiredIsNoop(t *testing.T) {
	f := newLedger(t)
	sub := &subscription.Subscription{ID: 33, Status: subscription.StatusExpired}
	f.subs.On("FindByIDForUpdate", mock.Anything, f.tx, int64(33)).Return(sub, nil)

	got, err := f.svc.Expire(context.Background(), 33)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)
	f.subs.AssertNotCalled(t, "UpdateTransitionWithTx", mock.Anything, mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "PublishExpired", mock.Anything, mock.Anything)
}

func TestListSubscriptionsClampsPaging(t *testing.T) {
	f := newLedger(t)
	f.subs.On("List", mock.Anything, int64(42), mock.MatchedBy(func(fl *subscription.SubscriptionListFilters) bool {
		return fl.Page == 1 && fl.PageSize == 20
	})).Return([]subscription.Subscription{}, int64(0), nil)

	resp, err := f.svc.ListSubscriptions(context.Background(), 42, &subscription.SubscriptionListFilters{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.PageSize)
}
