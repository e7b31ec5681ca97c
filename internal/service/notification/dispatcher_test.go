package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"soko-service/internal/domain/alert"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDedup struct{ mock.Mock }

func (m *mockDedup) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}

func (m *mockDedup) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

type mockAlertRepo struct{ mock.Mock }

func (m *mockAlertRepo) CreateOncePerDay(ctx context.Context, a *alert.Alert) error {
	args := m.Called(ctx, a)
	if args.Error(0) == nil {
		a.ID = 9
	}
	return args.Error(0)
}

func (m *mockAlertRepo) MarkSent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAlertRepo) ListByAccount(ctx context.Context, accountID int64, filters *alert.AlertListFilters) ([]alert.Alert, int64, error) {
	args := m.Called(ctx, accountID, filters)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]alert.Alert), args.Get(1).(int64), args.Error(2)
}

type mockPusher struct{ mock.Mock }

func (m *mockPusher) PushToAccount(accountID int64, event string, payload any) {
	m.Called(accountID, event, payload)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(to, subject, bodyHTML string) error {
	args := m.Called(to, subject, bodyHTML)
	return args.Error(0)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) EmailForAccount(ctx context.Context, accountID int64) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

// rdb nil: the DB unique key alone carries dedup.
func newTestDispatcher(repo AlertRepository, pusher Pusher, mailer EmailSender, dir Directory) *Dispatcher {
	return NewDispatcher(repo, nil, pusher, mailer, dir, zap.NewNop())
}

func TestEmitPersistsAndPushes(t *testing.T) {
	repo := new(mockAlertRepo)
	pusher := new(mockPusher)

	repo.On("CreateOncePerDay", mock.Anything, mock.MatchedBy(func(a *alert.Alert) bool {
		return a.SubscriptionID == 33 && a.Type == alert.TypeExpiryWarning &&
			a.AlertDate.Equal(time.Now().UTC().Truncate(24*time.Hour))
	})).Return(nil)
	pusher.On("PushToAccount", int64(42), "subscription.alert", mock.Anything).Return()
	repo.On("MarkSent", mock.Anything, int64(9)).Return(nil)

	d := newTestDispatcher(repo, pusher, nil, nil)
	d.Emit(context.Background(), 33, 42, alert.TypeExpiryWarning, alert.PriorityNormal, "expiring soon")

	repo.AssertExpectations(t)
	pusher.AssertExpectations(t)
}

func TestEmitSameDayDuplicateIsSilent(t *testing.T) {
	repo := new(mockAlertRepo)
	pusher := new(mockPusher)
	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(xerrors.ErrDuplicateEntry)

	d := newTestDispatcher(repo, pusher, nil, nil)
	d.Emit(context.Background(), 33, 42, alert.TypeExpiryWarning, alert.PriorityNormal, "expiring soon")

	pusher.AssertNotCalled(t, "PushToAccount", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything)
}

func TestHighPriorityAlertEmails(t *testing.T) {
	repo := new(mockAlertRepo)
	pusher := new(mockPusher)
	mailer := new(mockMailer)
	dir := new(mockDirectory)

	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(nil)
	pusher.On("PushToAccount", int64(42), "subscription.alert", mock.Anything).Return()
	dir.On("EmailForAccount", mock.Anything, int64(42)).Return("host@safari.co.ke", nil)
	mailer.On("Send", "host@safari.co.ke", "We could not process your payment", mock.AnythingOfType("string")).Return(nil)
	repo.On("MarkSent", mock.Anything, int64(9)).Return(nil)

	d := newTestDispatcher(repo, pusher, mailer, dir)
	d.EmitPaymentFailed(context.Background(), 33, 42, "amount does not match plan price")

	mailer.AssertExpectations(t)
}

func TestNormalPriorityAlertSkipsEmail(t *testing.T) {
	repo := new(mockAlertRepo)
	pusher := new(mockPusher)
	mailer := new(mockMailer)
	dir := new(mockDirectory)

	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(nil)
	pusher.On("PushToAccount", int64(42), "subscription.alert", mock.Anything).Return()
	repo.On("MarkSent", mock.Anything, int64(9)).Return(nil)

	d := newTestDispatcher(repo, pusher, mailer, dir)
	d.EmitRenewalReminder(context.Background(), 33, 42, time.Now().AddDate(0, 0, 5))

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	dir.AssertNotCalled(t, "EmailForAccount", mock.Anything, mock.Anything)
}

func TestExpiryWarningPriorityByDaysLeft(t *testing.T) {
	for _, tc := range []struct {
		daysLeft int
		want     alert.Priority
	}{
		{daysLeft: 7, want: alert.PriorityNormal},
		{daysLeft: 3, want: alert.PriorityHigh},
		{daysLeft: 1, want: alert.PriorityHigh},
	} {
		repo := new(mockAlertRepo)
		repo.On("CreateOncePerDay", mock.Anything, mock.MatchedBy(func(a *alert.Alert) bool {
			return a.Priority == tc.want
		})).Return(nil)
		repo.On("MarkSent", mock.Anything, mock.Anything).Return(nil)
		pusher := new(mockPusher)
		pusher.On("PushToAccount", mock.Anything, mock.Anything, mock.Anything).Return()

		d := newTestDispatcher(repo, pusher, nil, nil)
		d.EmitExpiryWarning(context.Background(), 33, 42, tc.daysLeft)

		repo.AssertExpectations(t)
	}
}

func TestUnsentAlertKeptWhenNothingDelivers(t *testing.T) {
	repo := new(mockAlertRepo)
	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(nil)

	d := newTestDispatcher(repo, nil, nil, nil)
	d.Emit(context.Background(), 33, 42, alert.TypeExpired, alert.PriorityHigh, "expired")

	repo.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything)
}

func TestMissingEmailIsLoggedNotFatal(t *testing.T) {
	repo := new(mockAlertRepo)
	pusher := new(mockPusher)
	mailer := new(mockMailer)
	dir := new(mockDirectory)

	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(nil)
	pusher.On("PushToAccount", mock.Anything, mock.Anything, mock.Anything).Return()
	dir.On("EmailForAccount", mock.Anything, int64(42)).Return("", errors.New("no projection"))
	repo.On("MarkSent", mock.Anything, int64(9)).Return(nil)

	d := newTestDispatcher(repo, pusher, mailer, dir)
	d.EmitExpired(context.Background(), 33, 42)

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestTransientInsertFailureReleasesDedupKey(t *testing.T) {
	repo := new(mockAlertRepo)
	dedup := new(mockDedup)
	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	dedup.On("SetNX", mock.Anything, mock.AnythingOfType("string"), mock.Anything, dedupTTL).
		Return(redis.NewBoolResult(true, nil))
	dedup.On("Del", mock.Anything, mock.Anything).Return(redis.NewIntResult(1, nil))

	d := NewDispatcher(repo, dedup, nil, nil, nil, zap.NewNop())
	d.Emit(context.Background(), 33, 42, alert.TypeExpiryWarning, alert.PriorityNormal, "expiring soon")

	// The key must not outlive the row it fronts, or retries stay suppressed
	// until it expires.
	dedup.AssertExpectations(t)
}

func TestDuplicateRowKeepsDedupKey(t *testing.T) {
	repo := new(mockAlertRepo)
	dedup := new(mockDedup)
	repo.On("CreateOncePerDay", mock.Anything, mock.Anything).Return(xerrors.ErrDuplicateEntry)
	dedup.On("SetNX", mock.Anything, mock.AnythingOfType("string"), mock.Anything, dedupTTL).
		Return(redis.NewBoolResult(true, nil))

	d := NewDispatcher(repo, dedup, nil, nil, nil, zap.NewNop())
	d.Emit(context.Background(), 33, 42, alert.TypeExpiryWarning, alert.PriorityNormal, "expiring soon")

	dedup.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
}

func TestDedupKeySkipsRepeatEmit(t *testing.T) {
	repo := new(mockAlertRepo)
	dedup := new(mockDedup)
	dedup.On("SetNX", mock.Anything, mock.AnythingOfType("string"), mock.Anything, dedupTTL).
		Return(redis.NewBoolResult(false, nil))

	d := NewDispatcher(repo, dedup, nil, nil, nil, zap.NewNop())
	d.Emit(context.Background(), 33, 42, alert.TypeExpiryWarning, alert.PriorityNormal, "expiring soon")

	repo.AssertNotCalled(t, "CreateOncePerDay", mock.Anything, mock.Anything)
}

func TestListAlertsClampsPaging(t *testing.T) {
	repo := new(mockAlertRepo)
	repo.On("ListByAccount", mock.Anything, int64(42), mock.MatchedBy(func(f *alert.AlertListFilters) bool {
		return f.Page == 1 && f.PageSize == 20
	})).Return([]alert.Alert{}, int64(0), nil)

	d := newTestDispatcher(repo, nil, nil, nil)
	_, _, err := d.ListAlerts(context.Background(), 42, &alert.AlertListFilters{Page: -1, PageSize: 0})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSubjectCoversAllTypes(t *testing.T) {
	for _, typ := range []alert.AlertType{
		alert.TypeExpiryWarning, alert.TypeRenewalReminder, alert.TypeFeatureLimit,
		alert.TypePaymentFailed, alert.TypeUpgradeSuggestion, alert.TypeExpired,
	} {
		assert.NotEqual(t, "Subscription update", subjectFor(typ), "type %s needs its own subject", typ)
	}
}
