// internal/service/notification/dispatcher.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soko-service/internal/domain/alert"
	xerrors "soko-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type AlertRepository interface {
	CreateOncePerDay(ctx context.Context, a *alert.Alert) error
	MarkSent(ctx context.Context, id int64) error
	ListByAccount(ctx context.Context, accountID int64, filters *alert.AlertListFilters) ([]alert.Alert, int64, error)
}

// Pusher delivers an alert to the account's live websocket connections.
type Pusher interface {
	PushToAccount(accountID int64, event string, payload any)
}

// EmailSender is the SMTP surface used for high priority alerts.
type EmailSender interface {
	Send(to, subject, bodyHTML string) error
}

// Directory resolves an account's email address. Accounts live in another
// service; the directory is a read-only projection of what it publishes.
type Directory interface {
	EmailForAccount(ctx context.Context, accountID int64) (string, error)
}

const dedupTTL = 48 * time.Hour

// DedupStore is the SETNX fast path in front of the alerts unique key.
// *redis.Client satisfies it.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Dispatcher turns lifecycle decisions into durable alerts and pushes them
// out. Persistence is the contract: the alerts row with its per-day unique
// key is created first, then websocket and email delivery run best-effort.
// A Redis SETNX in front of the insert keeps repeated sweeper passes from
// hammering the table; the unique key stays the authority.
type Dispatcher struct {
	repo      AlertRepository
	rdb       DedupStore
	pusher    Pusher
	mailer    EmailSender
	directory Directory
	logger    *zap.Logger
}

func NewDispatcher(repo AlertRepository, rdb DedupStore, pusher Pusher, mailer EmailSender, directory Directory, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		rdb:       rdb,
		pusher:    pusher,
		mailer:    mailer,
		directory: directory,
		logger:    logger,
	}
}

// Emit records and dispatches one alert. Emitting the same type for the same
// subscription twice on one UTC day is a silent no-op.
func (d *Dispatcher) Emit(ctx context.Context, subscriptionID, accountID int64, typ alert.AlertType, priority alert.Priority, message string) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var key string
	if d.rdb != nil {
		key = fmt.Sprintf("soko:alert:%d:%s:%s", subscriptionID, typ, today.Format("2006-01-02"))
		ok, err := d.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
		if err == nil && !ok {
			return
		}
	}

	a := &alert.Alert{
		SubscriptionID: subscriptionID,
		AccountID:      accountID,
		Type:           typ,
		Priority:       priority,
		Message:        message,
		AlertDate:      today,
	}
	if err := d.repo.CreateOncePerDay(ctx, a); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return
		}
		// The row is the authority; without it the key must not keep
		// suppressing retries for the rest of the day.
		if d.rdb != nil && key != "" {
			d.rdb.Del(ctx, key)
		}
		d.logger.Error("failed to persist alert",
			zap.Int64("subscription_id", subscriptionID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}

	d.dispatch(ctx, a)
}

// dispatch pushes the persisted alert out. Failures are logged; the alert
// row keeps sent=false and the provider still sees it in the alert list.
func (d *Dispatcher) dispatch(ctx context.Context, a *alert.Alert) {
	delivered := false

	if d.pusher != nil {
		d.pusher.PushToAccount(a.AccountID, "subscription.alert", a)
		delivered = true
	}

	if a.Priority == alert.PriorityHigh && d.mailer != nil && d.directory != nil {
		email, err := d.directory.EmailForAccount(ctx, a.AccountID)
		if err != nil {
			d.logger.Warn("no email for account",
				zap.Int64("account_id", a.AccountID),
				zap.Error(err),
			)
		} else if err := d.mailer.Send(email, subjectFor(a.Type), "<p>"+a.Message+"</p>"); err != nil {
			d.logger.Error("failed to send alert email",
				zap.Int64("alert_id", a.ID),
				zap.Error(err),
			)
		} else {
			delivered = true
		}
	}

	if delivered {
		if err := d.repo.MarkSent(ctx, a.ID); err != nil {
			d.logger.Error("failed to mark alert sent", zap.Int64("alert_id", a.ID), zap.Error(err))
		}
	}
}

// EmitPaymentFailed satisfies the settlement bridge's alert hook.
func (d *Dispatcher) EmitPaymentFailed(ctx context.Context, subscriptionID, accountID int64, reason string) {
	d.Emit(ctx, subscriptionID, accountID, alert.TypePaymentFailed, alert.PriorityHigh,
		"A payment could not be applied to your subscription: "+reason)
}

// EmitExpiryWarning tells the provider the subscription ends in daysLeft days.
func (d *Dispatcher) EmitExpiryWarning(ctx context.Context, subscriptionID, accountID int64, daysLeft int) {
	priority := alert.PriorityNormal
	if daysLeft <= 3 {
		priority = alert.PriorityHigh
	}
	d.Emit(ctx, subscriptionID, accountID, alert.TypeExpiryWarning, priority,
		fmt.Sprintf("Your subscription expires in %d days. Renew to keep your listings live.", daysLeft))
}

// EmitRenewalReminder nudges the provider to renew just before the end date.
func (d *Dispatcher) EmitRenewalReminder(ctx context.Context, subscriptionID, accountID int64, endDate time.Time) {
	d.Emit(ctx, subscriptionID, accountID, alert.TypeRenewalReminder, alert.PriorityNormal,
		"Your subscription renews on "+endDate.Format("2 January 2006")+".")
}

// EmitFeatureLimit warns the provider they are near a plan limit.
func (d *Dispatcher) EmitFeatureLimit(ctx context.Context, subscriptionID, accountID int64, feature string, used, limit int) {
	d.Emit(ctx, subscriptionID, accountID, alert.TypeFeatureLimit, alert.PriorityNormal,
		fmt.Sprintf("You have used %d of %d %s on your plan. Upgrade for more.", used, limit, feature))
}

// EmitUpgradeSuggestion points a provider who has filled a plan limit at the
// next tier.
func (d *Dispatcher) EmitUpgradeSuggestion(ctx context.Context, subscriptionID, accountID int64, feature string) {
	d.Emit(ctx, subscriptionID, accountID, alert.TypeUpgradeSuggestion, alert.PriorityNormal,
		fmt.Sprintf("You have used all the %s your plan allows. Upgrade to keep adding more.", feature))
}

// EmitExpired tells the provider the subscription lapsed and listings went
// offline.
func (d *Dispatcher) EmitExpired(ctx context.Context, subscriptionID, accountID int64) {
	d.Emit(ctx, subscriptionID, accountID, alert.TypeExpired, alert.PriorityHigh,
		"Your subscription has expired and your listings are no longer visible. Renew to restore them.")
}

// ListAlerts pages through the account's alerts, newest first.
func (d *Dispatcher) ListAlerts(ctx context.Context, accountID int64, filters *alert.AlertListFilters) ([]alert.Alert, int64, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	return d.repo.ListByAccount(ctx, accountID, filters)
}

func subjectFor(typ alert.AlertType) string {
	switch typ {
	case alert.TypeExpiryWarning:
		return "Your subscription is about to expire"
	case alert.TypeRenewalReminder:
		return "Upcoming subscription renewal"
	case alert.TypeFeatureLimit:
		return "You are close to a plan limit"
	case alert.TypePaymentFailed:
		return "We could not process your payment"
	case alert.TypeUpgradeSuggestion:
		return "Your plan is full"
	case alert.TypeExpired:
		return "Your subscription has expired"
	default:
		return "Subscription update"
	}
}
