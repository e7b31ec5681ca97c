// internal/domain/subscription/entity.go
package subscription

import (
	"database/sql"
	"time"
)

type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// HistoryAction labels a committed ledger transition.
type HistoryAction string

const (
	ActionCreated    HistoryAction = "created"
	ActionRenewed    HistoryAction = "renewed"
	ActionUpgraded   HistoryAction = "upgraded"
	ActionDowngraded HistoryAction = "downgraded"
	ActionCancelled  HistoryAction = "cancelled"
	ActionExpired    HistoryAction = "expired"
)

// Subscription is a time-bounded grant of one plan to one provider account.
// Status moves pending -> active -> {expired, cancelled}; cancelled is final,
// expired can only be left through an explicit renewal.
type Subscription struct {
	ID                    int64  `json:"id" db:"id"`
	SubscriptionReference string `json:"subscription_reference" db:"subscription_reference"`

	AccountID int64 `json:"account_id" db:"account_id"`
	PlanID    int64 `json:"plan_id" db:"plan_id"`

	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`

	AutoRenew bool `json:"auto_renew" db:"auto_renew"`

	AmountPaidMinor int64  `json:"amount_paid_minor" db:"amount_paid_minor"`
	Currency        string `json:"currency" db:"currency"`

	// Reference of the settlement that last moved this subscription.
	SettlementReference sql.NullString `json:"settlement_reference,omitempty" db:"settlement_reference"`

	Status             SubscriptionStatus `json:"status" db:"status"`
	ActivatedAt        sql.NullTime       `json:"activated_at,omitempty" db:"activated_at"`
	CancelledAt        sql.NullTime       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason sql.NullString     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsLive reports whether the subscription grants entitlements at the given
// instant: active status and the instant within [start, end).
func (s *Subscription) IsLive(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return !now.Before(s.StartDate) && now.Before(s.EndDate)
}

// CanTransition reports whether the ledger may apply the given action in the
// current status. Expire on an already expired subscription is handled as a
// no-op by the ledger, not here.
func (s *Subscription) CanTransition(action HistoryAction) bool {
	switch action {
	case ActionCreated:
		return s.Status == StatusPending
	case ActionRenewed:
		return s.Status == StatusActive || s.Status == StatusExpired
	case ActionUpgraded, ActionDowngraded:
		return s.Status == StatusActive
	case ActionCancelled:
		return s.Status == StatusPending || s.Status == StatusActive
	case ActionExpired:
		return s.Status == StatusActive
	default:
		return false
	}
}

// HistoryEntry is an immutable audit record of one committed transition.
// The serial ID doubles as the per-subscription ordering key: entries are
// written under the subscription row lock, so ID order is commit order.
type HistoryEntry struct {
	ID             int64          `json:"id" db:"id"`
	SubscriptionID int64          `json:"subscription_id" db:"subscription_id"`
	Action         HistoryAction  `json:"action" db:"action"`
	PreviousPlanID sql.NullInt64  `json:"previous_plan_id,omitempty" db:"previous_plan_id"`
	NewPlanID      sql.NullInt64  `json:"new_plan_id,omitempty" db:"new_plan_id"`
	AmountMinor    int64          `json:"amount_minor" db:"amount_minor"`
	Actor          string         `json:"actor" db:"actor"`
	Note           sql.NullString `json:"note,omitempty" db:"note"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

type SubscriptionStats struct {
	TotalSubscriptions     int64 `json:"total_subscriptions"`
	ActiveSubscriptions    int64 `json:"active_subscriptions"`
	ExpiredSubscriptions   int64 `json:"expired_subscriptions"`
	CancelledSubscriptions int64 `json:"cancelled_subscriptions"`
	TotalRevenueMinor      int64 `json:"total_revenue_minor"`
}

// ExpiredEvent is published when the ledger expires a subscription, so
// collaborating services (listings, search) can deactivate the provider's
// published resources. This service never touches those resources itself.
type ExpiredEvent struct {
	SubscriptionID int64     `json:"subscription_id"`
	AccountID      int64     `json:"account_id"`
	PreviousPlanID int64     `json:"previous_plan_id"`
	ExpiredAt      time.Time `json:"expired_at"`
}
