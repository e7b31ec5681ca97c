// internal/domain/alert/entity.go
package alert

import (
	"database/sql"
	"time"
)

type AlertType string

const (
	TypeExpiryWarning     AlertType = "expiry_warning"
	TypeRenewalReminder   AlertType = "renewal_reminder"
	TypeFeatureLimit      AlertType = "feature_limit"
	TypePaymentFailed     AlertType = "payment_failed"
	TypeUpgradeSuggestion AlertType = "upgrade_suggestion"
	TypeExpired           AlertType = "expired"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Alert is the durable "we decided to notify" record. At most one alert of a
// given type exists per subscription per UTC calendar day (unique key on
// subscription_id + type + alert_date). Dispatch is tracked separately and is
// best-effort: a failed push never rolls the row back.
type Alert struct {
	ID             int64     `json:"id" db:"id"`
	SubscriptionID int64     `json:"subscription_id" db:"subscription_id"`
	AccountID      int64     `json:"account_id" db:"account_id"`
	Type           AlertType `json:"type" db:"type"`
	Priority       Priority  `json:"priority" db:"priority"`
	Message        string    `json:"message" db:"message"`

	// Dedup key: UTC date the alert was decided on.
	AlertDate time.Time `json:"alert_date" db:"alert_date"`

	Sent   bool         `json:"sent" db:"sent"`
	SentAt sql.NullTime `json:"sent_at,omitempty" db:"sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type AlertListFilters struct {
	Type     *AlertType `form:"type"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}
