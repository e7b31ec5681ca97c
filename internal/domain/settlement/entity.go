// internal/domain/settlement/entity.go
package settlement

import (
	"database/sql"
	"time"
)

// Purpose routes a settlement to the matching ledger transition. The set is
// closed; upgrade vs downgrade is decided later by plan price comparison.
type Purpose string

const (
	PurposeNew     Purpose = "new"
	PurposeRenewal Purpose = "renewal"
	PurposeUpgrade Purpose = "upgrade"
)

// IsValid reports whether p is one of the known purposes.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeNew, PurposeRenewal, PurposeUpgrade:
		return true
	}
	return false
}

type SettlementStatus string

const (
	StatusPending SettlementStatus = "pending"
	StatusApplied SettlementStatus = "applied"
	StatusFailed  SettlementStatus = "failed"
)

// Settlement records one verified payment event from the gateway. Reference is
// the gateway's unique event identifier and the idempotency key: a settlement
// never drives more than one ledger transition, no matter how often it is
// delivered. A failed row stays eligible for retry with the same reference.
type Settlement struct {
	ID        int64   `json:"id" db:"id"`
	Reference string  `json:"reference" db:"reference"`
	AccountID int64   `json:"account_id" db:"account_id"`
	PlanID    int64   `json:"plan_id" db:"plan_id"`
	Purpose   Purpose `json:"purpose" db:"purpose"`

	AmountMinor int64  `json:"amount_minor" db:"amount_minor"`
	Currency    string `json:"currency" db:"currency"`

	Status         SettlementStatus `json:"status" db:"status"`
	SubscriptionID sql.NullInt64    `json:"subscription_id,omitempty" db:"subscription_id"`
	FailureReason  sql.NullString   `json:"failure_reason,omitempty" db:"failure_reason"`
	AppliedAt      sql.NullTime     `json:"applied_at,omitempty" db:"applied_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Result is what both the webhook and the synchronous verification flow get
// back. Duplicate deliveries receive the first application's result; Duplicate
// marks that nothing ran this time.
type Result struct {
	Applied        bool                   `json:"applied"`
	Duplicate      bool                   `json:"duplicate"`
	SubscriptionID int64                  `json:"subscription_id"`
	Status         string                 `json:"status"`
}
