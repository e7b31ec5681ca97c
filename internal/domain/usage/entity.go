// internal/domain/usage/entity.go
package usage

import (
	"database/sql"
	"time"
)

// FeatureCounter tallies one feature's use under one subscription. Rows are
// created lazily on first use and belong to that subscription for good; a plan
// change creates a fresh set and the old rows become historical.
type FeatureCounter struct {
	ID             int64         `json:"id" db:"id"`
	SubscriptionID int64         `json:"subscription_id" db:"subscription_id"`
	FeatureName    string        `json:"feature_name" db:"feature_name"`
	UsageCount     int           `json:"usage_count" db:"usage_count"`
	LimitValue     sql.NullInt32 `json:"limit_value,omitempty" db:"limit_value"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// LimitReached reports whether the counter is at or over its limit.
// Counters without a limit never reach it.
func (c *FeatureCounter) LimitReached() bool {
	return c.LimitValue.Valid && c.UsageCount >= int(c.LimitValue.Int32)
}

// NearLimit reports whether usage is at or above the given fraction of the
// limit, e.g. 0.9 for the feature-limit alert threshold.
func (c *FeatureCounter) NearLimit(fraction float64) bool {
	if !c.LimitValue.Valid || c.LimitValue.Int32 <= 0 {
		return false
	}
	return float64(c.UsageCount) >= fraction*float64(c.LimitValue.Int32)
}

// IncrementResult is returned by the meter after a successful increment.
type IncrementResult struct {
	NewCount     int  `json:"new_count"`
	LimitReached bool `json:"limit_reached"`
}
