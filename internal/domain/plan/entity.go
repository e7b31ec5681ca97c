// internal/domain/plan/entity.go
package plan

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type PlanTier string

const (
	TierFree    PlanTier = "free"
	TierBasic   PlanTier = "basic"
	TierPremium PlanTier = "premium"
	TierUltra   PlanTier = "ultra"
)

type PlanStatus string

const (
	StatusActive   PlanStatus = "active"
	StatusInactive PlanStatus = "inactive"
)

// ValidDurations are the billing durations (in months) a plan may carry.
var ValidDurations = []int{1, 3, 6, 12}

// Plan is a purchasable tier definition. Once a live subscription references a
// plan, the subscription keeps the limit snapshot it was sold with; editing a
// plan only affects future purchases.
type Plan struct {
	ID       int64          `json:"id" db:"id"`
	PlanCode string         `json:"plan_code" db:"plan_code"`
	Name     string         `json:"name" db:"name"`
	Tier     PlanTier       `json:"tier" db:"tier"`
	Summary  sql.NullString `json:"summary,omitempty" db:"summary"`

	// Pricing
	PriceMinor     int64  `json:"price_minor" db:"price_minor"`
	Currency       string `json:"currency" db:"currency"`
	DurationMonths int    `json:"duration_months" db:"duration_months"`

	// Capability flags
	UnlimitedUploads   bool `json:"unlimited_uploads" db:"unlimited_uploads"`
	CrossCategoryLeads bool `json:"cross_category_leads" db:"cross_category_leads"`
	PriorityListing    bool `json:"priority_listing" db:"priority_listing"`
	AnalyticsAccess    bool `json:"analytics_access" db:"analytics_access"`

	// Numeric limits (NULL = unlimited for that feature)
	MaxPackages sql.NullInt32 `json:"max_packages,omitempty" db:"max_packages"`
	MaxServices sql.NullInt32 `json:"max_services,omitempty" db:"max_services"`

	// Business categories the plan is sold to. Empty = any category.
	AllowedCategories pq.StringArray `json:"allowed_categories,omitempty" db:"allowed_categories"`

	Status   PlanStatus `json:"status" db:"status"`
	IsPublic bool       `json:"is_public" db:"is_public"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LimitFor returns the numeric limit backing the given feature counter.
// The boolean is false when the feature has no limit on this plan.
func (p *Plan) LimitFor(feature string) (int, bool) {
	switch feature {
	case FeaturePackages:
		if p.MaxPackages.Valid {
			return int(p.MaxPackages.Int32), true
		}
	case FeatureServices:
		if p.MaxServices.Valid {
			return int(p.MaxServices.Int32), true
		}
	}
	return 0, false
}

// Feature counter names backed by plan limits.
const (
	FeaturePackages = "packages"
	FeatureServices = "services"
)

// IsValidDuration reports whether months is a sellable billing duration.
func IsValidDuration(months int) bool {
	for _, d := range ValidDurations {
		if d == months {
			return true
		}
	}
	return false
}
