// internal/domain/plan/dto.go
package plan

type CreatePlanRequest struct {
	PlanCode       string   `json:"plan_code" binding:"required,max=50"`
	Name           string   `json:"name" binding:"required,max=255"`
	Tier           PlanTier `json:"tier" binding:"required"`
	Summary        string   `json:"summary,omitempty"`
	PriceMinor     int64    `json:"price_minor"`
	Currency       string   `json:"currency" binding:"required,len=3"`
	DurationMonths int      `json:"duration_months" binding:"required"`

	UnlimitedUploads   bool `json:"unlimited_uploads"`
	CrossCategoryLeads bool `json:"cross_category_leads"`
	PriorityListing    bool `json:"priority_listing"`
	AnalyticsAccess    bool `json:"analytics_access"`

	MaxPackages *int32 `json:"max_packages,omitempty"`
	MaxServices *int32 `json:"max_services,omitempty"`

	AllowedCategories []string `json:"allowed_categories,omitempty"`
	IsPublic          bool     `json:"is_public"`
}

type UpdatePlanRequest struct {
	Name    *string `json:"name,omitempty"`
	Summary *string `json:"summary,omitempty"`

	PriceMinor     *int64 `json:"price_minor,omitempty"`
	DurationMonths *int   `json:"duration_months,omitempty"`

	UnlimitedUploads   *bool `json:"unlimited_uploads,omitempty"`
	CrossCategoryLeads *bool `json:"cross_category_leads,omitempty"`
	PriorityListing    *bool `json:"priority_listing,omitempty"`
	AnalyticsAccess    *bool `json:"analytics_access,omitempty"`

	MaxPackages *int32 `json:"max_packages,omitempty"`
	MaxServices *int32 `json:"max_services,omitempty"`

	AllowedCategories []string `json:"allowed_categories,omitempty"`
	IsPublic          *bool    `json:"is_public,omitempty"`
}
