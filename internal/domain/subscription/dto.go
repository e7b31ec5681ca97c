// internal/domain/subscription/dto.go
package subscription

import "time"

type CancelSubscriptionRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

type UpdateSubscriptionRequest struct {
	AutoRenew *bool `json:"auto_renew,omitempty"`
}

type SubscriptionListFilters struct {
	Status   *SubscriptionStatus `form:"status"`
	Page     int                 `form:"page"`
	PageSize int                 `form:"page_size"`
}

type SubscriptionListResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	TotalPages    int            `json:"total_pages"`
}

type SubscriptionUsageInfo struct {
	SubscriptionID int64          `json:"subscription_id"`
	PlanID         int64          `json:"plan_id"`
	EndDate        time.Time      `json:"end_date"`
	Counters       []CounterUsage `json:"counters"`
}

type CounterUsage struct {
	Feature   string `json:"feature"`
	Used      int    `json:"used"`
	Limit     *int   `json:"limit,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}
