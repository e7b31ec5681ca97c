// internal/domain/entitlement/dto.go
package entitlement

type CheckRequest struct {
	Action           Action           `json:"action" binding:"required"`
	BusinessCategory BusinessCategory `json:"business_category" binding:"required"`
	ServiceType      ServiceType      `json:"service_type,omitempty"`
}

// RecordUsageRequest is sent by a resource-creation service after the guarded
// creation actually succeeded.
type RecordUsageRequest struct {
	Feature string `json:"feature" binding:"required"`
}

type RecordUsageResponse struct {
	Count        int  `json:"count"`
	LimitReached bool `json:"limit_reached"`
}
