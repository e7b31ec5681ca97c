// internal/domain/settlement/dto.go
package settlement

// ReportSettlementRequest is the single inbound shape for both the gateway
// webhook and the synchronous verification flow; both must carry the same
// gateway reference so they dedup against each other.
type ReportSettlementRequest struct {
	Reference   string  `json:"reference" binding:"required,max=128"`
	AccountID   int64   `json:"account_id" binding:"required"`
	PlanID      int64   `json:"plan_id" binding:"required"`
	AmountMinor int64   `json:"amount_minor" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"required,len=3"`
	Purpose     Purpose `json:"purpose" binding:"required"`
}

type SettlementListFilters struct {
	Status   *SettlementStatus `form:"status"`
	Page     int               `form:"page"`
	PageSize int               `form:"page_size"`
}
