// internal/handlers/entitlement/entitlement_handler.go
package entitlement

import (
	"net/http"
	"strconv"

	"soko-service/internal/domain/entitlement"
	"soko-service/internal/pkg/response"
	service "soko-service/internal/service/entitlement"

	"github.com/gin-gonic/gin"
)

// EntitlementHandler serves the gate to resource creation services. Callers
// authenticate with a service token and pass the provider account they act
// for in the path.
type EntitlementHandler struct {
	gate *service.GateService
}

func NewEntitlementHandler(gate *service.GateService) *EntitlementHandler {
	return &EntitlementHandler{
		gate: gate,
	}
}

// Check answers whether the account may perform a gated action. A denial is
// a 200 with allowed=false; only malformed requests error.
func (h *EntitlementHandler) Check(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("account_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid account ID", err)
		return
	}

	var req entitlement.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	decision, err := h.gate.CanPerform(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, err, "failed to evaluate entitlement")
		return
	}

	response.Success(c, http.StatusOK, "entitlement evaluated", decision)
}

// RecordUsage commits one unit of feature use after the creation succeeded
func (h *EntitlementHandler) RecordUsage(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("account_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid account ID", err)
		return
	}

	var req entitlement.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.gate.RecordUsage(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, err, "failed to record usage")
		return
	}

	response.Success(c, http.StatusOK, "usage recorded", result)
}
