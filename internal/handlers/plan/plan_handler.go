// internal/handlers/plan/plan_handler.go
package plan

import (
	"net/http"
	"strconv"

	"soko-service/internal/domain/plan"
	"soko-service/internal/pkg/response"
	service "soko-service/internal/service/plan"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{
		planService: planService,
	}
}

// ========== Public Endpoints ==========

// ListPlans retrieves the purchasable plan catalog
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.planService.ListActivePlans(c.Request.Context())
	if err != nil {
		response.FromError(c, err, "failed to list plans")
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", plans)
}

// GetPlan retrieves a single plan by ID
func (h *PlanHandler) GetPlan(c *gin.Context) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	p, err := h.planService.GetPlan(c.Request.Context(), planID)
	if err != nil {
		response.FromError(c, err, "failed to get plan")
		return
	}

	response.Success(c, http.StatusOK, "plan retrieved", p)
}

// GetPlanByCode retrieves a single plan by its code
func (h *PlanHandler) GetPlanByCode(c *gin.Context) {
	p, err := h.planService.GetPlanByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err, "failed to get plan")
		return
	}

	response.Success(c, http.StatusOK, "plan retrieved", p)
}

// ========== Admin Endpoints ==========

// CreatePlan creates a new plan
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req plan.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	p, err := h.planService.CreatePlan(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err, "failed to create plan")
		return
	}

	response.Success(c, http.StatusCreated, "plan created", p)
}

// UpdatePlan applies partial edits to a plan
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	var req plan.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	p, err := h.planService.UpdatePlan(c.Request.Context(), planID, &req)
	if err != nil {
		response.FromError(c, err, "failed to update plan")
		return
	}

	response.Success(c, http.StatusOK, "plan updated", p)
}

// SetPlanStatus activates or deactivates a plan
func (h *PlanHandler) SetPlanStatus(c *gin.Context) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	var req struct {
		Status plan.PlanStatus `json:"status" binding:"required,oneof=active inactive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	if err := h.planService.SetPlanStatus(c.Request.Context(), planID, req.Status); err != nil {
		response.FromError(c, err, "failed to set plan status")
		return
	}

	response.Success(c, http.StatusOK, "plan status updated", nil)
}

// DeletePlan removes a plan with no live subscriptions
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	if err := h.planService.DeletePlan(c.Request.Context(), planID); err != nil {
		response.FromError(c, err, "failed to delete plan")
		return
	}

	response.Success(c, http.StatusOK, "plan deleted", nil)
}
