// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"
	"strconv"

	"soko-service/internal/domain/subscription"
	"soko-service/internal/middleware"
	"soko-service/internal/pkg/response"
	service "soko-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	ledger *service.LedgerService
}

func NewSubscriptionHandler(ledger *service.LedgerService) *SubscriptionHandler {
	return &SubscriptionHandler{
		ledger: ledger,
	}
}

// GetCurrent retrieves the caller's live subscription
func (h *SubscriptionHandler) GetCurrent(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	sub, err := h.ledger.GetLiveSubscription(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, err, "failed to get subscription")
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// GetSubscription retrieves one of the caller's subscriptions by ID
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	subID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	sub, err := h.ledger.GetSubscription(c.Request.Context(), subID, accountID)
	if err != nil {
		response.FromError(c, err, "failed to get subscription")
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// ListSubscriptions pages through the caller's subscriptions
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var filters subscription.SubscriptionListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	result, err := h.ledger.ListSubscriptions(c.Request.Context(), accountID, &filters)
	if err != nil {
		response.FromError(c, err, "failed to list subscriptions")
		return
	}

	response.Success(c, http.StatusOK, "subscriptions retrieved", result)
}

// GetHistory retrieves a subscription's transition history
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	subID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	history, err := h.ledger.GetHistory(c.Request.Context(), subID, accountID)
	if err != nil {
		response.FromError(c, err, "failed to get history")
		return
	}

	response.Success(c, http.StatusOK, "history retrieved", history)
}

// GetUsage reports the live subscription's counters against their limits
func (h *SubscriptionHandler) GetUsage(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	info, err := h.ledger.GetUsage(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, err, "failed to get usage")
		return
	}

	response.Success(c, http.StatusOK, "usage retrieved", info)
}

// Cancel ends the caller's subscription immediately
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	subID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req subscription.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	sub, err := h.ledger.Cancel(c.Request.Context(), subID, accountID, req.Reason)
	if err != nil {
		response.FromError(c, err, "failed to cancel subscription")
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", sub)
}

// UpdateSubscription toggles auto-renew
func (h *SubscriptionHandler) UpdateSubscription(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	subID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req subscription.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}
	if req.AutoRenew == nil {
		response.Error(c, http.StatusBadRequest, "nothing to update", nil)
		return
	}

	if err := h.ledger.SetAutoRenew(c.Request.Context(), subID, accountID, *req.AutoRenew); err != nil {
		response.FromError(c, err, "failed to update subscription")
		return
	}

	response.Success(c, http.StatusOK, "subscription updated", nil)
}

// ========== Admin Endpoints ==========

// GetStats aggregates ledger counts
func (h *SubscriptionHandler) GetStats(c *gin.Context) {
	stats, err := h.ledger.GetStats(c.Request.Context())
	if err != nil {
		response.FromError(c, err, "failed to get stats")
		return
	}

	response.Success(c, http.StatusOK, "stats retrieved", stats)
}
