// internal/handlers/alert/alert_handler.go
package alert

import (
	"net/http"

	"soko-service/internal/domain/alert"
	"soko-service/internal/middleware"
	"soko-service/internal/pkg/response"
	service "soko-service/internal/service/notification"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	dispatcher *service.Dispatcher
}

func NewAlertHandler(dispatcher *service.Dispatcher) *AlertHandler {
	return &AlertHandler{
		dispatcher: dispatcher,
	}
}

// ListAlerts pages through the caller's subscription alerts
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var filters alert.AlertListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	alerts, total, err := h.dispatcher.ListAlerts(c.Request.Context(), accountID, &filters)
	if err != nil {
		response.FromError(c, err, "failed to list alerts")
		return
	}

	response.Success(c, http.StatusOK, "alerts retrieved", gin.H{
		"alerts": alerts,
		"total":  total,
	})
}
