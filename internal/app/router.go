// internal/app/router.go
package app

import (
	alertHandler "soko-service/internal/handlers/alert"
	entitlementHandler "soko-service/internal/handlers/entitlement"
	planHandler "soko-service/internal/handlers/plan"
	settlementHandler "soko-service/internal/handlers/settlement"
	subscriptionHandler "soko-service/internal/handlers/subscription"
	wsHandler "soko-service/internal/handlers/ws"
	"soko-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	PlanHandler         *planHandler.PlanHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	SettlementHandler   *settlementHandler.SettlementHandler
	EntitlementHandler  *entitlementHandler.EntitlementHandler
	AlertHandler        *alertHandler.AlertHandler
	WSHandler           *wsHandler.WSHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.Connect)

	// ==================== Public Plan Catalog ====================
	plans := api.Group("/plans")
	{
		plans.GET("", h.PlanHandler.ListPlans)
		plans.GET("/:id", h.PlanHandler.GetPlan)
		plans.GET("/code/:code", h.PlanHandler.GetPlanByCode)
	}

	// ==================== Settlement Webhook ====================
	// Authenticated by the shared-secret HMAC, not a bearer token.
	api.POST("/settlements/webhook", h.SettlementHandler.Webhook)

	// ==================== Provider Routes ====================
	subscriptions := api.Group("/subscriptions")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.GET("/current", h.SubscriptionHandler.GetCurrent)
		subscriptions.GET("/usage", h.SubscriptionHandler.GetUsage)
		subscriptions.GET("", h.SubscriptionHandler.ListSubscriptions)
		subscriptions.GET("/:id", h.SubscriptionHandler.GetSubscription)
		subscriptions.GET("/:id/history", h.SubscriptionHandler.GetHistory)
		subscriptions.PATCH("/:id", h.SubscriptionHandler.UpdateSubscription)
		subscriptions.POST("/:id/cancel", h.SubscriptionHandler.Cancel)
	}

	settlements := api.Group("/settlements")
	settlements.Use(h.AuthMiddleware.Auth())
	{
		settlements.POST("/verify", h.SettlementHandler.Verify)
	}

	alerts := api.Group("/alerts")
	alerts.Use(h.AuthMiddleware.Auth())
	{
		alerts.GET("", h.AlertHandler.ListAlerts)
	}

	// ==================== Service-to-Service Routes ====================
	// Resource creation services consult the gate before and after a guarded
	// creation.
	entitlements := api.Group("/entitlements")
	entitlements.Use(h.AuthMiddleware.ServiceAuth())
	{
		entitlements.POST("/:account_id/check", h.EntitlementHandler.Check)
		entitlements.POST("/:account_id/usage", h.EntitlementHandler.RecordUsage)
	}

	// ==================== Admin Routes ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/plans", h.PlanHandler.CreatePlan)
		admin.PUT("/plans/:id", h.PlanHandler.UpdatePlan)
		admin.PATCH("/plans/:id/status", h.PlanHandler.SetPlanStatus)
		admin.DELETE("/plans/:id", h.PlanHandler.DeletePlan)

		admin.GET("/subscriptions/stats", h.SubscriptionHandler.GetStats)

		admin.GET("/settlements", h.SettlementHandler.ListSettlements)
		admin.GET("/settlements/:reference", h.SettlementHandler.GetByReference)
		admin.POST("/settlements/:id/retry", h.SettlementHandler.Retry)
	}

	logger.Info("router configured")
}
