// internal/handlers/settlement/settlement_handler.go
package settlement

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"soko-service/internal/domain/settlement"
	"soko-service/internal/pkg/response"
	service "soko-service/internal/service/settlement"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's HMAC-SHA256 of the raw body, hex
// encoded.
const SignatureHeader = "X-Soko-Signature"

type SettlementHandler struct {
	settlements   *service.SettlementService
	webhookSecret string
	logger        *zap.Logger
}

func NewSettlementHandler(settlements *service.SettlementService, webhookSecret string, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlements:   settlements,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// Webhook receives gateway settlement callbacks. The body is authenticated
// with the shared-secret HMAC before anything is parsed. The gateway retries
// non-2xx responses, so duplicates answer 200 with the original result.
func (h *SettlementHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to read body", err)
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", zap.String("client_ip", c.ClientIP()))
		response.Error(c, http.StatusUnauthorized, "invalid signature", nil)
		return
	}

	var req settlement.ReportSettlementRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}
	if req.Reference == "" || req.AccountID == 0 || req.PlanID == 0 {
		response.Error(c, http.StatusBadRequest, "missing required fields", nil)
		return
	}

	result, err := h.settlements.Apply(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err, "failed to apply settlement")
		return
	}

	response.Success(c, http.StatusOK, "settlement processed", result)
}

// Verify lets an authenticated provider push a settlement it verified with
// the gateway synchronously, instead of waiting for the webhook. Same
// reference, same result.
func (h *SettlementHandler) Verify(c *gin.Context) {
	var req settlement.ReportSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.settlements.Apply(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err, "failed to apply settlement")
		return
	}

	response.Success(c, http.StatusOK, "settlement processed", result)
}

func (h *SettlementHandler) verifySignature(body []byte, signature string) bool {
	if h.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// ========== Admin Endpoints ==========

// ListSettlements pages through recorded settlements
func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	var filters settlement.SettlementListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	settlements, total, err := h.settlements.ListSettlements(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, err, "failed to list settlements")
		return
	}

	response.Success(c, http.StatusOK, "settlements retrieved", gin.H{
		"settlements": settlements,
		"total":       total,
	})
}

// GetByReference looks up one settlement by gateway reference
func (h *SettlementHandler) GetByReference(c *gin.Context) {
	stl, err := h.settlements.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.FromError(c, err, "failed to get settlement")
		return
	}

	response.Success(c, http.StatusOK, "settlement retrieved", stl)
}

// Retry re-applies a failed settlement
func (h *SettlementHandler) Retry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid settlement ID", err)
		return
	}

	result, err := h.settlements.RetryFailed(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err, "failed to retry settlement")
		return
	}

	response.Success(c, http.StatusOK, "settlement retried", result)
}
