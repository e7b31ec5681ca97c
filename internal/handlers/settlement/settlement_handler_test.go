package settlement

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *SettlementHandler, body []byte, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/settlements/webhook", bytes.NewReader(body))
	if signature != "" {
		c.Request.Header.Set(SignatureHeader, signature)
	}
	h.Webhook(c)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := NewSettlementHandler(nil, "topsecret", zap.NewNop())
	body := []byte(`{"reference":"MPX-001"}`)

	w := postWebhook(h, body, sign("wrongsecret", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	h := NewSettlementHandler(nil, "topsecret", zap.NewNop())

	w := postWebhook(h, []byte(`{"reference":"MPX-001"}`), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsSignatureOverTamperedBody(t *testing.T) {
	h := NewSettlementHandler(nil, "topsecret", zap.NewNop())
	signed := []byte(`{"reference":"MPX-001","amount_minor":4999}`)
	tampered := []byte(`{"reference":"MPX-001","amount_minor":1}`)

	w := postWebhook(h, tampered, sign("topsecret", signed))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifySignature(t *testing.T) {
	h := NewSettlementHandler(nil, "topsecret", zap.NewNop())
	body := []byte(`{"reference":"MPX-001"}`)

	assert.True(t, h.verifySignature(body, sign("topsecret", body)))
	assert.False(t, h.verifySignature(body, sign("other", body)))
	assert.False(t, h.verifySignature(body, ""))
}

func TestVerifySignatureNoSecretConfigured(t *testing.T) {
	h := NewSettlementHandler(nil, "", zap.NewNop())
	body := []byte(`{}`)

	// An empty secret disables the webhook rather than accepting anything.
	assert.False(t, h.verifySignature(body, sign("", body)))
}
