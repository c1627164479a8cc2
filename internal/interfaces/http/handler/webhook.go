package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/interfaces/http/dto"
)

// WebhookVerifier checks a channel's signature over a raw webhook payload.
type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, code integration.ChannelCode, payload []byte, signature string) (bool, error)
}

// WebhookSink receives the verified payload for asynchronous processing.
type WebhookSink func(ctx context.Context, code integration.ChannelCode, payload []byte) error

// signatureHeaders names the per-channel signature header. Channels not
// listed use the generic X-Webhook-Signature.
var signatureHeaders = map[integration.ChannelCode]string{
	integration.ChannelShopify: "X-Shopify-Hmac-Sha256",
	integration.ChannelAjio:    "X-Ajio-Signature",
}

const genericSignatureHeader = "X-Webhook-Signature"

// WebhookHandler ingests provider webhook deliveries. A payload whose
// signature does not verify is rejected before the sink ever sees it.
type WebhookHandler struct {
	BaseHandler
	verifier WebhookVerifier
	sink     WebhookSink
}

// NewWebhookHandler creates a WebhookHandler. A nil sink accepts and drops
// verified payloads, which is enough for delivery acknowledgement.
func NewWebhookHandler(verifier WebhookVerifier, sink WebhookSink) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, sink: sink}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/:channel", h.Receive)
}

// Receive verifies and accepts one webhook delivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	code := integration.ChannelCode(c.Param("channel"))
	if !code.IsValid() {
		h.Error(c, http.StatusNotFound, dto.ErrCodeUnknownProvider, "unknown channel: "+c.Param("channel"))
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "failed to read request body")
		return
	}

	ok, err := h.verifier.VerifyWebhook(c.Request.Context(), code, payload, h.signature(c, code))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !ok {
		h.Unauthorized(c, dto.ErrCodeInvalidSignature, "webhook signature verification failed")
		return
	}

	if h.sink != nil {
		if err := h.sink(c.Request.Context(), code, payload); err != nil {
			h.HandleError(c, err)
			return
		}
	}
	h.Accepted(c, gin.H{"channel": string(code)})
}

// signature reads the channel's signature header, falling back to the
// generic header for channels without a dedicated one.
func (h *WebhookHandler) signature(c *gin.Context, code integration.ChannelCode) string {
	if header, ok := signatureHeaders[code]; ok {
		if sig := c.GetHeader(header); sig != "" {
			return sig
		}
	}
	return c.GetHeader(genericSignatureHeader)
}
