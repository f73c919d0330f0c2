package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/interfaces/http/response"
	"payroute.backend/pkg/logger"
)

// MaxWebhookBodyBytes caps the payload read from a gateway callback.
const MaxWebhookBodyBytes = 1 << 20

type WebhookService interface {
	HandleWebhook(ctx context.Context, gatewayCode string, payload []byte, headers http.Header) (*entities.WebhookResult, error)
}

// WebhookHandler receives gateway callbacks
type WebhookHandler struct {
	webhooks WebhookService
}

func NewWebhookHandler(webhooks WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleGatewayWebhook passes the raw body to reconciliation. Signatures are
// computed over the exact bytes, so the body is never decoded here.
// Gateways retry anything that is not a 2xx: unknown transactions answer 404
// so an early callback is redelivered, while terminal conflicts and
// unsupported events answer 200 to stop the retries.
// POST /api/v1/webhooks/:gateway
func (h *WebhookHandler) HandleGatewayWebhook(c *gin.Context) {
	gatewayCode := c.Param("gateway")
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ErrorWithError(c, http.StatusRequestEntityTooLarge, domainerrors.CodeBadRequest, "payload too large")
			return
		}
		response.Error(c, domainerrors.BadRequest("Failed to read webhook body"))
		return
	}

	result, err := h.webhooks.HandleWebhook(c.Request.Context(), gatewayCode, body, c.Request.Header)
	if err != nil {
		logger.Warn(c.Request.Context(), "Webhook rejected",
			zap.String("gateway", gatewayCode),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
