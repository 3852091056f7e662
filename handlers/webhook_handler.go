package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/pkg/logger"
	"github.com/onurcolak/followup-engine/pkg/whatsapp"
)

const maxWebhookBody = 1 << 20

type inboundSink interface {
	OnInboundMessage(ctx context.Context, msg domain.InboundMessage)
}

// WebhookHandler receives gateway events. It always acknowledges with 200 so
// the gateway does not redeliver events the engine chose to ignore.
type WebhookHandler struct {
	sink inboundSink
}

func NewWebhookHandler(sink inboundSink) *WebhookHandler {
	return &WebhookHandler{sink: sink}
}

// ReceiveWhatsApp godoc
// @Summary WhatsApp gateway webhook
// @Description Receives inbound message events and attributes replies to the follow-up they answer
// @Tags webhooks
// @Accept json
// @Produce json
// @Param token query string false "Webhook token"
// @Success 200 {object} map[string]any
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/webhooks/whatsapp [post]
func (h *WebhookHandler) ReceiveWhatsApp(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		logger.Warnf("Failed to read webhook body: %v", err)
		return ack(c, false)
	}

	msg, ok, err := whatsapp.ParseInbound(body)
	if err != nil {
		logger.Warnf("Ignoring malformed webhook payload: %v", err)
		return ack(c, false)
	}
	if !ok {
		return ack(c, false)
	}

	// Lookups run on the request; the slow analysis is queued.
	h.sink.OnInboundMessage(context.WithoutCancel(c.Request().Context()), msg)

	return ack(c, true)
}

func ack(c echo.Context, accepted bool) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"accepted": accepted,
	})
}
