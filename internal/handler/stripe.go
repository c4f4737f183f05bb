package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/dto"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/service"
)

const webhookBodyLimit = 1024 * 1024 // 1MiB

type StripeHandler struct {
	webhookService service.WebhookService
}

func NewStripeHandler(webhookService service.WebhookService) *StripeHandler {
	return &StripeHandler{
		webhookService: webhookService,
	}
}

// Webhook must see the body exactly as sent; it is read raw and never bound.
func (h *StripeHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, webhookBodyLimit)
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "failed to read request body"})
	}

	outcome, err := h.webhookService.HandleWebhook(ctx, req.Header, body)
	if err != nil {
		status, msg := webhookStatus(err)
		return c.JSON(status, dto.ErrorResponse{Error: msg})
	}

	return c.JSON(http.StatusOK, dto.WebhookAck{
		Received: true,
		Status:   string(outcome),
	})
}

// webhookStatus maps a processing error to the response the provider sees.
// Only 5xx responses are redelivered.
func webhookStatus(err error) (int, string) {
	switch {
	case apperr.IsAuthentication(err):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, model.ErrMalformedPayload):
		return http.StatusBadRequest, "invalid payload"
	default:
		return http.StatusInternalServerError, "webhook processing failed"
	}
}
