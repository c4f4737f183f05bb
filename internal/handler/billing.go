package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/dto"
	"github.com/zoroasterverse/billing-sync/internal/middleware"
	"github.com/zoroasterverse/billing-sync/internal/service"
)

type BillingHandler struct {
	billingService service.BillingService
	log            zerolog.Logger
}

func NewBillingHandler(billingService service.BillingService, log zerolog.Logger) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		log:            log,
	}
}

func (h *BillingHandler) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.billingService.CreateCheckout(ctx, middleware.UserID(c), middleware.UserEmail(c), &req)
	if err != nil {
		return h.fail(c, "create checkout", err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *BillingHandler) CreatePortal(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PortalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.billingService.CreatePortal(ctx, middleware.UserID(c), &req)
	if err != nil {
		return h.fail(c, "create portal", err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *BillingHandler) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.billingService.GetSubscription(ctx, middleware.UserID(c))
	if err != nil {
		return h.fail(c, "get subscription", err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *BillingHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no billing record for user")
	case apperr.IsDataIntegrity(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.log.Error().Err(err).
		Str("op", op).
		Str("user_id", middleware.UserID(c)).
		Msg("billing request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, op+" failed")
}
