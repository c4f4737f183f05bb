package server

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/handler"
	authmw "github.com/zoroasterverse/billing-sync/internal/middleware"
	"github.com/zoroasterverse/billing-sync/internal/service"
)

type Server struct {
	echo           *echo.Echo
	db             *gorm.DB
	log            zerolog.Logger
	stripeHandler  *handler.StripeHandler
	billingHandler *handler.BillingHandler
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func NewServer(
	httpCfg config.HTTPServer,
	db *gorm.DB,
	webhookService service.WebhookService,
	billingService service.BillingService,
	log zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Server.ReadTimeout = httpCfg.ReadTimeout
	e.Server.WriteTimeout = httpCfg.WriteTimeout

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:           e,
		db:             db,
		log:            log,
		stripeHandler:  handler.NewStripeHandler(webhookService),
		billingHandler: handler.NewBillingHandler(billingService, log),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", s.health)

	// -------- stripe webhooks --------
	api.POST("/stripe/webhook", s.stripeHandler.Webhook)

	// -------- billing --------
	billing := api.Group("/billing", authmw.AuthMiddleware())
	billing.POST("/checkout", s.billingHandler.CreateCheckout)
	billing.POST("/portal", s.billingHandler.CreatePortal)
	billing.GET("/subscription", s.billingHandler.GetSubscription)
}

func (s *Server) health(c echo.Context) error {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		s.log.Error().Err(err).Msg("health check: database unreachable")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
