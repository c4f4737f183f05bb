package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/logger"
	"github.com/zoroasterverse/billing-sync/internal/repository"
	"github.com/zoroasterverse/billing-sync/internal/server"
	"github.com/zoroasterverse/billing-sync/internal/service"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := client.InitDBClient(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("init database")
	}
	stripeClient := client.NewStripeClient(&cfg.Stripe)

	timeout := cfg.Database.QueryTimeout
	customerRepo := repository.NewCustomerRepository(db, timeout)
	subscriptionRepo := repository.NewSubscriptionRepository(db, timeout)
	webhookEventRepo := repository.NewWebhookEventRepository(db, timeout)
	paymentFailureRepo := repository.NewPaymentFailureRepository(db, timeout)

	customers := service.NewCustomerResolver(stripeClient, customerRepo, log)
	synchronizer := service.NewSubscriptionSynchronizer(
		stripeClient,
		customers,
		subscriptionRepo,
		paymentFailureRepo,
		log,
	)
	webhookService := service.NewWebhookService(
		cfg.Stripe.WebhookSecret,
		cfg.Stripe.WebhookTolerance,
		synchronizer,
		webhookEventRepo,
		log,
	)
	billingService := service.NewBillingService(
		stripeClient,
		customers,
		subscriptionRepo,
		&cfg.Stripe,
		cfg.BaseURL,
	)

	// Init HTTP server
	srv := server.NewServer(cfg.HTTP, db, webhookService, billingService, log)

	serverAddr := cfg.Addr()
	log.Info().Str("addr", serverAddr).Str("env", cfg.Environment.Name).Msg("starting HTTP server")
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info().Msg("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("HTTP server shutdown error")
	}
}
