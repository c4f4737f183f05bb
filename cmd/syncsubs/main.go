// Command syncsubs re-reads subscriptions from Stripe for mapped customers
// and writes them to the database. It repairs state after missed webhooks.
package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/logger"
	"github.com/zoroasterverse/billing-sync/internal/repository"
	"github.com/zoroasterverse/billing-sync/internal/service"
)

type options struct {
	userID  string
	all     bool
	dryRun  bool
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "syncsubs",
		Short: "Sync Stripe subscriptions into the database",
		Example: `  syncsubs --user-id user-42
  syncsubs --all --dry-run`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.all == (opts.userID != "") {
				return fmt.Errorf("exactly one of --user-id or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user-id", "", "sync a single application user")
	cmd.Flags().BoolVar(&opts.all, "all", false, "sync every mapped customer")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log intended writes without applying them")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ValidateSync(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	if opts.verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	db, err := client.InitDBClient(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	stripeClient := client.NewStripeClient(&cfg.Stripe)

	timeout := cfg.Database.QueryTimeout
	customerRepo := repository.NewCustomerRepository(db, timeout)
	customers := service.NewCustomerResolver(stripeClient, customerRepo, log)
	synchronizer := service.NewSubscriptionSynchronizer(
		stripeClient,
		customers,
		repository.NewSubscriptionRepository(db, timeout),
		repository.NewPaymentFailureRepository(db, timeout),
		log,
	)
	reconciler := service.NewReconcileService(stripeClient, customerRepo, synchronizer, log)

	ctx := cmd.Context()
	var report *service.SyncReport
	if opts.all {
		report, err = reconciler.SyncAll(ctx, opts.dryRun)
	} else {
		report, err = reconciler.SyncUser(ctx, opts.userID, opts.dryRun)
	}

	if report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "customers=%d subscriptions=%d failed=%d dry_run=%t\n",
			report.Customers, report.Subscriptions, report.Failed, opts.dryRun)
	}
	if err != nil {
		log.Error().Err(err).Msg("sync finished with errors")
		return err
	}

	return nil
}
