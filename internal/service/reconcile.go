package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/repository"
)

type SyncReport struct {
	Customers     int
	Subscriptions int
	Failed        int
}

// ReconcileService pulls every subscription of mapped customers from the
// provider and writes it through the synchronizer. Used to repair state
// after missed webhooks.
type ReconcileService interface {
	SyncUser(ctx context.Context, userID string, dryRun bool) (*SyncReport, error)
	SyncAll(ctx context.Context, dryRun bool) (*SyncReport, error)
}

type reconcileServiceImpl struct {
	stripeClient client.StripeClient
	customerRepo repository.CustomerRepository
	synchronizer SubscriptionSynchronizer
	log          zerolog.Logger
}

func NewReconcileService(
	stripeClient client.StripeClient,
	customerRepo repository.CustomerRepository,
	synchronizer SubscriptionSynchronizer,
	log zerolog.Logger,
) ReconcileService {
	return &reconcileServiceImpl{
		stripeClient: stripeClient,
		customerRepo: customerRepo,
		synchronizer: synchronizer,
		log:          log,
	}
}

func (s *reconcileServiceImpl) SyncUser(ctx context.Context, userID string, dryRun bool) (*SyncReport, error) {
	customer, err := s.customerRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get customer for %s: %w", userID, err)
	}

	report := &SyncReport{}
	err = s.syncCustomer(ctx, customer, dryRun, report)
	return report, err
}

func (s *reconcileServiceImpl) SyncAll(ctx context.Context, dryRun bool) (*SyncReport, error) {
	customers, err := s.customerRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	report := &SyncReport{}
	var errs []error
	for _, customer := range customers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.syncCustomer(ctx, customer, dryRun, report); err != nil {
			errs = append(errs, err)
		}
	}

	return report, errors.Join(errs...)
}

func (s *reconcileServiceImpl) syncCustomer(ctx context.Context, customer *model.Customer, dryRun bool, report *SyncReport) error {
	report.Customers++

	snaps, err := s.stripeClient.ListCustomerSubscriptions(ctx, customer.StripeCustomerID)
	if err != nil {
		report.Failed++
		return fmt.Errorf("list subscriptions for %s: %w", customer.UserID, err)
	}

	var errs []error
	for _, snap := range snaps {
		log := s.log.With().
			Str("user_id", customer.UserID).
			Str("subscription_id", snap.ID).
			Str("status", string(snap.Status)).
			Logger()

		if dryRun {
			log.Info().Msg("dry run: would sync subscription")
			report.Subscriptions++
			continue
		}

		if err := s.synchronizer.SyncSnapshot(ctx, customer.UserID, snap); err != nil {
			log.Error().Err(err).Msg("sync subscription failed")
			report.Failed++
			errs = append(errs, err)
			continue
		}
		report.Subscriptions++
	}

	return errors.Join(errs...)
}
