package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/repository"
)

const metadataUserID = "user_id"

// SubscriptionSynchronizer applies provider events to the subscriptions
// table. Every write is an absolute snapshot keyed by subscription id, so
// applying an event twice has the same effect as applying it once.
type SubscriptionSynchronizer interface {
	CheckoutCompleted(ctx context.Context, ev *model.CheckoutCompletedEvent) error
	SubscriptionUpdated(ctx context.Context, ev *model.SubscriptionUpdatedEvent) error
	SubscriptionDeleted(ctx context.Context, ev *model.SubscriptionDeletedEvent) error
	InvoicePaymentSucceeded(ctx context.Context, ev *model.InvoicePaymentSucceededEvent) error
	InvoicePaymentFailed(ctx context.Context, ev *model.InvoicePaymentFailedEvent) error

	// SyncSnapshot upserts a snapshot already fetched from the provider.
	SyncSnapshot(ctx context.Context, userID string, snap *model.SubscriptionSnapshot) error
}

type subscriptionSyncImpl struct {
	stripeClient       client.StripeClient
	customers          CustomerResolver
	subscriptionRepo   repository.SubscriptionRepository
	paymentFailureRepo repository.PaymentFailureRepository
	log                zerolog.Logger
}

func NewSubscriptionSynchronizer(
	stripeClient client.StripeClient,
	customers CustomerResolver,
	subscriptionRepo repository.SubscriptionRepository,
	paymentFailureRepo repository.PaymentFailureRepository,
	log zerolog.Logger,
) SubscriptionSynchronizer {
	return &subscriptionSyncImpl{
		stripeClient:       stripeClient,
		customers:          customers,
		subscriptionRepo:   subscriptionRepo,
		paymentFailureRepo: paymentFailureRepo,
		log:                log,
	}
}

func (s *subscriptionSyncImpl) CheckoutCompleted(ctx context.Context, ev *model.CheckoutCompletedEvent) error {
	session := ev.Session

	userID := session.ClientReferenceID
	if userID == "" {
		return apperr.DataIntegrity("checkout session %s has no client reference", session.ID)
	}
	subscriptionID := session.Subscription.String()
	if subscriptionID == "" {
		return apperr.DataIntegrity("checkout session %s has no subscription", session.ID)
	}

	// the session may be stale relative to the subscription resource
	snap, err := s.fetch(ctx, subscriptionID)
	if err != nil {
		return err
	}

	customerID := snap.CustomerID
	if customerID == "" {
		customerID = session.Customer.String()
	}
	if err := s.customers.Link(ctx, userID, customerID, session.Email()); err != nil {
		return fmt.Errorf("link customer for %s: %w", userID, err)
	}

	return s.SyncSnapshot(ctx, userID, snap)
}

func (s *subscriptionSyncImpl) SubscriptionUpdated(ctx context.Context, ev *model.SubscriptionUpdatedEvent) error {
	return s.refresh(ctx, ev.Subscription.ID, ev.Subscription.Metadata[metadataUserID])
}

func (s *subscriptionSyncImpl) SubscriptionDeleted(ctx context.Context, ev *model.SubscriptionDeletedEvent) error {
	payload := ev.Subscription

	canceledAt := model.UnixTime(payload.CanceledAt)
	if canceledAt == nil {
		canceledAt = model.UnixTime(payload.EndedAt)
	}
	if canceledAt == nil {
		created := ev.Created
		canceledAt = &created
	}

	customerID := payload.Customer.String()
	userID, err := s.owner(ctx, payload.Metadata[metadataUserID], customerID)
	if err != nil {
		return err
	}

	err = s.subscriptionRepo.MarkCanceled(ctx, &model.Subscription{
		ID:         payload.ID,
		UserID:     userID,
		CustomerID: customerID,
		CanceledAt: canceledAt,
	})
	if err != nil {
		return apperr.Upstream("database", fmt.Errorf("mark subscription %s canceled: %w", payload.ID, err))
	}

	s.log.Info().
		Str("subscription_id", payload.ID).
		Time("canceled_at", *canceledAt).
		Msg("subscription canceled")

	return nil
}

func (s *subscriptionSyncImpl) InvoicePaymentSucceeded(ctx context.Context, ev *model.InvoicePaymentSucceededEvent) error {
	subscriptionID := ev.Invoice.SubscriptionID()
	if subscriptionID == "" {
		return nil
	}
	return s.refresh(ctx, subscriptionID, "")
}

func (s *subscriptionSyncImpl) InvoicePaymentFailed(ctx context.Context, ev *model.InvoicePaymentFailedEvent) error {
	invoice := ev.Invoice
	subscriptionID := invoice.SubscriptionID()
	if subscriptionID == "" {
		return nil
	}

	s.log.Warn().
		Str("event_id", ev.ID).
		Str("invoice_id", invoice.ID).
		Str("subscription_id", subscriptionID).
		Int64("attempt_count", invoice.AttemptCount).
		Msg("invoice payment failed")

	err := s.paymentFailureRepo.Record(ctx, &model.PaymentFailure{
		EventID:            ev.ID,
		InvoiceID:          invoice.ID,
		SubscriptionID:     subscriptionID,
		CustomerID:         invoice.Customer.String(),
		AttemptCount:       invoice.AttemptCount,
		AmountDue:          invoice.AmountDue,
		Currency:           invoice.Currency,
		NextPaymentAttempt: model.UnixTime(invoice.NextPaymentAttempt),
	})
	if err != nil {
		return apperr.Upstream("database", fmt.Errorf("record payment failure for %s: %w", invoice.ID, err))
	}

	return nil
}

func (s *subscriptionSyncImpl) SyncSnapshot(ctx context.Context, userID string, snap *model.SubscriptionSnapshot) error {
	owner, err := s.owner(ctx, userID, snap.CustomerID)
	if err != nil {
		return err
	}
	if owner == "" {
		owner = snap.Metadata[metadataUserID]
	}

	sub := &model.Subscription{
		ID:                 snap.ID,
		UserID:             owner,
		CustomerID:         snap.CustomerID,
		Status:             snap.Status,
		PriceID:            snap.PriceID,
		CurrentPeriodStart: snap.CurrentPeriodStart,
		CurrentPeriodEnd:   snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:  snap.CancelAtPeriodEnd,
		TrialStart:         snap.TrialStart,
		TrialEnd:           snap.TrialEnd,
		CanceledAt:         snap.CanceledAt,
		CreatedAt:          snap.Created,
	}
	if err := s.subscriptionRepo.Upsert(ctx, sub); err != nil {
		return apperr.Upstream("database", fmt.Errorf("upsert subscription %s: %w", snap.ID, err))
	}

	s.log.Info().
		Str("subscription_id", sub.ID).
		Str("user_id", sub.UserID).
		Str("status", string(sub.Status)).
		Msg("subscription synced")

	return nil
}

func (s *subscriptionSyncImpl) refresh(ctx context.Context, subscriptionID, userID string) error {
	snap, err := s.fetch(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.SyncSnapshot(ctx, userID, snap)
}

func (s *subscriptionSyncImpl) fetch(ctx context.Context, subscriptionID string) (*model.SubscriptionSnapshot, error) {
	snap, err := s.stripeClient.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, apperr.Upstream("stripe", err)
	}
	return snap, nil
}

// owner picks the application user for a subscription: an explicit id wins,
// then the stored customer mapping. An unknown owner is not an error.
func (s *subscriptionSyncImpl) owner(ctx context.Context, userID, customerID string) (string, error) {
	if userID != "" || customerID == "" {
		return userID, nil
	}

	customer, err := s.customers.LookupByCustomerID(ctx, customerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return customer.UserID, nil
}
