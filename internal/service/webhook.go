package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/repository"
)

const SignatureHeader = "Stripe-Signature"

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type WebhookService interface {
	// HandleWebhook verifies, routes and applies one provider notification.
	HandleWebhook(ctx context.Context, headers http.Header, body []byte) (Outcome, error)

	// Receive verifies the signature over the raw body and decodes the event.
	Receive(body []byte, signature string) (model.InboundEvent, error)
}

type webhookServiceImpl struct {
	secret    string
	tolerance time.Duration

	synchronizer     SubscriptionSynchronizer
	webhookEventRepo repository.WebhookEventRepository
	log              zerolog.Logger
}

func NewWebhookService(
	secret string,
	tolerance time.Duration,
	synchronizer SubscriptionSynchronizer,
	webhookEventRepo repository.WebhookEventRepository,
	log zerolog.Logger,
) WebhookService {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	return &webhookServiceImpl{
		secret:           secret,
		tolerance:        tolerance,
		synchronizer:     synchronizer,
		webhookEventRepo: webhookEventRepo,
		log:              log,
	}
}

func (s *webhookServiceImpl) Receive(body []byte, signature string) (model.InboundEvent, error) {
	if signature == "" {
		return nil, apperr.Authentication(apperr.ErrMissingSignature)
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, s.secret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Authentication(err)
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", model.ErrMalformedPayload, event.ID)
	}

	return model.ParseEvent(event.ID, string(event.Type), event.Created, event.Data.Raw)
}

func (s *webhookServiceImpl) HandleWebhook(ctx context.Context, headers http.Header, body []byte) (Outcome, error) {
	ev, err := s.Receive(body, headers.Get(SignatureHeader))
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook rejected")
		return "", err
	}

	meta := ev.Meta()
	log := s.log.With().
		Str("event_id", meta.ID).
		Str("type", meta.Type).
		Logger()

	if !actionable(ev) {
		log.Info().Msg("webhook ignored")
		return OutcomeIgnored, nil
	}

	processed, err := s.webhookEventRepo.IsProcessed(ctx, meta.ID)
	if err != nil {
		return "", apperr.Upstream("database", fmt.Errorf("check webhook event: %w", err))
	}
	if processed {
		log.Info().Msg("webhook already processed")
		return OutcomeDuplicate, nil
	}

	if err := s.webhookEventRepo.Record(ctx, meta.ID, meta.Type); err != nil {
		return "", apperr.Upstream("database", fmt.Errorf("record webhook event: %w", err))
	}

	if err := s.route(ctx, ev); err != nil {
		if markErr := s.webhookEventRepo.MarkFailed(ctx, meta.ID, err); markErr != nil {
			log.Error().Err(markErr).Msg("record webhook failure")
		}
		log.Error().Err(err).Msg("webhook processing failed")
		return "", err
	}

	if err := s.webhookEventRepo.MarkProcessed(ctx, meta.ID); err != nil {
		return "", apperr.Upstream("database", fmt.Errorf("mark webhook event processed: %w", err))
	}

	log.Info().Msg("webhook processed")
	return OutcomeProcessed, nil
}

// actionable reports whether the event reaches a synchronizer. Everything
// else is acknowledged without touching storage.
func actionable(ev model.InboundEvent) bool {
	switch e := ev.(type) {
	case *model.CheckoutCompletedEvent:
		return e.Session.Mode == "subscription"
	case *model.SubscriptionUpdatedEvent, *model.SubscriptionDeletedEvent:
		return true
	case *model.InvoicePaymentSucceededEvent:
		return e.Invoice.SubscriptionID() != ""
	case *model.InvoicePaymentFailedEvent:
		return e.Invoice.SubscriptionID() != ""
	default:
		return false
	}
}

func (s *webhookServiceImpl) route(ctx context.Context, ev model.InboundEvent) error {
	switch e := ev.(type) {
	case *model.CheckoutCompletedEvent:
		return s.synchronizer.CheckoutCompleted(ctx, e)
	case *model.SubscriptionUpdatedEvent:
		return s.synchronizer.SubscriptionUpdated(ctx, e)
	case *model.SubscriptionDeletedEvent:
		return s.synchronizer.SubscriptionDeleted(ctx, e)
	case *model.InvoicePaymentSucceededEvent:
		return s.synchronizer.InvoicePaymentSucceeded(ctx, e)
	case *model.InvoicePaymentFailedEvent:
		return s.synchronizer.InvoicePaymentFailed(ctx, e)
	case *model.UnknownEvent:
		return nil
	default:
		return fmt.Errorf("unhandled event variant %T", ev)
	}
}
