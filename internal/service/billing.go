package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/dto"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/repository"
)

type BillingService interface {
	CreateCheckout(ctx context.Context, userID, email string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	CreatePortal(ctx context.Context, userID string, req *dto.PortalRequest) (*dto.PortalResponse, error)
	GetSubscription(ctx context.Context, userID string) (*dto.SubscriptionResponse, error)
}

type billingServiceImpl struct {
	stripeClient     client.StripeClient
	customers        CustomerResolver
	subscriptionRepo repository.SubscriptionRepository

	successURL string
	cancelURL  string
	returnURL  string
}

func NewBillingService(
	stripeClient client.StripeClient,
	customers CustomerResolver,
	subscriptionRepo repository.SubscriptionRepository,
	cfg *config.Stripe,
	serviceBaseURL string,
) BillingService {
	base := strings.TrimRight(serviceBaseURL, "/")

	s := &billingServiceImpl{
		stripeClient:     stripeClient,
		customers:        customers,
		subscriptionRepo: subscriptionRepo,
		successURL:       cfg.SuccessURL,
		cancelURL:        cfg.CancelURL,
		returnURL:        cfg.PortalReturnURL,
	}
	if s.successURL == "" {
		s.successURL = base + "/subscription/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if s.cancelURL == "" {
		s.cancelURL = base + "/subscription"
	}
	if s.returnURL == "" {
		s.returnURL = base + "/account"
	}

	return s
}

func (s *billingServiceImpl) CreateCheckout(ctx context.Context, userID, email string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	customerID, err := s.customers.Resolve(ctx, userID, email)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	result, err := s.stripeClient.CreateCheckoutSession(ctx, &client.CheckoutSessionRequest{
		UserID:     userID,
		CustomerID: customerID,
		PriceID:    req.PriceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return nil, apperr.Upstream("stripe", err)
	}

	return &dto.CheckoutResponse{
		SessionID: result.SessionID,
		URL:       result.URL,
	}, nil
}

func (s *billingServiceImpl) CreatePortal(ctx context.Context, userID string, req *dto.PortalRequest) (*dto.PortalResponse, error) {
	customer, err := s.customers.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup customer for %s: %w", userID, err)
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.returnURL
	}

	url, err := s.stripeClient.CreatePortalSession(ctx, customer.StripeCustomerID, returnURL)
	if err != nil {
		return nil, apperr.Upstream("stripe", err)
	}

	return &dto.PortalResponse{URL: url}, nil
}

func (s *billingServiceImpl) GetSubscription(ctx context.Context, userID string) (*dto.SubscriptionResponse, error) {
	subs, err := s.subscriptionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Upstream("database", fmt.Errorf("list subscriptions for %s: %w", userID, err))
	}

	best := mostRelevant(subs)
	if best == nil {
		return nil, fmt.Errorf("subscription for %s: %w", userID, apperr.ErrNotFound)
	}

	return &dto.SubscriptionResponse{
		HasActive:    best.Status.Entitling(),
		Subscription: toSubscriptionDTO(best),
	}, nil
}

// mostRelevant prefers an entitling subscription, then a past_due one, then
// the latest. subs is ordered by updated_at descending.
func mostRelevant(subs []*model.Subscription) *model.Subscription {
	var pastDue *model.Subscription
	for _, sub := range subs {
		if sub.Status.Entitling() {
			return sub
		}
		if sub.Status == model.StatusPastDue && pastDue == nil {
			pastDue = sub
		}
	}
	if pastDue != nil {
		return pastDue
	}
	if len(subs) > 0 {
		return subs[0]
	}
	return nil
}

func toSubscriptionDTO(sub *model.Subscription) *dto.Subscription {
	return &dto.Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		PriceID:            sub.PriceID,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		TrialEnd:           sub.TrialEnd,
		CanceledAt:         sub.CanceledAt,
		UpdatedAt:          sub.UpdatedAt,
	}
}
