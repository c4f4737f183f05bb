package client

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"

	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/model"
)

type StripeClient interface {
	// CreateCustomer creates a provider customer tagged with the application user id.
	CreateCustomer(ctx context.Context, userID, email string) (string, error)

	// GetSubscription fetches the authoritative subscription resource.
	GetSubscription(ctx context.Context, subscriptionID string) (*model.SubscriptionSnapshot, error)

	// ListCustomerSubscriptions returns every subscription of a customer, any status.
	ListCustomerSubscriptions(ctx context.Context, customerID string) ([]*model.SubscriptionSnapshot, error)

	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResult, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type CheckoutSessionRequest struct {
	UserID     string
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

type CheckoutSessionResult struct {
	SessionID string
	URL       string
}

type stripeClientImpl struct {
	api     *stripeclient.API
	timeout time.Duration
}

func NewStripeClient(cfg *config.Stripe) StripeClient {
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &stripeClientImpl{
		api:     stripeclient.New(cfg.SecretKey, nil),
		timeout: timeout,
	}
}

func (c *stripeClientImpl) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	// concurrent first checkouts for one user collapse onto one customer at the provider
	params.SetIdempotencyKey("customer-create-" + userID)

	cus, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}

	return cus.ID, nil
}

func (c *stripeClientImpl) GetSubscription(ctx context.Context, subscriptionID string) (*model.SubscriptionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve subscription %s: %w", subscriptionID, err)
	}

	return toSnapshot(sub), nil
}

func (c *stripeClientImpl) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]*model.SubscriptionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []*model.SubscriptionSnapshot
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		out = append(out, toSnapshot(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list subscriptions for %s: %w", customerID, err)
	}

	return out, nil
}

func (c *stripeClientImpl) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": req.UserID},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}

	return &CheckoutSessionResult{
		SessionID: sess.ID,
		URL:       sess.URL,
	}, nil
}

func (c *stripeClientImpl) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}

	return sess.URL, nil
}

func toSnapshot(sub *stripe.Subscription) *model.SubscriptionSnapshot {
	snap := &model.SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            model.NormalizeStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		TrialStart:        model.UnixTime(sub.TrialStart),
		TrialEnd:          model.UnixTime(sub.TrialEnd),
		CanceledAt:        model.UnixTime(sub.CanceledAt),
		Metadata:          sub.Metadata,
	}
	if created := model.UnixTime(sub.Created); created != nil {
		snap.Created = *created
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}

	// billing period bounds live on the subscription items
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		snap.CurrentPeriodStart = model.UnixTime(item.CurrentPeriodStart)
		snap.CurrentPeriodEnd = model.UnixTime(item.CurrentPeriodEnd)
	}

	return snap
}
