package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/repository"
)

const testSecret = "whsec_test_secret"

type fakeStripe struct {
	mu sync.Mutex

	subscriptions map[string]*model.SubscriptionSnapshot
	byCustomer    map[string][]string

	customersCreated int
	createDelay      time.Duration
	createErr        error
	getErr           error
	fetched          chan struct{}
	gate             chan struct{}
	checkoutRequests []*client.CheckoutSessionRequest
	portalCustomers  []string
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{
		subscriptions: map[string]*model.SubscriptionSnapshot{},
		byCustomer:    map[string][]string{},
	}
}

func (f *fakeStripe) put(snap *model.SubscriptionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscriptions[snap.ID]; !ok {
		f.byCustomer[snap.CustomerID] = append(f.byCustomer[snap.CustomerID], snap.ID)
	}
	f.subscriptions[snap.ID] = snap
}

func (f *fakeStripe) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customersCreated
}

func (f *fakeStripe) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.customersCreated++
	return fmt.Sprintf("cus_%s_%d", userID, f.customersCreated), nil
}

func (f *fakeStripe) GetSubscription(ctx context.Context, subscriptionID string) (*model.SubscriptionSnapshot, error) {
	if f.gate != nil {
		f.fetched <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	snap, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeStripe) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]*model.SubscriptionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []*model.SubscriptionSnapshot
	for _, id := range f.byCustomer[customerID] {
		cp := *f.subscriptions[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, req *client.CheckoutSessionRequest) (*client.CheckoutSessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutRequests = append(f.checkoutRequests, req)
	return &client.CheckoutSessionResult{
		SessionID: "cs_test_1",
		URL:       "https://checkout.stripe.test/cs_test_1",
	}, nil
}

func (f *fakeStripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portalCustomers = append(f.portalCustomers, customerID)
	return "https://billing.stripe.test/p/" + customerID, nil
}

type testEnv struct {
	db     *gorm.DB
	stripe *fakeStripe

	customerRepo       repository.CustomerRepository
	subscriptionRepo   repository.SubscriptionRepository
	webhookEventRepo   repository.WebhookEventRepository
	paymentFailureRepo repository.PaymentFailureRepository

	customers    CustomerResolver
	synchronizer SubscriptionSynchronizer
	webhooks     WebhookService
	billing      BillingService
	reconcile    ReconcileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := client.InitDBClient(config.Database{
		Driver: "sqlite",
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := zerolog.Nop()
	env := &testEnv{
		db:                 db,
		stripe:             newFakeStripe(),
		customerRepo:       repository.NewCustomerRepository(db, time.Second),
		subscriptionRepo:   repository.NewSubscriptionRepository(db, time.Second),
		webhookEventRepo:   repository.NewWebhookEventRepository(db, time.Second),
		paymentFailureRepo: repository.NewPaymentFailureRepository(db, time.Second),
	}
	env.customers = NewCustomerResolver(env.stripe, env.customerRepo, log)
	env.synchronizer = NewSubscriptionSynchronizer(env.stripe, env.customers, env.subscriptionRepo, env.paymentFailureRepo, log)
	env.webhooks = NewWebhookService(testSecret, 5*time.Minute, env.synchronizer, env.webhookEventRepo, log)
	env.billing = NewBillingService(env.stripe, env.customers, env.subscriptionRepo, &config.Stripe{}, "https://zoroasterverse.test")
	env.reconcile = NewReconcileService(env.stripe, env.customerRepo, env.synchronizer, log)
	return env
}

func (e *testEnv) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

func (e *testEnv) totalRows(t *testing.T) int64 {
	t.Helper()
	var total int64
	for _, m := range model.AllModels() {
		total += e.count(t, m)
	}
	return total
}

// signedEvent builds a provider event envelope around object and signs it
// with secret the way the provider does.
func signedEvent(t *testing.T, secret, eventID, eventType string, object any) ([]byte, string) {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)

	envelope, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"created":     1700000000,
		"api_version": "2025-03-31.basil",
		"livemode":    false,
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   envelope,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func headers(signature string) http.Header {
	h := http.Header{}
	if signature != "" {
		h.Set(SignatureHeader, signature)
	}
	return h
}

func snapshot(id, customerID string, status model.SubscriptionStatus) *model.SubscriptionSnapshot {
	return &model.SubscriptionSnapshot{
		ID:                 id,
		CustomerID:         customerID,
		Status:             status,
		PriceID:            "price_scholar_monthly",
		CurrentPeriodStart: model.UnixTime(1700000000),
		CurrentPeriodEnd:   model.UnixTime(1702592000),
		Created:            time.Unix(1700000000, 0).UTC(),
	}
}

var errProviderDown = errors.New("provider unavailable")
