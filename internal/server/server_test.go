package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/config"
	"github.com/zoroasterverse/billing-sync/internal/dto"
	"github.com/zoroasterverse/billing-sync/internal/middleware"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/service"
)

type stubWebhooks struct{}

func (stubWebhooks) HandleWebhook(ctx context.Context, headers http.Header, body []byte) (service.Outcome, error) {
	return service.OutcomeIgnored, nil
}

func (stubWebhooks) Receive(body []byte, signature string) (model.InboundEvent, error) {
	return nil, nil
}

type stubBilling struct {
	userID string
	email  string
}

func (s *stubBilling) CreateCheckout(ctx context.Context, userID, email string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	s.userID, s.email = userID, email
	return &dto.CheckoutResponse{SessionID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (s *stubBilling) CreatePortal(ctx context.Context, userID string, req *dto.PortalRequest) (*dto.PortalResponse, error) {
	s.userID = userID
	return &dto.PortalResponse{URL: "https://billing.stripe.test/p/1"}, nil
}

func (s *stubBilling) GetSubscription(ctx context.Context, userID string) (*dto.SubscriptionResponse, error) {
	s.userID = userID
	return &dto.SubscriptionResponse{}, nil
}

func newTestServer(t *testing.T) (*Server, *stubBilling) {
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

	billing := &stubBilling{}
	return NewServer(config.HTTPServer{}, db, stubWebhooks{}, billing, zerolog.Nop()), billing
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestWebhookRouteNeedsNoIdentity(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/stripe/webhook", `{}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"status":"ignored"}`, rec.Body.String())
}

func TestBillingRoutes(t *testing.T) {
	identity := map[string]string{
		middleware.HeaderUserID:    "user-42",
		middleware.HeaderUserEmail: "reader@zoroasterverse.test",
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "checkout without identity", method: http.MethodPost, path: "/api/billing/checkout", body: `{"price_id":"price_1"}`, wantStatus: http.StatusUnauthorized},
		{name: "checkout without price", method: http.MethodPost, path: "/api/billing/checkout", body: `{}`, headers: identity, wantStatus: http.StatusBadRequest},
		{name: "checkout bad success url", method: http.MethodPost, path: "/api/billing/checkout", body: `{"price_id":"price_1","success_url":"nope"}`, headers: identity, wantStatus: http.StatusBadRequest},
		{name: "checkout", method: http.MethodPost, path: "/api/billing/checkout", body: `{"price_id":"price_1"}`, headers: identity, wantStatus: http.StatusOK},
		{name: "portal", method: http.MethodPost, path: "/api/billing/portal", body: `{}`, headers: identity, wantStatus: http.StatusOK},
		{name: "subscription", method: http.MethodGet, path: "/api/billing/subscription", headers: identity, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, billing := newTestServer(t)
			rec := do(s, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "user-42", billing.userID)
			}
		})
	}
}

func TestCheckoutPassesEmail(t *testing.T) {
	s, billing := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/billing/checkout", `{"price_id":"price_1"}`, map[string]string{
		middleware.HeaderUserID:    "user-42",
		middleware.HeaderUserEmail: "reader@zoroasterverse.test",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reader@zoroasterverse.test", billing.email)
	assert.JSONEq(t, `{"session_id":"cs_1","url":"https://checkout.stripe.test/cs_1"}`, rec.Body.String())
}
