package dto

import "time"

type CheckoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type Subscription struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	PriceID            string     `json:"price_id"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type SubscriptionResponse struct {
	HasActive    bool          `json:"has_active"`
	Subscription *Subscription `json:"subscription"`
}

type WebhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
