package model

import (
	"encoding/json"
	"time"
)

// ExpandableID decodes a provider reference that is either a bare id string
// or an expanded object carrying an "id" field.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*e = ExpandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

type CustomerDetails struct {
	Email string `json:"email"`
}

type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          ExpandableID      `json:"customer"`
	Subscription      ExpandableID      `json:"subscription"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerDetails   CustomerDetails   `json:"customer_details"`
	Metadata          map[string]string `json:"metadata"`
}

func (s *CheckoutSession) Email() string {
	if s.CustomerEmail != "" {
		return s.CustomerEmail
	}
	return s.CustomerDetails.Email
}

type SubscriptionPayload struct {
	ID         string            `json:"id"`
	Customer   ExpandableID      `json:"customer"`
	Status     string            `json:"status"`
	CanceledAt int64             `json:"canceled_at"`
	EndedAt    int64             `json:"ended_at"`
	Metadata   map[string]string `json:"metadata"`
}

type InvoiceParent struct {
	SubscriptionDetails *struct {
		Subscription ExpandableID `json:"subscription"`
	} `json:"subscription_details"`
}

type InvoicePayload struct {
	ID                 string         `json:"id"`
	Customer           ExpandableID   `json:"customer"`
	Subscription       ExpandableID   `json:"subscription"`
	Parent             *InvoiceParent `json:"parent"`
	AttemptCount       int64          `json:"attempt_count"`
	AmountDue          int64          `json:"amount_due"`
	Currency           string         `json:"currency"`
	NextPaymentAttempt int64          `json:"next_payment_attempt"`
}

// SubscriptionID returns the owning subscription, reading the newer
// parent.subscription_details shape before the legacy top-level field.
func (i *InvoicePayload) SubscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Subscription != "" {
		return i.Parent.SubscriptionDetails.Subscription.String()
	}
	return i.Subscription.String()
}

// SubscriptionSnapshot is the authoritative state of a subscription as
// returned by the provider API.
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CanceledAt         *time.Time
	Created            time.Time
	Metadata           map[string]string
}

// UnixTime converts a provider epoch-seconds value; zero means unset.
func UnixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
