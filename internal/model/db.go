package model

import "time"

type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusTrialing   SubscriptionStatus = "trialing"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCanceled, StatusIncomplete, StatusPastDue, StatusUnpaid, StatusTrialing:
		return true
	}
	return false
}

// Entitling reports whether the status grants access to paid content.
func (s SubscriptionStatus) Entitling() bool {
	return s == StatusActive || s == StatusTrialing
}

// Customer maps one application user to one provider customer.
type Customer struct {
	UserID           string `gorm:"primaryKey;size:64;not null"`
	StripeCustomerID string `gorm:"size:64;uniqueIndex;not null"`
	Email            string `gorm:"size:255"`
	CreatedAt        time.Time
}

// Subscription is the last authoritative snapshot of one provider subscription.
// Rows are never deleted; cancellation is a status.
type Subscription struct {
	ID                 string             `gorm:"primaryKey;size:64;not null"` // provider subscription id
	UserID             string             `gorm:"size:64;index"`
	CustomerID         string             `gorm:"size:64;index"`
	Status             SubscriptionStatus `gorm:"size:32;index;not null"`
	PriceID            string             `gorm:"size:64"`
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool `gorm:"not null;default:false"`
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CanceledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type WebhookEvent struct {
	EventID         string `gorm:"primaryKey;size:128;not null"`
	EventType       string `gorm:"size:64;index"`
	Attempts        int    `gorm:"not null;default:0"`
	ProcessingError string `gorm:"type:text"`
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentFailure is an observation of a failed invoice payment. It never
// drives subscription status.
type PaymentFailure struct {
	EventID            string `gorm:"primaryKey;size:128;not null"`
	InvoiceID          string `gorm:"size:64;index;not null"`
	SubscriptionID     string `gorm:"size:64;index;not null"`
	CustomerID         string `gorm:"size:64"`
	AttemptCount       int64
	AmountDue          int64
	Currency           string `gorm:"size:8"`
	NextPaymentAttempt *time.Time
	CreatedAt          time.Time
}

// AllModels is the AutoMigrate list.
func AllModels() []any {
	return []any{
		&Customer{},
		&Subscription{},
		&WebhookEvent{},
		&PaymentFailure{},
	}
}

// NormalizeStatus folds provider statuses outside the tracked set onto it.
func NormalizeStatus(s string) SubscriptionStatus {
	switch st := SubscriptionStatus(s); {
	case st.Valid():
		return st
	case s == "incomplete_expired":
		return StatusCanceled
	case s == "paused":
		return StatusUnpaid
	default:
		return StatusIncomplete
	}
}
