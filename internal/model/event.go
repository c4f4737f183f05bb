package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

var ErrMalformedPayload = errors.New("malformed event payload")

// InboundEvent is a verified provider notification. The concrete types below
// are the only implementations.
type InboundEvent interface {
	Meta() EventMeta
	inboundEvent()
}

type EventMeta struct {
	ID      string
	Type    string
	Created time.Time
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) inboundEvent()     {}

type CheckoutCompletedEvent struct {
	EventMeta
	Session CheckoutSession
}

type SubscriptionUpdatedEvent struct {
	EventMeta
	Subscription SubscriptionPayload
}

type SubscriptionDeletedEvent struct {
	EventMeta
	Subscription SubscriptionPayload
}

type InvoicePaymentSucceededEvent struct {
	EventMeta
	Invoice InvoicePayload
}

type InvoicePaymentFailedEvent struct {
	EventMeta
	Invoice InvoicePayload
}

// UnknownEvent is any verified event whose type is not handled.
type UnknownEvent struct {
	EventMeta
}

// ParseEvent decodes the data.object of a verified event into its variant.
func ParseEvent(id, eventType string, created int64, raw json.RawMessage) (InboundEvent, error) {
	meta := EventMeta{ID: id, Type: eventType, Created: time.Unix(created, 0).UTC()}

	decode := func(v any) error {
		if len(raw) == 0 {
			return fmt.Errorf("%w: %s has no data object", ErrMalformedPayload, eventType)
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrMalformedPayload, eventType, err)
		}
		return nil
	}

	switch eventType {
	case EventCheckoutCompleted:
		ev := &CheckoutCompletedEvent{EventMeta: meta}
		if err := decode(&ev.Session); err != nil {
			return nil, err
		}
		return ev, nil
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		// a created subscription is synced the same way as an update
		ev := &SubscriptionUpdatedEvent{EventMeta: meta}
		if err := decode(&ev.Subscription); err != nil {
			return nil, err
		}
		if ev.Subscription.ID == "" {
			return nil, fmt.Errorf("%w: subscription id missing", ErrMalformedPayload)
		}
		return ev, nil
	case EventSubscriptionDeleted:
		ev := &SubscriptionDeletedEvent{EventMeta: meta}
		if err := decode(&ev.Subscription); err != nil {
			return nil, err
		}
		if ev.Subscription.ID == "" {
			return nil, fmt.Errorf("%w: subscription id missing", ErrMalformedPayload)
		}
		return ev, nil
	case EventInvoicePaymentSucceeded:
		ev := &InvoicePaymentSucceededEvent{EventMeta: meta}
		if err := decode(&ev.Invoice); err != nil {
			return nil, err
		}
		return ev, nil
	case EventInvoicePaymentFailed:
		ev := &InvoicePaymentFailedEvent{EventMeta: meta}
		if err := decode(&ev.Invoice); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return &UnknownEvent{EventMeta: meta}, nil
	}
}
