package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/client"
	"github.com/zoroasterverse/billing-sync/internal/model"
	"github.com/zoroasterverse/billing-sync/internal/repository"
)

// CustomerResolver owns the user to provider customer mapping.
type CustomerResolver interface {
	// Resolve returns the user's provider customer id, creating the customer
	// on first use.
	Resolve(ctx context.Context, userID, email string) (string, error)
	// Link stores a mapping learned from a completed checkout. An existing
	// mapping is kept.
	Link(ctx context.Context, userID, customerID, email string) error
	Lookup(ctx context.Context, userID string) (*model.Customer, error)
	LookupByCustomerID(ctx context.Context, customerID string) (*model.Customer, error)
}

type customerResolverImpl struct {
	stripeClient client.StripeClient
	customerRepo repository.CustomerRepository
	log          zerolog.Logger

	inflight singleflight.Group
}

func NewCustomerResolver(
	stripeClient client.StripeClient,
	customerRepo repository.CustomerRepository,
	log zerolog.Logger,
) CustomerResolver {
	return &customerResolverImpl{
		stripeClient: stripeClient,
		customerRepo: customerRepo,
		log:          log,
	}
}

func (s *customerResolverImpl) Resolve(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", apperr.DataIntegrity("cannot resolve customer without user id")
	}

	existing, err := s.customerRepo.GetByUserID(ctx, userID)
	if err == nil {
		return existing.StripeCustomerID, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Upstream("database", err)
	}

	// callers in this process racing on one user share a single creation,
	// which must not die with whichever caller started it
	v, err, _ := s.inflight.Do(userID, func() (any, error) {
		return s.create(context.WithoutCancel(ctx), userID, email)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (s *customerResolverImpl) create(ctx context.Context, userID, email string) (string, error) {
	existing, err := s.customerRepo.GetByUserID(ctx, userID)
	if err == nil {
		return existing.StripeCustomerID, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Upstream("database", err)
	}

	customerID, err := s.stripeClient.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", apperr.Upstream("stripe", err)
	}

	created, stored, err := s.customerRepo.CreateIfNotExists(ctx, &model.Customer{
		UserID:           userID,
		StripeCustomerID: customerID,
		Email:            email,
	})
	if err != nil {
		return "", apperr.Upstream("database", err)
	}

	if !created && stored.StripeCustomerID != customerID {
		s.log.Warn().
			Str("user_id", userID).
			Str("kept_customer_id", stored.StripeCustomerID).
			Str("orphan_customer_id", customerID).
			Msg("customer mapping created concurrently; provider customer left unmapped")
	} else if created {
		s.log.Info().
			Str("user_id", userID).
			Str("customer_id", customerID).
			Msg("stripe customer created")
	}

	return stored.StripeCustomerID, nil
}

func (s *customerResolverImpl) Link(ctx context.Context, userID, customerID, email string) error {
	if userID == "" || customerID == "" {
		return nil
	}

	_, stored, err := s.customerRepo.CreateIfNotExists(ctx, &model.Customer{
		UserID:           userID,
		StripeCustomerID: customerID,
		Email:            email,
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.DataIntegrity("customer %s is already mapped to another user", customerID)
	}
	if err != nil {
		return apperr.Upstream("database", err)
	}

	if stored.StripeCustomerID != customerID {
		s.log.Warn().
			Str("user_id", userID).
			Str("mapped_customer_id", stored.StripeCustomerID).
			Str("checkout_customer_id", customerID).
			Msg("checkout used a different customer than the stored mapping")
	}

	return nil
}

func (s *customerResolverImpl) Lookup(ctx context.Context, userID string) (*model.Customer, error) {
	customer, err := s.customerRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Upstream("database", err)
	}
	return customer, err
}

func (s *customerResolverImpl) LookupByCustomerID(ctx context.Context, customerID string) (*model.Customer, error) {
	customer, err := s.customerRepo.GetByStripeCustomerID(ctx, customerID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Upstream("database", err)
	}
	return customer, err
}
