package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zoroasterverse/billing-sync/internal/model"
)

type PaymentFailureRepository interface {
	// Record stores the observation once per event id.
	Record(ctx context.Context, failure *model.PaymentFailure) error
	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.PaymentFailure, error)
}

type paymentFailureRepoImpl struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewPaymentFailureRepository(db *gorm.DB, timeout time.Duration) PaymentFailureRepository {
	return &paymentFailureRepoImpl{
		db:      db,
		timeout: timeout,
	}
}

func (r *paymentFailureRepoImpl) Record(ctx context.Context, failure *model.PaymentFailure) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(failure).Error
}

func (r *paymentFailureRepoImpl) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.PaymentFailure, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var failures []*model.PaymentFailure
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at").
		Find(&failures).Error
	if err != nil {
		return nil, err
	}

	return failures, nil
}
