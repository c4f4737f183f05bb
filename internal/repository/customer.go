package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zoroasterverse/billing-sync/internal/model"
)

type CustomerRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.Customer, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*model.Customer, error)
	// CreateIfNotExists inserts the mapping unless one already exists for the
	// user, and returns whichever row is stored afterwards.
	CreateIfNotExists(ctx context.Context, customer *model.Customer) (bool, *model.Customer, error)
	List(ctx context.Context) ([]*model.Customer, error)
}

type customerRepoImpl struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewCustomerRepository(db *gorm.DB, timeout time.Duration) CustomerRepository {
	return &customerRepoImpl{
		db:      db,
		timeout: timeout,
	}
}

func (r *customerRepoImpl) GetByUserID(ctx context.Context, userID string) (*model.Customer, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var customer model.Customer
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&customer).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &customer, nil
}

func (r *customerRepoImpl) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.Customer, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var customer model.Customer
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&customer).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &customer, nil
}

func (r *customerRepoImpl) CreateIfNotExists(ctx context.Context, customer *model.Customer) (bool, *model.Customer, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(customer)
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
		return false, nil, tx.Error
	}
	created := tx.Error == nil && tx.RowsAffected > 0

	var stored model.Customer
	err := r.db.WithContext(ctx).
		Where("user_id = ?", customer.UserID).
		First(&stored).Error
	if err != nil {
		return false, nil, notFound(err)
	}

	return created, &stored, nil
}

func (r *customerRepoImpl) List(ctx context.Context) ([]*model.Customer, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var customers []*model.Customer
	err := r.db.WithContext(ctx).
		Order("created_at").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}

	return customers, nil
}
