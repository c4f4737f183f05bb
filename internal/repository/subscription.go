package repository

import (
	"context"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zoroasterverse/billing-sync/internal/model"
)

type SubscriptionRepository interface {
	// Upsert writes the full snapshot in one INSERT .. ON CONFLICT statement.
	Upsert(ctx context.Context, sub *model.Subscription) error
	// MarkCanceled sets status and canceled_at, creating a minimal row if
	// none exists yet.
	MarkCanceled(ctx context.Context, sub *model.Subscription) error
	GetByID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error)
}

type subscriptionRepoImpl struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewSubscriptionRepository(db *gorm.DB, timeout time.Duration) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db:      db,
		timeout: timeout,
	}
}

func (r *subscriptionRepoImpl) Upsert(ctx context.Context, sub *model.Subscription) error {
	return r.upsert(ctx, sub,
		"status",
		"price_id",
		"current_period_start",
		"current_period_end",
		"cancel_at_period_end",
		"trial_start",
		"trial_end",
		"canceled_at",
	)
}

func (r *subscriptionRepoImpl) MarkCanceled(ctx context.Context, sub *model.Subscription) error {
	sub.Status = model.StatusCanceled
	return r.upsert(ctx, sub, "status", "canceled_at")
}

// upsert never blanks a known owner or customer: those columns are only
// assigned when the incoming row carries them. canceled is terminal at the
// provider, so a stored cancellation survives any later snapshot.
func (r *subscriptionRepoImpl) upsert(ctx context.Context, sub *model.Subscription, columns ...string) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	updates := make([]string, 0, len(columns)+3)
	updates = append(updates, columns...)
	if sub.UserID != "" {
		updates = append(updates, "user_id")
	}
	if sub.CustomerID != "" {
		updates = append(updates, "customer_id")
	}
	updates = append(updates, "updated_at")

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: r.assignments(updates),
	}).Create(sub).Error
}

// assignments keeps canceled_at ahead of status: MySQL evaluates
// ON DUPLICATE KEY UPDATE left to right and would otherwise see the new status.
func (r *subscriptionRepoImpl) assignments(columns []string) clause.Set {
	canceled := string(model.StatusCanceled)

	set := make(clause.Set, 0, len(columns))
	if slices.Contains(columns, "canceled_at") {
		in := r.incoming("canceled_at")
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: "canceled_at"},
			Value:  gorm.Expr("CASE WHEN status = ? THEN COALESCE(canceled_at, "+in+") ELSE "+in+" END", canceled),
		})
	}
	if slices.Contains(columns, "status") {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: "status"},
			Value:  gorm.Expr("CASE WHEN status = ? THEN status ELSE "+r.incoming("status")+" END", canceled),
		})
	}
	for _, col := range columns {
		if col == "canceled_at" || col == "status" {
			continue
		}
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(r.incoming(col)),
		})
	}

	return set
}

// incoming references the value of the row being inserted.
func (r *subscriptionRepoImpl) incoming(column string) string {
	if r.db.Dialector.Name() == "mysql" {
		return "VALUES(" + column + ")"
	}
	return "excluded." + column
}

func (r *subscriptionRepoImpl) GetByID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ?", subscriptionID).
		First(&sub).
		Error
	if err != nil {
		return nil, notFound(err)
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&subs).
		Error
	if err != nil {
		return nil, err
	}

	return subs, nil
}
