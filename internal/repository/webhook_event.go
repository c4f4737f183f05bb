package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zoroasterverse/billing-sync/internal/model"
)

type WebhookEventRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// Record registers a delivery attempt for the event.
	Record(ctx context.Context, eventID, eventType string) error
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
	GetByID(ctx context.Context, eventID string) (*model.WebhookEvent, error)
}

type webhookEventRepoImpl struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewWebhookEventRepository(db *gorm.DB, timeout time.Duration) WebhookEventRepository {
	return &webhookEventRepoImpl{
		db:      db,
		timeout: timeout,
	}
}

func (r *webhookEventRepoImpl) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("event_id = ? AND processed_at IS NOT NULL", eventID).
		Count(&count).Error

	return count > 0, err
}

func (r *webhookEventRepoImpl) Record(ctx context.Context, eventID, eventType string) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&model.WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Attempts:  1,
	}).Error
}

func (r *webhookEventRepoImpl) MarkProcessed(ctx context.Context, eventID string) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"processed_at":     &now,
			"processing_error": "",
		}).Error
}

func (r *webhookEventRepoImpl) MarkFailed(ctx context.Context, eventID string, cause error) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processing_error", msg).Error
}

func (r *webhookEventRepoImpl) GetByID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var event model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &event, nil
}
