package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
)

const defaultQueryTimeout = 5 * time.Second

func queryContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return err
}
