package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoroasterverse/billing-sync/internal/apperr"
	"github.com/zoroasterverse/billing-sync/internal/model"
)

func seedReconcile(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.customers.Link(ctx, "user-1", "cus_1", ""))
	require.NoError(t, env.customers.Link(ctx, "user-2", "cus_2", ""))
	env.stripe.put(snapshot("sub_1", "cus_1", model.StatusActive))
	env.stripe.put(snapshot("sub_1b", "cus_1", model.StatusCanceled))
	env.stripe.put(snapshot("sub_2", "cus_2", model.StatusPastDue))
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedReconcile(t, env)

	report, err := env.reconcile.SyncAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Customers)
	assert.Equal(t, 3, report.Subscriptions)
	assert.Zero(t, report.Failed)

	sub, err := env.subscriptionRepo.GetByID(ctx, "sub_2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", sub.UserID)
	assert.Equal(t, model.StatusPastDue, sub.Status)
}

func TestSyncAllDryRun(t *testing.T) {
	env := newTestEnv(t)
	seedReconcile(t, env)

	report, err := env.reconcile.SyncAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Subscriptions)
	assert.Zero(t, env.count(t, &model.Subscription{}))
}

func TestSyncUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedReconcile(t, env)

	report, err := env.reconcile.SyncUser(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Subscriptions)

	list, err := env.subscriptionRepo.ListByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.reconcile.SyncUser(ctx, "user-404", false)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSyncAllReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	seedReconcile(t, env)
	env.stripe.getErr = errProviderDown

	report, err := env.reconcile.SyncAll(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errProviderDown))
	assert.Equal(t, 2, report.Failed)
}
