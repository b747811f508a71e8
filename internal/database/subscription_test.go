package database

import (
	"context"
	"testing"
	"time"

	"github.com/donorconnect/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateSubscriptionIfNotExists(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, db)
	ngo := createTestNGO(t, db)

	params := &CreateSubscriptionParams{
		UserID:               user.ID,
		TargetKind:           models.TargetNGO,
		TargetID:             ngo.ID,
		TargetName:           ngo.Name,
		StripeSubscriptionID: RandomStripeSubscriptionID(),
		Amount:               1000,
		Currency:             "usd",
		BillingInterval:      models.IntervalMonthly,
	}

	inserted, err := db.CreateSubscriptionIfNotExists(ctx, params)
	require.NoError(t, err, "CreateSubscriptionIfNotExists should not return an error")
	assert.True(t, inserted, "first insert should create the subscription")

	sub, err := db.GetSubscriptionByStripeID(ctx, params.StripeSubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, models.SubscriptionActive, sub.Status, "status should default to active")
	assert.Equal(t, models.IntervalMonthly, sub.BillingInterval)
	assert.Nil(t, sub.CurrentPeriodStart, "billing period is unknown at creation")
}

func Test_CreateSubscriptionIfNotExists_Duplicate(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, db)
	ngo := createTestNGO(t, db)

	params := &CreateSubscriptionParams{
		UserID:               user.ID,
		TargetKind:           models.TargetNGO,
		TargetID:             ngo.ID,
		TargetName:           ngo.Name,
		StripeSubscriptionID: RandomStripeSubscriptionID(),
		Amount:               1000,
		Currency:             "usd",
		BillingInterval:      models.IntervalMonthly,
	}

	inserted, err := db.CreateSubscriptionIfNotExists(ctx, params)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = db.CreateSubscriptionIfNotExists(ctx, params)
	require.NoError(t, err, "duplicate insert should not be an error")
	assert.False(t, inserted, "duplicate insert should be a no-op")

	subs, err := db.ListSubscriptionsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1, "exactly one subscription row should exist")
}

func Test_UpdateSubscriptionBillingPeriod(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, db)
	ngo := createTestNGO(t, db)

	stripeSubID := RandomStripeSubscriptionID()
	inserted, err := db.CreateSubscriptionIfNotExists(ctx, &CreateSubscriptionParams{
		UserID:               user.ID,
		TargetKind:           models.TargetNGO,
		TargetID:             ngo.ID,
		TargetName:           ngo.Name,
		StripeSubscriptionID: stripeSubID,
		Amount:               1000,
		Currency:             "usd",
		BillingInterval:      models.IntervalMonthly,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	periodStart := time.Now().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)

	err = db.UpdateSubscriptionBillingPeriod(ctx, stripeSubID, periodStart, periodEnd)
	require.NoError(t, err, "UpdateSubscriptionBillingPeriod should not return an error")

	sub, err := db.GetSubscriptionByStripeID(ctx, stripeSubID)
	require.NoError(t, err)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.WithinDuration(t, periodStart, *sub.CurrentPeriodStart, time.Second)
	assert.WithinDuration(t, periodEnd, *sub.CurrentPeriodEnd, time.Second)
}

func Test_MarkSubscriptionCancelled(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, db)
	ngo := createTestNGO(t, db)

	stripeSubID := RandomStripeSubscriptionID()
	inserted, err := db.CreateSubscriptionIfNotExists(ctx, &CreateSubscriptionParams{
		UserID:               user.ID,
		TargetKind:           models.TargetNGO,
		TargetID:             ngo.ID,
		TargetName:           ngo.Name,
		StripeSubscriptionID: stripeSubID,
		Amount:               1000,
		Currency:             "usd",
		BillingInterval:      models.IntervalMonthly,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	cancelled, err := db.MarkSubscriptionCancelled(ctx, stripeSubID)
	require.NoError(t, err)
	assert.True(t, cancelled, "active subscription should cancel")

	sub, err := db.GetSubscriptionByStripeID(ctx, stripeSubID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, sub.Status)

	cancelled, err = db.MarkSubscriptionCancelled(ctx, stripeSubID)
	require.NoError(t, err, "second cancellation should not be an error")
	assert.False(t, cancelled, "second cancellation should be a no-op")

	cancelled, err = db.MarkSubscriptionCancelled(ctx, "sub_missing")
	require.NoError(t, err, "unknown subscription should not be an error")
	assert.False(t, cancelled, "unknown subscription cancellation is a no-op")
}
