package database

import (
	"context"
	"testing"

	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateNGO(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	description := "Clean water projects"
	website := "https://example.org"

	ngo, err := db.CreateNGO(ctx, "Water For All", &description, &website)
	require.NoError(t, err, "CreateNGO should not return an error")

	assert.NotZero(t, ngo.ID)
	assert.Equal(t, "Water For All", ngo.Name)
	require.NotNil(t, ngo.Description)
	assert.Equal(t, description, *ngo.Description)
}

func Test_CreateCampaign(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ngo := createTestNGO(t, db)
	goal := int64(1000000)

	campaign, err := db.CreateCampaign(ctx, ngo.ID, "Well Drilling 2026", nil, &goal)
	require.NoError(t, err, "CreateCampaign should not return an error")

	assert.NotZero(t, campaign.ID)
	assert.Equal(t, ngo.ID, campaign.NGOID)
	require.NotNil(t, campaign.GoalAmount)
	assert.Equal(t, goal, *campaign.GoalAmount)
}

func Test_TargetExists(t *testing.T) {
	db, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ngo := createTestNGO(t, db)

	exists, err := db.TargetExists(ctx, models.TargetNGO, ngo.ID)
	require.NoError(t, err)
	assert.True(t, exists, "created NGO should exist as a target")

	exists, err = db.TargetExists(ctx, models.TargetNGO, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists, "random id should not exist")

	campaign, err := db.CreateCampaign(ctx, ngo.ID, "Campaign "+RandomString(6), nil, nil)
	require.NoError(t, err)

	exists, err = db.TargetExists(ctx, models.TargetCampaign, campaign.ID)
	require.NoError(t, err)
	assert.True(t, exists, "created campaign should exist as a target")

	exists, err = db.TargetExists(ctx, models.TargetCampaign, ngo.ID)
	require.NoError(t, err)
	assert.False(t, exists, "kind and id must match together")
}
