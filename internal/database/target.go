package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateNGO inserts a new NGO
func (db *DB) CreateNGO(ctx context.Context, name string, description, website *string) (*models.NGO, error) {
	query := `
		INSERT INTO ngos (name, description, website)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, website, created_at
	`

	var ngo models.NGO
	err := db.Pool.QueryRow(ctx, query, name, description, website).Scan(
		&ngo.ID, &ngo.Name, &ngo.Description, &ngo.Website, &ngo.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ngo: %w", err)
	}

	return &ngo, nil
}

// ListNGOs returns all registered NGOs
func (db *DB) ListNGOs(ctx context.Context) ([]models.NGO, error) {
	query := `
		SELECT id, name, description, website, created_at
		FROM ngos
		ORDER BY name
	`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ngos: %w", err)
	}
	defer rows.Close()

	var ngos []models.NGO
	for rows.Next() {
		var ngo models.NGO
		if err := rows.Scan(&ngo.ID, &ngo.Name, &ngo.Description, &ngo.Website, &ngo.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ngo: %w", err)
		}
		ngos = append(ngos, ngo)
	}

	return ngos, nil
}

// CreateCampaign inserts a new fundraising campaign
func (db *DB) CreateCampaign(ctx context.Context, ngoID uuid.UUID, name string, description *string, goalAmount *int64) (*models.Campaign, error) {
	query := `
		INSERT INTO campaigns (ngo_id, name, description, goal_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, ngo_id, name, description, goal_amount, created_at
	`

	var campaign models.Campaign
	err := db.Pool.QueryRow(ctx, query, ngoID, name, description, goalAmount).Scan(
		&campaign.ID, &campaign.NGOID, &campaign.Name, &campaign.Description,
		&campaign.GoalAmount, &campaign.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	return &campaign, nil
}

// ListCampaigns returns all campaigns
func (db *DB) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	query := `
		SELECT id, ngo_id, name, description, goal_amount, created_at
		FROM campaigns
		ORDER BY created_at DESC
	`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var campaign models.Campaign
		if err := rows.Scan(&campaign.ID, &campaign.NGOID, &campaign.Name,
			&campaign.Description, &campaign.GoalAmount, &campaign.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, nil
}

// TargetExists checks that a donation target references an existing NGO or campaign
func (db *DB) TargetExists(ctx context.Context, kind models.TargetKind, targetID uuid.UUID) (bool, error) {
	var query string
	switch kind {
	case models.TargetNGO:
		query = `SELECT EXISTS(SELECT 1 FROM ngos WHERE id = $1)`
	case models.TargetCampaign:
		query = `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`
	default:
		return false, fmt.Errorf("unknown target kind: %s", kind)
	}

	var exists bool
	err := db.Pool.QueryRow(ctx, query, targetID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check target existence: %w", err)
	}

	return exists, nil
}
