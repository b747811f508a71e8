package models

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind discriminates what a donation is addressed to.
type TargetKind string

const (
	TargetNGO      TargetKind = "ngo"
	TargetCampaign TargetKind = "campaign"
)

type NGO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Website     *string   `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Campaign struct {
	ID          uuid.UUID `json:"id"`
	NGOID       uuid.UUID `json:"ngo_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	GoalAmount  *int64    `json:"goal_amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateNGORequest is the payload for registering an NGO
type CreateNGORequest struct {
	Name        string  `json:"name" binding:"required,min=2,max=200"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty" binding:"omitempty,url"`
}

// CreateCampaignRequest is the payload for creating a fundraising campaign
type CreateCampaignRequest struct {
	NGOID       string  `json:"ngo_id" binding:"required,uuid"`
	Name        string  `json:"name" binding:"required,min=2,max=200"`
	Description *string `json:"description,omitempty"`
	GoalAmount  *int64  `json:"goal_amount,omitempty" binding:"omitempty,gt=0"`
}
