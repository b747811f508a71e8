package models

import (
	"time"

	"github.com/google/uuid"
)

// Donation is one completed money donation: a settled one-time checkout or
// one billing cycle of a recurring subscription.
type Donation struct {
	ID                   uuid.UUID    `json:"id"`
	UserID               uuid.UUID    `json:"user_id"`
	TargetKind           TargetKind   `json:"target_kind"`
	TargetID             uuid.UUID    `json:"target_id"`
	TargetName           string       `json:"target_name"`
	Amount               int64        `json:"amount"`
	Currency             string       `json:"currency"`
	DonationType         DonationType `json:"donation_type"`
	StripeSessionID      *string      `json:"stripe_session_id,omitempty"`
	StripeSubscriptionID *string      `json:"stripe_subscription_id,omitempty"`
	StripeInvoiceID      *string      `json:"stripe_invoice_id,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

// DonationListResponse is the response for listing a donor's donations
type DonationListResponse struct {
	Donations []Donation `json:"donations"`
	Total     int        `json:"total"`
}
