package models

import (
	"time"

	"github.com/google/uuid"
)

// DonationType is the payment cadence of a donation.
type DonationType string

const (
	DonationOneTime   DonationType = "one_time"
	DonationRecurring DonationType = "recurring"
)

// ItemType is the kind of thing being donated. Only money donations go
// through the payment pipeline; in-kind types are handled elsewhere.
type ItemType string

const (
	ItemMoney ItemType = "money"
)

type PaymentSessionStatus string

const (
	PaymentSessionPending   PaymentSessionStatus = "pending"
	PaymentSessionCompleted PaymentSessionStatus = "completed"
	PaymentSessionExpired   PaymentSessionStatus = "expired"
	PaymentSessionFailed    PaymentSessionStatus = "failed"
)

// PaymentSession is one attempt to collect a donation. It is created in
// pending state at checkout creation and mutated only by the webhook
// reconciler. Rows form an append-only audit trail of payment attempts.
type PaymentSession struct {
	ID                    uuid.UUID            `json:"id"`
	UserID                uuid.UUID            `json:"user_id"`
	TargetKind            TargetKind           `json:"target_kind"`
	TargetID              uuid.UUID            `json:"target_id"`
	TargetName            string               `json:"target_name"`
	StripeSessionID       string               `json:"stripe_session_id"`
	Amount                int64                `json:"amount"`
	Currency              string               `json:"currency"`
	DonationType          DonationType         `json:"donation_type"`
	ItemType              ItemType             `json:"item_type"`
	Status                PaymentSessionStatus `json:"status"`
	StripePaymentIntentID *string              `json:"stripe_payment_intent_id,omitempty"`
	StripeCustomerID      *string              `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  *string              `json:"stripe_subscription_id,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	CompletedAt           *time.Time           `json:"completed_at,omitempty"`
}

// CreateCheckoutRequest is the payload for initiating a donation checkout.
// Amount is an integer in minor currency units.
type CreateCheckoutRequest struct {
	Amount       int64  `json:"amount" binding:"required,gt=0"`
	Currency     string `json:"currency" binding:"omitempty,currency"`
	TargetType   string `json:"targetType" binding:"required,oneof=ngo campaign"`
	TargetID     string `json:"targetId" binding:"required,uuid"`
	TargetName   string `json:"targetName" binding:"required,min=1,max=200"`
	DonationType string `json:"donationType" binding:"required,oneof=one_time recurring"`
	ItemType     string `json:"itemType" binding:"required,oneof=money"`
}

// CheckoutResponse is the response for creating a checkout session
type CheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// PaymentSessionListResponse is the response for listing payment attempts
type PaymentSessionListResponse struct {
	Sessions []PaymentSession `json:"sessions"`
	Total    int              `json:"total"`
}
