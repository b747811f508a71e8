package models

import (
	"time"

	"github.com/google/uuid"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is an ongoing recurring-donation agreement, created once per
// successfully completed subscription-mode checkout.
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	TargetKind           TargetKind         `json:"target_kind"`
	TargetID             uuid.UUID          `json:"target_id"`
	TargetName           string             `json:"target_name"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripeCustomerID     *string            `json:"stripe_customer_id,omitempty"`
	StripePriceID        *string            `json:"stripe_price_id,omitempty"`
	Amount               int64              `json:"amount"`
	Currency             string             `json:"currency"`
	BillingInterval      BillingInterval    `json:"billing_interval"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// StripeSubscriptionInfo contains live details fetched from Stripe
type StripeSubscriptionInfo struct {
	Status            string     `json:"status"` // active, past_due, canceled, etc.
	CurrentPeriodEnd  time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
	CancelsAt         *time.Time `json:"cancels_at,omitempty"`
}

// SubscriptionWithStripe combines the local subscription with live Stripe
// details for the billing page
type SubscriptionWithStripe struct {
	Subscription
	Stripe *StripeSubscriptionInfo `json:"stripe,omitempty"`
}

// BillingResponse is the response for the billing page
type BillingResponse struct {
	Subscriptions []SubscriptionWithStripe `json:"subscriptions"`
}
