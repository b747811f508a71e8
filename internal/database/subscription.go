package database

import (
	"context"
	"fmt"
	"time"

	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
)

type CreateSubscriptionParams struct {
	UserID               uuid.UUID
	TargetKind           models.TargetKind
	TargetID             uuid.UUID
	TargetName           string
	StripeSubscriptionID string
	StripeCustomerID     *string
	StripePriceID        *string
	Amount               int64
	Currency             string
	BillingInterval      models.BillingInterval
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
}

const subscriptionColumns = `
	id, user_id, target_kind, target_id, target_name, stripe_subscription_id,
	stripe_customer_id, stripe_price_id, amount, currency, billing_interval,
	status, current_period_start, current_period_end, created_at, updated_at`

func scanSubscription(row interface{ Scan(dest ...any) error }) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.TargetKind, &sub.TargetID, &sub.TargetName,
		&sub.StripeSubscriptionID, &sub.StripeCustomerID, &sub.StripePriceID,
		&sub.Amount, &sub.Currency, &sub.BillingInterval, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscriptionIfNotExists inserts a subscription unless one already
// exists for the same Stripe subscription identifier. Returns true if a row
// was inserted, false if the subscription was already present (duplicate
// webhook delivery).
func (db *DB) CreateSubscriptionIfNotExists(ctx context.Context, params *CreateSubscriptionParams) (bool, error) {
	query := `
		INSERT INTO subscriptions (
			user_id, target_kind, target_id, target_name, stripe_subscription_id,
			stripe_customer_id, stripe_price_id, amount, currency, billing_interval,
			current_period_start, current_period_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (stripe_subscription_id) DO NOTHING
	`

	tag, err := db.Pool.Exec(ctx, query,
		params.UserID,
		params.TargetKind,
		params.TargetID,
		params.TargetName,
		params.StripeSubscriptionID,
		params.StripeCustomerID,
		params.StripePriceID,
		params.Amount,
		params.Currency,
		params.BillingInterval,
		params.CurrentPeriodStart,
		params.CurrentPeriodEnd,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create subscription: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetSubscriptionByStripeID retrieves a subscription by its Stripe identifier
func (db *DB) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_subscription_id = $1
	`

	sub, err := scanSubscription(db.Pool.QueryRow(ctx, query, stripeSubscriptionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by stripe id: %w", err)
	}

	return sub, nil
}

// GetSubscriptionByID retrieves a subscription by internal ID
func (db *DB) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1
	`

	sub, err := scanSubscription(db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// ListSubscriptionsByUser returns all subscriptions for a user
func (db *DB) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, nil
}

// UpdateSubscriptionBillingPeriod updates the current billing period fields
// from a subscription-updated event
func (db *DB) UpdateSubscriptionBillingPeriod(ctx context.Context, stripeSubscriptionID string, periodStart, periodEnd time.Time) error {
	query := `
		UPDATE subscriptions
		SET current_period_start = $2,
		    current_period_end = $3,
		    updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`

	_, err := db.Pool.Exec(ctx, query, stripeSubscriptionID, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("failed to update subscription billing period: %w", err)
	}

	return nil
}

// MarkSubscriptionCancelled sets a subscription's status to cancelled.
// Returns true if a row changed, false if it was already cancelled or missing.
func (db *DB) MarkSubscriptionCancelled(ctx context.Context, stripeSubscriptionID string) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = 'cancelled',
		    updated_at = NOW()
		WHERE stripe_subscription_id = $1 AND status != 'cancelled'
	`

	tag, err := db.Pool.Exec(ctx, query, stripeSubscriptionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark subscription cancelled: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
