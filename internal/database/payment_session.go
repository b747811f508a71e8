package database

import (
	"context"
	"fmt"

	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
)

type CreatePaymentSessionParams struct {
	UserID           uuid.UUID
	TargetKind       models.TargetKind
	TargetID         uuid.UUID
	TargetName       string
	StripeSessionID  string
	Amount           int64
	Currency         string
	DonationType     models.DonationType
	ItemType         models.ItemType
	StripeCustomerID *string
}

const paymentSessionColumns = `
	id, user_id, target_kind, target_id, target_name, stripe_session_id,
	amount, currency, donation_type, item_type, status,
	stripe_payment_intent_id, stripe_customer_id, stripe_subscription_id,
	created_at, completed_at`

func scanPaymentSession(row interface{ Scan(dest ...any) error }) (*models.PaymentSession, error) {
	var ps models.PaymentSession
	err := row.Scan(
		&ps.ID, &ps.UserID, &ps.TargetKind, &ps.TargetID, &ps.TargetName,
		&ps.StripeSessionID, &ps.Amount, &ps.Currency, &ps.DonationType,
		&ps.ItemType, &ps.Status, &ps.StripePaymentIntentID,
		&ps.StripeCustomerID, &ps.StripeSubscriptionID,
		&ps.CreatedAt, &ps.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// CreatePaymentSession inserts a new payment session in pending status.
// The Stripe checkout session must already exist; its identifier is the
// join key between the initiation path and the webhook path.
func (db *DB) CreatePaymentSession(ctx context.Context, params *CreatePaymentSessionParams) (*models.PaymentSession, error) {
	query := `
		INSERT INTO payment_sessions (
			user_id, target_kind, target_id, target_name, stripe_session_id,
			amount, currency, donation_type, item_type, stripe_customer_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING` + paymentSessionColumns

	ps, err := scanPaymentSession(db.Pool.QueryRow(ctx, query,
		params.UserID,
		params.TargetKind,
		params.TargetID,
		params.TargetName,
		params.StripeSessionID,
		params.Amount,
		params.Currency,
		params.DonationType,
		params.ItemType,
		params.StripeCustomerID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	return ps, nil
}

// GetPaymentSessionByStripeSessionID retrieves a payment session by the
// Stripe checkout session identifier
func (db *DB) GetPaymentSessionByStripeSessionID(ctx context.Context, stripeSessionID string) (*models.PaymentSession, error) {
	query := `SELECT` + paymentSessionColumns + `
		FROM payment_sessions
		WHERE stripe_session_id = $1
	`

	ps, err := scanPaymentSession(db.Pool.QueryRow(ctx, query, stripeSessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session by stripe session: %w", err)
	}

	return ps, nil
}

// GetPaymentSessionByPaymentIntentID retrieves a payment session by the
// Stripe payment intent identifier
func (db *DB) GetPaymentSessionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.PaymentSession, error) {
	query := `SELECT` + paymentSessionColumns + `
		FROM payment_sessions
		WHERE stripe_payment_intent_id = $1
	`

	ps, err := scanPaymentSession(db.Pool.QueryRow(ctx, query, paymentIntentID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session by payment intent: %w", err)
	}

	return ps, nil
}

// ListPaymentSessionsByUser returns all payment attempts for a user
func (db *DB) ListPaymentSessionsByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentSession, error) {
	query := `SELECT` + paymentSessionColumns + `
		FROM payment_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.PaymentSession
	for rows.Next() {
		ps, err := scanPaymentSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment session: %w", err)
		}
		sessions = append(sessions, *ps)
	}

	return sessions, nil
}

// CompletePaymentSession applies the pending -> completed transition as a
// conditional update. Returns true if this call won the transition, false if
// the session was not in pending (already completed, expired, or failed).
// Two concurrent deliveries of the same completion event cannot both get true.
func (db *DB) CompletePaymentSession(ctx context.Context, stripeSessionID string, paymentIntentID, subscriptionID *string) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET status = 'completed',
		    stripe_payment_intent_id = COALESCE($2, stripe_payment_intent_id),
		    stripe_subscription_id = COALESCE($3, stripe_subscription_id),
		    completed_at = NOW()
		WHERE stripe_session_id = $1 AND status = 'pending'
	`

	tag, err := db.Pool.Exec(ctx, query, stripeSessionID, paymentIntentID, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("failed to complete payment session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkPaymentSessionExpired applies pending -> expired. Returns true if the
// transition was applied.
func (db *DB) MarkPaymentSessionExpired(ctx context.Context, stripeSessionID string) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET status = 'expired'
		WHERE stripe_session_id = $1 AND status = 'pending'
	`

	tag, err := db.Pool.Exec(ctx, query, stripeSessionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment session expired: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkPaymentSessionFailed marks a session failed. Completed sessions are
// left alone: a late payment_intent.payment_failed must not unwind a
// completion that already happened.
func (db *DB) MarkPaymentSessionFailed(ctx context.Context, stripeSessionID string) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET status = 'failed'
		WHERE stripe_session_id = $1 AND status != 'completed'
	`

	tag, err := db.Pool.Exec(ctx, query, stripeSessionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment session failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
