package database

import (
	"context"
	"fmt"

	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
)

type CreateDonationParams struct {
	UserID               uuid.UUID
	TargetKind           models.TargetKind
	TargetID             uuid.UUID
	TargetName           string
	Amount               int64
	Currency             string
	DonationType         models.DonationType
	StripeSessionID      *string
	StripeSubscriptionID *string
	StripeInvoiceID      *string
}

// CreateDonation records a completed donation. When StripeInvoiceID is set
// the insert is conflict-guarded on it, so redelivered invoice events record
// a billing cycle at most once. Returns true if a row was inserted.
func (db *DB) CreateDonation(ctx context.Context, params *CreateDonationParams) (bool, error) {
	query := `
		INSERT INTO donations (
			user_id, target_kind, target_id, target_name, amount, currency,
			donation_type, stripe_session_id, stripe_subscription_id, stripe_invoice_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (stripe_invoice_id) DO NOTHING
	`

	tag, err := db.Pool.Exec(ctx, query,
		params.UserID,
		params.TargetKind,
		params.TargetID,
		params.TargetName,
		params.Amount,
		params.Currency,
		params.DonationType,
		params.StripeSessionID,
		params.StripeSubscriptionID,
		params.StripeInvoiceID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create donation: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListDonationsByUser returns all completed donations for a user
func (db *DB) ListDonationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Donation, error) {
	query := `
		SELECT id, user_id, target_kind, target_id, target_name, amount, currency,
		       donation_type, stripe_session_id, stripe_subscription_id, stripe_invoice_id,
		       created_at
		FROM donations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	var donations []models.Donation
	for rows.Next() {
		var d models.Donation
		err := rows.Scan(
			&d.ID, &d.UserID, &d.TargetKind, &d.TargetID, &d.TargetName,
			&d.Amount, &d.Currency, &d.DonationType, &d.StripeSessionID,
			&d.StripeSubscriptionID, &d.StripeInvoiceID, &d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		donations = append(donations, d)
	}

	return donations, nil
}

// GetDonationTotalForTarget sums completed donations for a target
func (db *DB) GetDonationTotalForTarget(ctx context.Context, kind models.TargetKind, targetID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM donations
		WHERE target_kind = $1 AND target_id = $2
	`

	var total int64
	err := db.Pool.QueryRow(ctx, query, kind, targetID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get donation total: %w", err)
	}

	return total, nil
}
