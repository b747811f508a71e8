package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/donorconnect/api/internal/models"
)

// GetStripeWebhookEvent retrieves a webhook event by Stripe event ID
func (db *DB) GetStripeWebhookEvent(ctx context.Context, stripeEventID string) (*models.StripeWebhookEvent, error) {
	query := `
		SELECT id, stripe_event_id, event_type, payload, status, error_message, processed_at, created_at
		FROM stripe_webhook_events
		WHERE stripe_event_id = $1
	`

	row := db.Pool.QueryRow(ctx, query, stripeEventID)
	event := &models.StripeWebhookEvent{}

	err := row.Scan(
		&event.ID, &event.StripeEventID, &event.EventType, &event.Payload,
		&event.Status, &event.ErrorMessage, &event.ProcessedAt, &event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe webhook event: %w", err)
	}

	return event, nil
}

// RecordStripeWebhookEvent appends a received event to the durable log in
// processing status. A redelivered event id leaves the existing row in place.
func (db *DB) RecordStripeWebhookEvent(ctx context.Context, stripeEventID, eventType string, payload json.RawMessage) error {
	query := `
		INSERT INTO stripe_webhook_events (stripe_event_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stripe_event_id) DO NOTHING
	`

	_, err := db.Pool.Exec(ctx, query, stripeEventID, eventType, payload, models.WebhookStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to record stripe webhook event: %w", err)
	}

	return nil
}

// UpdateStripeWebhookEventStatus updates the status of a webhook event
func (db *DB) UpdateStripeWebhookEventStatus(
	ctx context.Context,
	stripeEventID string,
	status models.WebhookStatus,
	errorMessage *string,
) error {
	query := `
		UPDATE stripe_webhook_events
		SET status = $1, error_message = $2, processed_at = NOW()
		WHERE stripe_event_id = $3
	`

	_, err := db.Pool.Exec(ctx, query, status, errorMessage, stripeEventID)
	if err != nil {
		return fmt.Errorf("failed to update stripe webhook event status: %w", err)
	}

	return nil
}
