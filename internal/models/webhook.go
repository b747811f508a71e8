package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookStatus string

const (
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusCompleted  WebhookStatus = "completed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// StripeWebhookEvent is the durable record of a received webhook delivery.
// It exists for observability and delivery dedup; correctness does not
// depend on it (the domain rows carry their own guards).
type StripeWebhookEvent struct {
	ID            uuid.UUID       `json:"id"`
	StripeEventID string          `json:"stripe_event_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        WebhookStatus   `json:"status"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
