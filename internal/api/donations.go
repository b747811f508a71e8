package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/donorconnect/api/config"
	"github.com/donorconnect/api/internal/api/middleware"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/models"
	"github.com/donorconnect/api/internal/services/stripe"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DonationHandler struct {
	db            *database.DB
	config        *config.Config
	stripeService *stripe.Service
}

func NewDonationHandler(db *database.DB, cfg *config.Config, stripeService *stripe.Service) *DonationHandler {
	return &DonationHandler{
		db:            db,
		config:        cfg,
		stripeService: stripeService,
	}
}

// CreateCheckoutSession initiates a donation checkout. Validation happens
// before any external call; the Stripe session and the local pending record
// are created by the service in that order.
func (h *DonationHandler) CreateCheckoutSession(c *gin.Context) {
	userIDStr := middleware.GetUserID(c)
	if userIDStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	var req models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Amount < h.config.MinDonationAmount || req.Amount > h.config.MaxDonationAmount {
		log.Printf("donation amount out of bounds: user_id=%s amount=%d", userID, req.Amount)
		c.JSON(http.StatusBadRequest, gin.H{"error": "donation amount out of bounds"})
		return
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}

	targetKind := models.TargetKind(req.TargetType)
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target ID"})
		return
	}

	exists, err := h.db.TargetExists(c.Request.Context(), targetKind, targetID)
	if err != nil {
		log.Printf("failed to check donation target: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check donation target"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "donation target not found"})
		return
	}

	ps, redirectURL, err := h.stripeService.InitiateCheckout(c.Request.Context(), &stripe.InitiateCheckoutParams{
		UserID:       userID,
		Email:        middleware.GetUserEmail(c),
		TargetKind:   targetKind,
		TargetID:     targetID,
		TargetName:   req.TargetName,
		Amount:       req.Amount,
		Currency:     currency,
		DonationType: models.DonationType(req.DonationType),
		ItemType:     models.ItemType(req.ItemType),
	})
	if err != nil {
		var gap *stripe.ReconciliationGapError
		if errors.As(err, &gap) {
			// The Stripe session exists but has no local record. Never
			// retried from here: a retry would open a second session.
			log.Printf("reconciliation_gap stripe_session_id=%s user_id=%s error=%v", gap.StripeSessionID, userID, gap.Err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record checkout session"})
			return
		}
		log.Printf("failed to create checkout session: user_id=%s error=%v", userID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, models.CheckoutResponse{
		SessionID:   ps.StripeSessionID,
		RedirectURL: redirectURL,
	})
}

// ListDonations returns the authenticated user's completed donations
func (h *DonationHandler) ListDonations(c *gin.Context) {
	userIDStr := middleware.GetUserID(c)
	if userIDStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	donations, err := h.db.ListDonationsByUser(c.Request.Context(), userID)
	if err != nil {
		log.Printf("failed to list donations: user_id=%s error=%v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list donations"})
		return
	}

	c.JSON(http.StatusOK, models.DonationListResponse{
		Donations: donations,
		Total:     len(donations),
	})
}

// ListPaymentSessions returns the authenticated user's payment attempts,
// including pending and failed ones
func (h *DonationHandler) ListPaymentSessions(c *gin.Context) {
	userIDStr := middleware.GetUserID(c)
	if userIDStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	sessions, err := h.db.ListPaymentSessionsByUser(c.Request.Context(), userID)
	if err != nil {
		log.Printf("failed to list payment sessions: user_id=%s error=%v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payment sessions"})
		return
	}

	c.JSON(http.StatusOK, models.PaymentSessionListResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// HandleStripeWebhook handles Stripe webhook events with signature
// verification and event-level deduplication
func (h *DonationHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("webhook_error=read_body error=%v", err)
		c.JSON(stripe.ErrMalformedRequest.StatusCode, gin.H{"error": stripe.ErrMalformedRequest.Message})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		log.Printf("webhook_error=missing_signature")
		c.JSON(stripe.ErrInvalidSignature.StatusCode, gin.H{"error": "missing signature header"})
		return
	}

	event, err := h.stripeService.VerifyWebhookSignature(body, signature)
	if err != nil {
		log.Printf("webhook_error=invalid_signature error=%v", err)
		c.JSON(stripe.ErrInvalidSignature.StatusCode, gin.H{"error": stripe.ErrInvalidSignature.Message})
		return
	}

	log.Printf("webhook_received event_id=%s event_type=%s", event.ID, event.Type)

	// Check if this event has already been processed (deduplication)
	existingEvent, err := h.db.GetStripeWebhookEvent(c.Request.Context(), event.ID)
	if err == nil && existingEvent != nil {
		if existingEvent.Status == models.WebhookStatusCompleted {
			log.Printf("webhook_duplicate event_id=%s (already processed successfully)", event.ID)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		// Failed or stuck in processing, allow retry
		log.Printf("webhook_retry event_id=%s status=%s", event.ID, existingEvent.Status)
	}

	// Record receipt before processing: the durable log must contain every
	// delivered event, including ones whose handling fails
	if err := h.db.RecordStripeWebhookEvent(c.Request.Context(), event.ID, string(event.Type), event.Data.Raw); err != nil {
		log.Printf("webhook_error=record_receipt event_id=%s error=%v", event.ID, err)
	}

	if err := h.stripeService.HandleStripeEvent(c.Request.Context(), event); err != nil {
		errMsg := err.Error()
		if dbErr := h.db.UpdateStripeWebhookEventStatus(c.Request.Context(), event.ID, models.WebhookStatusFailed, &errMsg); dbErr != nil {
			log.Printf("webhook_error=record_failure event_id=%s error=%v", event.ID, dbErr)
		}

		log.Printf("webhook_error=processing_failed event_id=%s event_type=%s error=%v", event.ID, event.Type, err)
		c.JSON(stripe.ErrProcessingFailure.StatusCode, gin.H{"error": stripe.ErrProcessingFailure.Message})
		return
	}

	if err := h.db.UpdateStripeWebhookEventStatus(c.Request.Context(), event.ID, models.WebhookStatusCompleted, nil); err != nil {
		log.Printf("webhook_error=record_success event_id=%s error=%v", event.ID, err)
		// Don't fail the response even if we can't record it
	}

	log.Printf("webhook_processed event_id=%s event_type=%s status=success", event.ID, event.Type)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
