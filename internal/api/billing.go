package api

import (
	"log"
	"net/http"
	"time"

	"github.com/donorconnect/api/config"
	"github.com/donorconnect/api/internal/api/middleware"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/models"
	stripeservice "github.com/donorconnect/api/internal/services/stripe"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BillingHandler struct {
	db            *database.DB
	config        *config.Config
	stripeService *stripeservice.Service
}

func NewBillingHandler(db *database.DB, cfg *config.Config, stripeSvc *stripeservice.Service) *BillingHandler {
	return &BillingHandler{
		db:            db,
		config:        cfg,
		stripeService: stripeSvc,
	}
}

// GetBilling returns the user's recurring donations with live Stripe details
func (h *BillingHandler) GetBilling(c *gin.Context) {
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

	subs, err := h.db.ListSubscriptionsByUser(c.Request.Context(), userID)
	if err != nil {
		log.Printf("failed to list subscriptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	out := make([]models.SubscriptionWithStripe, 0, len(subs))
	for _, sub := range subs {
		entry := models.SubscriptionWithStripe{Subscription: sub}

		stripeSub, err := h.stripeService.GetSubscription(c.Request.Context(), sub.StripeSubscriptionID)
		if err != nil {
			log.Printf("failed to get stripe subscription %s: %v", sub.StripeSubscriptionID, err)
			// Continue with local data only
		} else {
			var currentPeriodEnd int64
			if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 {
				currentPeriodEnd = stripeSub.Items.Data[0].CurrentPeriodEnd
			}

			entry.Stripe = &models.StripeSubscriptionInfo{
				Status:            string(stripeSub.Status),
				CurrentPeriodEnd:  time.Unix(currentPeriodEnd, 0),
				CancelAtPeriodEnd: stripeSub.CancelAtPeriodEnd,
			}
			if stripeSub.CanceledAt > 0 {
				canceledAt := time.Unix(stripeSub.CanceledAt, 0)
				entry.Stripe.CanceledAt = &canceledAt
			}
			if stripeSub.CancelAt > 0 {
				cancelsAt := time.Unix(stripeSub.CancelAt, 0)
				entry.Stripe.CancelsAt = &cancelsAt
			}
		}

		out = append(out, entry)
	}

	c.JSON(http.StatusOK, models.BillingResponse{
		Subscriptions: out,
	})
}

// getOwnedSubscription loads a subscription by local id and verifies the
// caller owns it. Ownership misses answer 404, not 403.
func (h *BillingHandler) getOwnedSubscription(c *gin.Context) (*models.Subscription, bool) {
	userIDStr := middleware.GetUserID(c)
	if userIDStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return nil, false
	}

	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription ID"})
		return nil, false
	}

	sub, err := h.db.GetSubscriptionByID(c.Request.Context(), subID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return nil, false
	}

	if sub.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return nil, false
	}

	return sub, true
}

// CancelSubscription cancels a recurring donation at period end. The local
// row stays active until the customer.subscription.deleted webhook lands.
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	sub, ok := h.getOwnedSubscription(c)
	if !ok {
		return
	}

	if sub.Status != models.SubscriptionActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription is not active"})
		return
	}

	stripeSub, err := h.stripeService.CancelSubscriptionAtPeriodEnd(c.Request.Context(), sub.StripeSubscriptionID)
	if err != nil {
		log.Printf("failed to cancel subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel subscription"})
		return
	}

	var currentPeriodEnd int64
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 {
		currentPeriodEnd = stripeSub.Items.Data[0].CurrentPeriodEnd
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "cancelled",
		"message":              "Recurring donation will stop at the end of the billing period",
		"cancel_at_period_end": stripeSub.CancelAtPeriodEnd,
		"current_period_end":   time.Unix(currentPeriodEnd, 0),
	})
}

// ResumeSubscription removes a pending cancellation
func (h *BillingHandler) ResumeSubscription(c *gin.Context) {
	sub, ok := h.getOwnedSubscription(c)
	if !ok {
		return
	}

	if sub.Status != models.SubscriptionActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription is not active"})
		return
	}

	stripeSub, err := h.stripeService.ResumeSubscription(c.Request.Context(), sub.StripeSubscriptionID)
	if err != nil {
		log.Printf("failed to resume subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "active",
		"message":              "Recurring donation resumed",
		"cancel_at_period_end": stripeSub.CancelAtPeriodEnd,
	})
}
