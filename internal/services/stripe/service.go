package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/donorconnect/api/config"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/subscription"
	"github.com/stripe/stripe-go/v84/webhook"
)

// Notifier delivers donation receipts after a completion transition. It is
// invoked fire-and-forget: its failure never rolls back a completion.
type Notifier interface {
	SendDonationReceipt(to, targetName string, amount int64, currency string) error
	SendRecurringReceipt(to, targetName string, amount int64, currency string) error
}

type Service struct {
	db       *database.DB
	config   *config.Config
	notifier Notifier
}

// WebhookError represents an error that occurred during webhook processing
// StatusCode determines the HTTP response code
type WebhookError struct {
	StatusCode int    // HTTP status code to return
	Message    string // User-facing error message
	Err        error  // Internal error for logging
}

func (e *WebhookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// NewWebhookError creates a new WebhookError with a specific HTTP status code
func NewWebhookError(statusCode int, message string, err error) *WebhookError {
	return &WebhookError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Common webhook errors
var (
	ErrMalformedRequest  = NewWebhookError(http.StatusBadRequest, "malformed request", nil)
	ErrInvalidSignature  = NewWebhookError(http.StatusBadRequest, "invalid webhook signature", nil)
	ErrProcessingFailure = NewWebhookError(http.StatusInternalServerError, "failed to process webhook", nil)
)

// ReconciliationGapError marks the partial-failure case where a Stripe
// checkout session exists but the local record could not be written. It is
// never retried automatically: a retry would create a second Stripe session.
type ReconciliationGapError struct {
	StripeSessionID string
	Err             error
}

func (e *ReconciliationGapError) Error() string {
	return fmt.Sprintf("checkout session %s created but local record failed: %v", e.StripeSessionID, e.Err)
}

func (e *ReconciliationGapError) Unwrap() error {
	return e.Err
}

func NewService(db *database.DB, cfg *config.Config, notifier Notifier) *Service {
	stripe.Key = cfg.StripeSecretKey
	stripe.SetHTTPClient(&http.Client{Timeout: cfg.StripeTimeout})
	return &Service{
		db:       db,
		config:   cfg,
		notifier: notifier,
	}
}

// InitiateCheckoutParams describes a donation intent
type InitiateCheckoutParams struct {
	UserID       uuid.UUID
	Email        string
	TargetKind   models.TargetKind
	TargetID     uuid.UUID
	TargetName   string
	Amount       int64 // minor currency units
	Currency     string
	DonationType models.DonationType
	ItemType     models.ItemType
	Interval     models.BillingInterval // recurring only; defaults to monthly
}

// InitiateCheckout creates the Stripe checkout session and the local pending
// payment session. The Stripe call happens first: it cannot be compensated
// from here, so the local record captures its result. A local write failure
// after Stripe succeeded is returned as a ReconciliationGapError.
func (s *Service) InitiateCheckout(ctx context.Context, params *InitiateCheckoutParams) (*models.PaymentSession, string, error) {
	metadata := map[string]string{
		"user_id":       params.UserID.String(),
		"target_kind":   string(params.TargetKind),
		"target_id":     params.TargetID.String(),
		"target_name":   params.TargetName,
		"donation_type": string(params.DonationType),
		"item_type":     string(params.ItemType),
		"amount":        fmt.Sprintf("%d", params.Amount),
		"currency":      params.Currency,
	}

	var sess *stripe.CheckoutSession
	var customerID *string
	var err error

	if params.DonationType == models.DonationRecurring {
		interval := params.Interval
		if interval == "" {
			interval = models.IntervalMonthly
		}
		metadata["billing_interval"] = string(interval)

		sess, customerID, err = s.createRecurringSession(ctx, params, interval, metadata)
	} else {
		sess, err = s.createOneTimeSession(params, metadata)
	}
	if err != nil {
		return nil, "", err
	}

	ps, err := s.db.CreatePaymentSession(ctx, &database.CreatePaymentSessionParams{
		UserID:           params.UserID,
		TargetKind:       params.TargetKind,
		TargetID:         params.TargetID,
		TargetName:       params.TargetName,
		StripeSessionID:  sess.ID,
		Amount:           params.Amount,
		Currency:         params.Currency,
		DonationType:     params.DonationType,
		ItemType:         params.ItemType,
		StripeCustomerID: customerID,
	})
	if err != nil {
		return nil, "", &ReconciliationGapError{StripeSessionID: sess.ID, Err: err}
	}

	return ps, sess.URL, nil
}

// createOneTimeSession creates a payment-mode checkout session with inline
// line-item pricing
func (s *Service) createOneTimeSession(params *InitiateCheckoutParams, metadata map[string]string) (*stripe.CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(s.config.FrontendURL + "/donations/success"),
		CancelURL:     stripe.String(s.config.FrontendURL + "/donate"),
		CustomerEmail: stripe.String(params.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Donation to " + params.TargetName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess, nil
}

// createRecurringSession resolves the Stripe customer, creates a single-use
// recurring price scoped to this checkout, and creates a subscription-mode
// session for it
func (s *Service) createRecurringSession(ctx context.Context, params *InitiateCheckoutParams, interval models.BillingInterval, metadata map[string]string) (*stripe.CheckoutSession, *string, error) {
	customerID, err := s.resolveCustomer(ctx, params.UserID, params.Email)
	if err != nil {
		return nil, nil, err
	}

	priceInterval := stripe.PriceRecurringIntervalMonth
	if interval == models.IntervalYearly {
		priceInterval = stripe.PriceRecurringIntervalYear
	}

	priceParams := &stripe.PriceParams{
		Currency:   stripe.String(params.Currency),
		UnitAmount: stripe.Int64(params.Amount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(priceInterval)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String("Recurring donation to " + params.TargetName),
		},
	}

	pr, err := price.New(priceParams)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create recurring price: %w", err)
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.config.FrontendURL + "/donations/success"),
		CancelURL:  stripe.String(s.config.FrontendURL + "/donate"),
		Customer:   stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(pr.ID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create subscription checkout session: %w", err)
	}

	return sess, &customerID, nil
}

// resolveCustomer finds or creates the Stripe customer for a user. Existing
// customers are reused (stored id first, then a lookup by email) so repeat
// recurring donations never create duplicate customer records.
func (s *Service) resolveCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err == nil && user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	listParams := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	listParams.Limit = stripe.Int64(1)

	iter := customer.List(listParams)
	for iter.Next() {
		existing := iter.Customer()
		if err := s.db.UpdateUserStripeCustomerID(ctx, userID, existing.ID); err != nil {
			log.Printf("failed to persist stripe customer id: user_id=%s error=%v", userID, err)
		}
		return existing.ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list customers: %w", err)
	}

	created, err := customer.New(&stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	if err := s.db.UpdateUserStripeCustomerID(ctx, userID, created.ID); err != nil {
		log.Printf("failed to persist stripe customer id: user_id=%s error=%v", userID, err)
	}

	return created.ID, nil
}

// VerifyWebhookSignature verifies and constructs a Stripe webhook event
func (s *Service) VerifyWebhookSignature(body []byte, signature string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(
		body,
		signature,
		s.config.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}
	return &event, nil
}

// HandleStripeEvent dispatches webhook events to appropriate handlers.
// Every handler body is safe to re-execute: Stripe redelivers after any
// non-2xx response and events may arrive duplicated or out of order.
func (s *Service) HandleStripeEvent(ctx context.Context, event *stripe.Event) error {
	log.Printf("Processing Stripe event: event_id=%s event_type=%s", event.ID, event.Type)

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutSessionCompleted(ctx, event)
	case "checkout.session.expired":
		return s.handleCheckoutSessionExpired(ctx, event)
	case "payment_intent.payment_failed":
		return s.handlePaymentIntentFailed(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaymentSucceeded(ctx, event)
	default:
		// Log unknown event type but don't fail
		log.Printf("Received unhandled Stripe event type: event_id=%s event_type=%s", event.ID, event.Type)
		return nil
	}
}

// handleCheckoutSessionCompleted is the internal handler for
// checkout.session.completed events
func (s *Service) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session from webhook event: %w", err)
	}

	log.Printf("Processing checkout session: event_id=%s session_id=%s mode=%s", event.ID, sess.ID, sess.Mode)

	// Verify payment status
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return fmt.Errorf("payment not completed: status %s", sess.PaymentStatus)
	}

	if sess.Mode == stripe.CheckoutSessionModeSubscription {
		return s.completeSubscriptionCheckout(ctx, event.ID, &sess)
	}
	return s.completePaymentCheckout(ctx, event.ID, &sess)
}

// completePaymentCheckout applies the pending -> completed transition for a
// one-time donation. The transition is a conditional update keyed by the
// Stripe session id; a redelivered event finds the guard already taken and
// becomes a successful no-op with no second donation row and no second receipt.
func (s *Service) completePaymentCheckout(ctx context.Context, eventID string, sess *stripe.CheckoutSession) error {
	ps, err := s.db.GetPaymentSessionByStripeSessionID(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("no local payment session for checkout: event_id=%s session_id=%s: %w", eventID, sess.ID, err)
	}

	var paymentIntentID *string
	if sess.PaymentIntent != nil {
		paymentIntentID = stripe.String(sess.PaymentIntent.ID)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txDB := &database.DB{Pool: tx}

	completed, err := txDB.CompletePaymentSession(ctx, sess.ID, paymentIntentID, nil)
	if err != nil {
		return err
	}
	if !completed {
		// Idempotent: redelivery of an already-applied completion
		log.Printf("Payment session already completed: event_id=%s session_id=%s status=%s", eventID, sess.ID, ps.Status)
		return nil
	}

	if _, err := txDB.CreateDonation(ctx, &database.CreateDonationParams{
		UserID:          ps.UserID,
		TargetKind:      ps.TargetKind,
		TargetID:        ps.TargetID,
		TargetName:      ps.TargetName,
		Amount:          ps.Amount,
		Currency:        ps.Currency,
		DonationType:    ps.DonationType,
		StripeSessionID: &ps.StripeSessionID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("Payment session completed: event_id=%s session_id=%s", eventID, sess.ID)
	s.notifyCompletion(ctx, ps, false)
	return nil
}

// completeSubscriptionCheckout creates the Subscription row and applies the
// session completion in one transaction. The subscription insert is guarded
// by the unique Stripe subscription id; the session transition is guarded by
// status. Both guards together keep duplicate deliveries single-effect.
func (s *Service) completeSubscriptionCheckout(ctx context.Context, eventID string, sess *stripe.CheckoutSession) error {
	ps, err := s.db.GetPaymentSessionByStripeSessionID(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("no local payment session for checkout: event_id=%s session_id=%s: %w", eventID, sess.ID, err)
	}

	if sess.Subscription == nil {
		return fmt.Errorf("subscription not found in checkout session: event_id=%s session_id=%s", eventID, sess.ID)
	}
	subscriptionID := sess.Subscription.ID

	interval := models.IntervalMonthly
	if sess.Metadata["billing_interval"] == string(models.IntervalYearly) {
		interval = models.IntervalYearly
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txDB := &database.DB{Pool: tx}

	inserted, err := txDB.CreateSubscriptionIfNotExists(ctx, &database.CreateSubscriptionParams{
		UserID:               ps.UserID,
		TargetKind:           ps.TargetKind,
		TargetID:             ps.TargetID,
		TargetName:           ps.TargetName,
		StripeSubscriptionID: subscriptionID,
		StripeCustomerID:     ps.StripeCustomerID,
		Amount:               ps.Amount,
		Currency:             ps.Currency,
		BillingInterval:      interval,
	})
	if err != nil {
		return err
	}
	if !inserted {
		log.Printf("Subscription already exists: event_id=%s subscription_id=%s", eventID, subscriptionID)
	}

	completed, err := txDB.CompletePaymentSession(ctx, sess.ID, nil, &subscriptionID)
	if err != nil {
		return err
	}

	// First billing cycle is recorded with the completion, not with the
	// subscription_create invoice (see handleInvoicePaymentSucceeded). It
	// commits or rolls back together with the session transition.
	if completed {
		if _, err := txDB.CreateDonation(ctx, &database.CreateDonationParams{
			UserID:               ps.UserID,
			TargetKind:           ps.TargetKind,
			TargetID:             ps.TargetID,
			TargetName:           ps.TargetName,
			Amount:               ps.Amount,
			Currency:             ps.Currency,
			DonationType:         ps.DonationType,
			StripeSessionID:      &ps.StripeSessionID,
			StripeSubscriptionID: &subscriptionID,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if !completed {
		// Idempotent: redelivery of an already-applied completion
		log.Printf("Payment session already completed: event_id=%s session_id=%s", eventID, sess.ID)
		return nil
	}

	log.Printf("Subscription checkout completed: event_id=%s session_id=%s subscription_id=%s", eventID, sess.ID, subscriptionID)
	s.notifyCompletion(ctx, ps, true)
	return nil
}

// notifyCompletion fires the receipt email without blocking or failing the
// reconciliation path
func (s *Service) notifyCompletion(ctx context.Context, ps *models.PaymentSession, recurring bool) {
	if s.notifier == nil {
		return
	}

	user, err := s.db.GetUserByID(ctx, ps.UserID)
	if err != nil {
		log.Printf("Failed to look up user for receipt: user_id=%s error=%v", ps.UserID, err)
		return
	}

	go func() {
		var err error
		if recurring {
			err = s.notifier.SendRecurringReceipt(user.Email, ps.TargetName, ps.Amount, ps.Currency)
		} else {
			err = s.notifier.SendDonationReceipt(user.Email, ps.TargetName, ps.Amount, ps.Currency)
		}
		if err != nil {
			log.Printf("Failed to send receipt: user_id=%s error=%v", ps.UserID, err)
		}
	}()
}

// handleCheckoutSessionExpired marks an abandoned checkout expired
func (s *Service) handleCheckoutSessionExpired(ctx context.Context, event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session from webhook event: %w", err)
	}

	expired, err := s.db.MarkPaymentSessionExpired(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !expired {
		log.Printf("Payment session not pending, expiry skipped: event_id=%s session_id=%s", event.ID, sess.ID)
		return nil
	}

	log.Printf("Payment session expired: event_id=%s session_id=%s", event.ID, sess.ID)
	return nil
}

// handlePaymentIntentFailed marks the owning session failed, best-effort.
// A lookup miss is logged and acked: failing the handler would only make
// Stripe redeliver an event we still could not attribute.
func (s *Service) handlePaymentIntentFailed(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to unmarshal payment intent from webhook event: %w", err)
	}

	ps, err := s.db.GetPaymentSessionByPaymentIntentID(ctx, intent.ID)
	if err == nil {
		if _, err := s.db.MarkPaymentSessionFailed(ctx, ps.StripeSessionID); err != nil {
			log.Printf("Failed to mark payment session failed: event_id=%s session_id=%s error=%v", event.ID, ps.StripeSessionID, err)
		}
		return nil
	}

	// The intent id is only stamped locally at completion, so a failed intent
	// usually needs a session lookup on the Stripe side.
	if s.config.StripeSecretKey == "" {
		log.Printf("Payment intent failed, no local session and no API credentials: event_id=%s payment_intent=%s", event.ID, intent.ID)
		return nil
	}

	listParams := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(intent.ID),
	}
	listParams.Limit = stripe.Int64(1)

	iter := session.List(listParams)
	for iter.Next() {
		sessID := iter.CheckoutSession().ID
		if _, err := s.db.MarkPaymentSessionFailed(ctx, sessID); err != nil {
			log.Printf("Failed to mark payment session failed: event_id=%s session_id=%s error=%v", event.ID, sessID, err)
		}
		return nil
	}
	if err := iter.Err(); err != nil {
		log.Printf("Failed to find checkout session for failed intent: event_id=%s payment_intent=%s error=%v", event.ID, intent.ID, err)
	}

	return nil
}

// handleSubscriptionUpdated applies billing-period changes to the local
// subscription. An update arriving before the originating checkout has been
// processed finds no local row and is a safe no-op; the creation path fills
// in creation-time defaults and a later redelivery of the update applies the
// period fields.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription from webhook event: %w", err)
	}

	log.Printf("Processing subscription update: event_id=%s subscription_id=%s status=%s", event.ID, sub.ID, sub.Status)

	if _, err := s.db.GetSubscriptionByStripeID(ctx, sub.ID); err != nil {
		// Out-of-order delivery: the checkout completion has not been
		// processed yet. Don't fail the webhook.
		log.Printf("No local subscription for update: event_id=%s subscription_id=%s", event.ID, sub.ID)
		return nil
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 {
		log.Printf("Subscription update without items: event_id=%s subscription_id=%s", event.ID, sub.ID)
		return nil
	}

	item := sub.Items.Data[0]
	periodStart := time.Unix(item.CurrentPeriodStart, 0)
	periodEnd := time.Unix(item.CurrentPeriodEnd, 0)

	if err := s.db.UpdateSubscriptionBillingPeriod(ctx, sub.ID, periodStart, periodEnd); err != nil {
		return err
	}

	log.Printf("Subscription billing period updated: event_id=%s subscription_id=%s period_end=%s", event.ID, sub.ID, periodEnd.Format(time.RFC3339))
	return nil
}

// handleSubscriptionDeleted marks the local subscription cancelled
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription from webhook event: %w", err)
	}

	log.Printf("Processing subscription deletion: event_id=%s subscription_id=%s", event.ID, sub.ID)

	cancelled, err := s.db.MarkSubscriptionCancelled(ctx, sub.ID)
	if err != nil {
		return err
	}
	if !cancelled {
		// Already cancelled or never created locally - that's fine
		log.Printf("Subscription not active locally: event_id=%s subscription_id=%s", event.ID, sub.ID)
		return nil
	}

	log.Printf("Subscription cancelled: event_id=%s subscription_id=%s", event.ID, sub.ID)
	return nil
}

// handleInvoicePaymentSucceeded records one recurring billing cycle as a new
// completed donation. The initial invoice of a subscription is skipped: that
// cycle is recorded by the checkout completion. The donation insert is keyed
// by invoice id, so a redelivered invoice event records nothing twice.
func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("failed to unmarshal invoice from webhook event: %w", err)
	}

	if inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		log.Printf("Skipping initial subscription invoice: event_id=%s invoice_id=%s", event.ID, inv.ID)
		return nil
	}

	var subscriptionID string
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		subscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	if subscriptionID == "" {
		log.Printf("Invoice without subscription, ignored: event_id=%s invoice_id=%s", event.ID, inv.ID)
		return nil
	}

	sub, err := s.db.GetSubscriptionByStripeID(ctx, subscriptionID)
	if err != nil {
		log.Printf("No local subscription for invoice: event_id=%s subscription_id=%s", event.ID, subscriptionID)
		return nil
	}

	amount := sub.Amount
	if inv.AmountPaid > 0 {
		amount = inv.AmountPaid
	}

	inserted, err := s.db.CreateDonation(ctx, &database.CreateDonationParams{
		UserID:               sub.UserID,
		TargetKind:           sub.TargetKind,
		TargetID:             sub.TargetID,
		TargetName:           sub.TargetName,
		Amount:               amount,
		Currency:             sub.Currency,
		DonationType:         models.DonationRecurring,
		StripeSubscriptionID: &subscriptionID,
		StripeInvoiceID:      &inv.ID,
	})
	if err != nil {
		return err
	}
	if !inserted {
		log.Printf("Invoice already recorded: event_id=%s invoice_id=%s", event.ID, inv.ID)
		return nil
	}

	// Roll the billing period forward from the invoice line
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		period := inv.Lines.Data[0].Period
		if err := s.db.UpdateSubscriptionBillingPeriod(ctx, subscriptionID,
			time.Unix(period.Start, 0), time.Unix(period.End, 0)); err != nil {
			log.Printf("Failed to update billing period from invoice: event_id=%s subscription_id=%s error=%v", event.ID, subscriptionID, err)
		}
	}

	log.Printf("Recurring donation recorded: event_id=%s invoice_id=%s subscription_id=%s amount=%d", event.ID, inv.ID, subscriptionID, amount)

	if s.notifier != nil {
		user, err := s.db.GetUserByID(ctx, sub.UserID)
		if err != nil {
			log.Printf("Failed to look up user for receipt: user_id=%s error=%v", sub.UserID, err)
			return nil
		}
		targetName := sub.TargetName
		currency := sub.Currency
		go func() {
			if err := s.notifier.SendRecurringReceipt(user.Email, targetName, amount, currency); err != nil {
				log.Printf("Failed to send recurring receipt: user_id=%s error=%v", sub.UserID, err)
			}
		}()
	}

	return nil
}

// GetSubscription retrieves subscription details from Stripe
func (s *Service) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	return sub, nil
}

// CancelSubscriptionAtPeriodEnd cancels a subscription at the end of the billing period
func (s *Service) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return sub, nil
}

// ResumeSubscription removes the cancel_at_period_end flag to resume a subscription
func (s *Service) ResumeSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resume subscription: %w", err)
	}
	return sub, nil
}
