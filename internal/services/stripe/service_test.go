package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/donorconnect/api/config"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

// TestMain sets up the test database and runs all tests
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start PostgreSQL container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		container.Terminate(ctx)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create connection pool: %v\n", err)
		container.Terminate(ctx)
		os.Exit(1)
	}
	testPool = pool

	if err := runMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		pool.Close()
		container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	pool.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to terminate container: %v\n", err)
	}

	os.Exit(code)
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "..", "migrations")

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}

		sqlBytes, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}

	return nil
}

// fakeNotifier counts receipt deliveries
type fakeNotifier struct {
	mu        sync.Mutex
	oneTime   int
	recurring int
}

func (f *fakeNotifier) SendDonationReceipt(to, targetName string, amount int64, currency string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneTime++
	return nil
}

func (f *fakeNotifier) SendRecurringReceipt(to, targetName string, amount int64, currency string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recurring++
	return nil
}

func (f *fakeNotifier) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.oneTime, f.recurring
}

// setupTest creates a transaction-scoped service for test isolation
func setupTest(t *testing.T) (*Service, *database.DB, *fakeNotifier, func()) {
	t.Helper()

	ctx := context.Background()
	tx, err := testPool.Begin(ctx)
	require.NoError(t, err, "failed to begin transaction")

	db := &database.DB{Pool: tx}
	notifier := &fakeNotifier{}
	cfg := &config.Config{
		StripeWebhookSecret: "whsec_test_secret",
		StripeTimeout:       5 * time.Second,
		FrontendURL:         "http://localhost:3000",
	}
	svc := NewService(db, cfg, notifier)

	cleanup := func() {
		tx.Rollback(ctx)
	}

	return svc, db, notifier, cleanup
}

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

func randomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rng.Intn(len(charset))]
	}
	return string(b)
}

// seedPendingSession creates a user, an NGO and a pending payment session
func seedPendingSession(t *testing.T, db *database.DB, donationType models.DonationType) *models.PaymentSession {
	t.Helper()
	ctx := context.Background()

	user, err := db.CreateUser(ctx, randomString(10)+"@test.com", "password_hash", nil, models.RoleDonor)
	require.NoError(t, err)

	ngo, err := db.CreateNGO(ctx, "NGO "+randomString(8), nil, nil)
	require.NoError(t, err)

	ps, err := db.CreatePaymentSession(ctx, &database.CreatePaymentSessionParams{
		UserID:          user.ID,
		TargetKind:      models.TargetNGO,
		TargetID:        ngo.ID,
		TargetName:      ngo.Name,
		StripeSessionID: "cs_test_" + randomString(24),
		Amount:          2500,
		Currency:        "usd",
		DonationType:    donationType,
		ItemType:        models.ItemMoney,
	})
	require.NoError(t, err)
	return ps
}

func newEvent(t *testing.T, eventType string, object map[string]any) *stripe.Event {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)

	return &stripe.Event{
		ID:   "evt_" + randomString(24),
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func checkoutCompletedEvent(t *testing.T, ps *models.PaymentSession, mode string, extra map[string]any) *stripe.Event {
	object := map[string]any{
		"id":             ps.StripeSessionID,
		"object":         "checkout.session",
		"mode":           mode,
		"payment_status": "paid",
		"metadata": map[string]string{
			"user_id":       ps.UserID.String(),
			"donation_type": string(ps.DonationType),
		},
	}
	for k, v := range extra {
		object[k] = v
	}
	return newEvent(t, "checkout.session.completed", object)
}

func waitForCounts(t *testing.T, notifier *fakeNotifier, oneTime, recurring int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		o, r := notifier.counts()
		return o == oneTime && r == recurring
	}, 2*time.Second, 10*time.Millisecond, "expected %d one-time and %d recurring receipts", oneTime, recurring)
}

func Test_HandleStripeEvent_PaymentCheckoutCompleted(t *testing.T) {
	svc, db, notifier, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationOneTime)

	event := checkoutCompletedEvent(t, ps, "payment", map[string]any{
		"payment_intent": "pi_" + randomString(24),
	})

	err := svc.HandleStripeEvent(ctx, event)
	require.NoError(t, err, "HandleStripeEvent should not return an error")

	found, err := db.GetPaymentSessionByStripeSessionID(ctx, ps.StripeSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionCompleted, found.Status)
	assert.NotNil(t, found.StripePaymentIntentID, "payment intent should be stamped")
	assert.NotNil(t, found.CompletedAt)

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	require.Len(t, donations, 1, "completion should record exactly one donation")
	assert.Equal(t, ps.Amount, donations[0].Amount)

	waitForCounts(t, notifier, 1, 0)
}

func Test_HandleStripeEvent_PaymentCheckoutCompleted_Redelivered(t *testing.T) {
	svc, db, notifier, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationOneTime)

	event := checkoutCompletedEvent(t, ps, "payment", map[string]any{
		"payment_intent": "pi_" + randomString(24),
	})

	require.NoError(t, svc.HandleStripeEvent(ctx, event))
	require.NoError(t, svc.HandleStripeEvent(ctx, event), "redelivery should not be an error")

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	assert.Len(t, donations, 1, "redelivery must not record a second donation")

	waitForCounts(t, notifier, 1, 0)

	// Give a stray goroutine a chance to fire before re-checking
	time.Sleep(100 * time.Millisecond)
	oneTime, recurring := notifier.counts()
	assert.Equal(t, 1, oneTime, "redelivery must not send a second receipt")
	assert.Equal(t, 0, recurring)
}

func Test_HandleStripeEvent_PaymentCheckoutCompleted_UnknownSession(t *testing.T) {
	svc, _, _, cleanup := setupTest(t)
	defer cleanup()

	event := newEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_unknown",
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "paid",
	})

	err := svc.HandleStripeEvent(context.Background(), event)
	assert.Error(t, err, "completion for an unknown session should fail so Stripe retries")
}

func Test_HandleStripeEvent_PaymentCheckoutCompleted_Unpaid(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationOneTime)

	event := newEvent(t, "checkout.session.completed", map[string]any{
		"id":             ps.StripeSessionID,
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "unpaid",
	})

	err := svc.HandleStripeEvent(ctx, event)
	assert.Error(t, err, "unpaid completion must not be applied")

	found, err := db.GetPaymentSessionByStripeSessionID(ctx, ps.StripeSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionPending, found.Status, "session should stay pending")
}

func Test_HandleStripeEvent_SubscriptionCheckoutCompleted(t *testing.T) {
	svc, db, notifier, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	event := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})

	require.NoError(t, svc.HandleStripeEvent(ctx, event))

	found, err := db.GetPaymentSessionByStripeSessionID(ctx, ps.StripeSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionCompleted, found.Status)
	require.NotNil(t, found.StripeSubscriptionID, "subscription id should be stamped on the session")
	assert.Equal(t, subID, *found.StripeSubscriptionID)

	sub, err := db.GetSubscriptionByStripeID(ctx, subID)
	require.NoError(t, err, "subscription row should exist")
	assert.Equal(t, ps.UserID, sub.UserID)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, models.IntervalMonthly, sub.BillingInterval, "interval defaults to monthly")

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	assert.Len(t, donations, 1, "first billing cycle is recorded with the completion")

	waitForCounts(t, notifier, 0, 1)
}

func Test_HandleStripeEvent_SubscriptionCheckoutCompleted_FirstCycleLedger(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	// The first-cycle donation commits together with the session transition:
	// by the time HandleStripeEvent returns, the ledger row must exist and
	// carry both external identifiers.
	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	event := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, event))

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	require.Len(t, donations, 1)

	donation := donations[0]
	assert.Equal(t, models.DonationRecurring, donation.DonationType)
	require.NotNil(t, donation.StripeSessionID)
	assert.Equal(t, ps.StripeSessionID, *donation.StripeSessionID)
	require.NotNil(t, donation.StripeSubscriptionID)
	assert.Equal(t, subID, *donation.StripeSubscriptionID)
	assert.Nil(t, donation.StripeInvoiceID, "first cycle is session-keyed, not invoice-keyed")
}

func Test_HandleStripeEvent_SubscriptionCheckoutCompleted_Redelivered(t *testing.T) {
	svc, db, notifier, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	event := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})

	require.NoError(t, svc.HandleStripeEvent(ctx, event))
	require.NoError(t, svc.HandleStripeEvent(ctx, event))

	subs, err := db.ListSubscriptionsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	assert.Len(t, subs, 1, "redelivery must not create a second subscription")

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	assert.Len(t, donations, 1, "redelivery must not record a second donation")

	waitForCounts(t, notifier, 0, 1)
}

func Test_HandleStripeEvent_CheckoutSessionExpired(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationOneTime)

	event := newEvent(t, "checkout.session.expired", map[string]any{
		"id":     ps.StripeSessionID,
		"object": "checkout.session",
		"mode":   "payment",
	})

	require.NoError(t, svc.HandleStripeEvent(ctx, event))

	found, err := db.GetPaymentSessionByStripeSessionID(ctx, ps.StripeSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionExpired, found.Status)
}

func Test_HandleStripeEvent_ExpiredAfterCompletion(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationOneTime)

	completion := checkoutCompletedEvent(t, ps, "payment", map[string]any{
		"payment_intent": "pi_" + randomString(24),
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, completion))

	expiry := newEvent(t, "checkout.session.expired", map[string]any{
		"id":     ps.StripeSessionID,
		"object": "checkout.session",
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, expiry), "late expiry should be acked")

	found, err := db.GetPaymentSessionByStripeSessionID(ctx, ps.StripeSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionCompleted, found.Status, "completion is terminal")
}

func Test_HandleStripeEvent_SubscriptionUpdated_BeforeCreation(t *testing.T) {
	svc, _, _, cleanup := setupTest(t)
	defer cleanup()

	// Out-of-order delivery: the update lands before the checkout completion
	// has created the local subscription. Must be acked, not failed.
	event := newEvent(t, "customer.subscription.updated", map[string]any{
		"id":     "sub_" + randomString(24),
		"object": "subscription",
		"status": "active",
	})

	err := svc.HandleStripeEvent(context.Background(), event)
	assert.NoError(t, err, "update for an unknown subscription is a safe no-op")
}

func Test_HandleStripeEvent_SubscriptionUpdated(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	completion := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, completion))

	periodStart := time.Now().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)

	update := newEvent(t, "customer.subscription.updated", map[string]any{
		"id":     subID,
		"object": "subscription",
		"status": "active",
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{
					"id":                   "si_" + randomString(14),
					"object":               "subscription_item",
					"current_period_start": periodStart.Unix(),
					"current_period_end":   periodEnd.Unix(),
				},
			},
		},
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, update))

	sub, err := db.GetSubscriptionByStripeID(ctx, subID)
	require.NoError(t, err)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.WithinDuration(t, periodStart, *sub.CurrentPeriodStart, time.Second)
	assert.WithinDuration(t, periodEnd, *sub.CurrentPeriodEnd, time.Second)
}

func Test_HandleStripeEvent_SubscriptionDeleted(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	completion := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, completion))

	deletion := newEvent(t, "customer.subscription.deleted", map[string]any{
		"id":     subID,
		"object": "subscription",
		"status": "canceled",
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, deletion))

	sub, err := db.GetSubscriptionByStripeID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, sub.Status)

	// Redelivery is a no-op
	require.NoError(t, svc.HandleStripeEvent(ctx, deletion))
}

func invoiceEvent(t *testing.T, invoiceID, subID, billingReason string, amountPaid int64) *stripe.Event {
	periodStart := time.Now().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)

	return newEvent(t, "invoice.payment_succeeded", map[string]any{
		"id":             invoiceID,
		"object":         "invoice",
		"billing_reason": billingReason,
		"amount_paid":    amountPaid,
		"currency":       "usd",
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": subID,
			},
		},
		"lines": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{
					"period": map[string]any{
						"start": periodStart.Unix(),
						"end":   periodEnd.Unix(),
					},
				},
			},
		},
	})
}

func Test_HandleStripeEvent_InvoicePaymentSucceeded(t *testing.T) {
	svc, db, notifier, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	completion := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, completion))
	waitForCounts(t, notifier, 0, 1)

	invoiceID := "in_" + randomString(24)
	invoice := invoiceEvent(t, invoiceID, subID, "subscription_cycle", 2500)
	require.NoError(t, svc.HandleStripeEvent(ctx, invoice))

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	require.Len(t, donations, 2, "renewal cycle should add a donation")

	sub, err := db.GetSubscriptionByStripeID(ctx, subID)
	require.NoError(t, err)
	assert.NotNil(t, sub.CurrentPeriodEnd, "billing period should roll forward")

	waitForCounts(t, notifier, 0, 2)

	// Redelivered invoice records nothing twice
	require.NoError(t, svc.HandleStripeEvent(ctx, invoice))
	donations, err = db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	assert.Len(t, donations, 2)
}

func Test_HandleStripeEvent_InvoicePaymentSucceeded_InitialInvoice(t *testing.T) {
	svc, db, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()
	ps := seedPendingSession(t, db, models.DonationRecurring)
	subID := "sub_" + randomString(24)

	completion := checkoutCompletedEvent(t, ps, "subscription", map[string]any{
		"subscription": subID,
	})
	require.NoError(t, svc.HandleStripeEvent(ctx, completion))

	// The subscription_create invoice duplicates the checkout completion
	invoice := invoiceEvent(t, "in_"+randomString(24), subID, "subscription_create", 2500)
	require.NoError(t, svc.HandleStripeEvent(ctx, invoice))

	donations, err := db.ListDonationsByUser(ctx, ps.UserID)
	require.NoError(t, err)
	assert.Len(t, donations, 1, "initial invoice must not double-record the first cycle")
}

func Test_HandleStripeEvent_InvoicePaymentSucceeded_UnknownSubscription(t *testing.T) {
	svc, _, _, cleanup := setupTest(t)
	defer cleanup()

	invoice := invoiceEvent(t, "in_"+randomString(24), "sub_unknown", "subscription_cycle", 1000)
	err := svc.HandleStripeEvent(context.Background(), invoice)
	assert.NoError(t, err, "invoice for an unknown subscription is a safe no-op")
}

func Test_HandleStripeEvent_UnknownEventType(t *testing.T) {
	svc, _, _, cleanup := setupTest(t)
	defer cleanup()

	event := newEvent(t, "charge.refunded", map[string]any{
		"id":     "ch_" + randomString(24),
		"object": "charge",
	})

	err := svc.HandleStripeEvent(context.Background(), event)
	assert.NoError(t, err, "unhandled event types are acked")
}
