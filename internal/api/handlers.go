package api

import (
	"strings"

	"github.com/donorconnect/api/config"
	"github.com/donorconnect/api/internal/api/middleware"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/services/auth"
	"github.com/donorconnect/api/internal/services/email"
	"github.com/donorconnect/api/internal/services/stripe"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// supportedCurrencies are the ISO 4217 codes accepted for donations.
// Zero-decimal currencies are excluded so amounts are always minor units.
var supportedCurrencies = map[string]bool{
	"usd": true, "eur": true, "gbp": true, "cad": true, "aud": true,
	"chf": true, "sek": true, "nok": true, "dkk": true, "pln": true,
	"inr": true, "nzd": true, "sgd": true,
}

type Handlers struct {
	Config          *config.Config
	AuthHandler     *AuthHandler
	TargetHandler   *TargetHandler
	DonationHandler *DonationHandler
	BillingHandler  *BillingHandler
}

func NewHandlers(db *database.DB, cfg *config.Config) *Handlers {
	authService := auth.NewService(db, cfg)
	emailService := email.NewService(cfg)
	stripeService := stripe.NewService(db, cfg, emailService)

	return &Handlers{
		Config:          cfg,
		AuthHandler:     NewAuthHandler(db, authService),
		TargetHandler:   NewTargetHandler(db),
		DonationHandler: NewDonationHandler(db, cfg, stripeService),
		BillingHandler:  NewBillingHandler(db, cfg, stripeService),
	}
}

// RegisterValidators installs custom request validators on gin's binding
// engine. Must run once before the first request is bound.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return supportedCurrencies[strings.ToLower(fl.Field().String())]
		})
	}
}

// RegisterRoutes registers all API routes
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
		})
	})

	// Auth routes (public)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", h.AuthHandler.Register)
		authRoutes.POST("/login", h.AuthHandler.Login)
		authRoutes.POST("/logout", h.AuthHandler.Logout)
		authRoutes.POST("/refresh", h.AuthHandler.RefreshToken)
	}

	// Donation targets (public reads)
	r.GET("/ngos", h.TargetHandler.ListNGOs)
	r.GET("/campaigns", h.TargetHandler.ListCampaigns)
	r.GET("/targets/:kind/:id/total", h.TargetHandler.GetDonationTotal)

	// Protected routes
	protected := r.Group("")
	protected.Use(middleware.AuthMiddleware(h.Config.JWTSecret))
	{
		// User profile
		protected.GET("/me", h.AuthHandler.GetProfile)

		// Target management
		protected.POST("/ngos", h.TargetHandler.CreateNGO)
		protected.POST("/campaigns", h.TargetHandler.CreateCampaign)

		// Donations
		protected.POST("/donations/checkout", h.DonationHandler.CreateCheckoutSession)
		protected.GET("/donations", h.DonationHandler.ListDonations)
		protected.GET("/donations/sessions", h.DonationHandler.ListPaymentSessions)

		// Billing
		protected.GET("/billing", h.BillingHandler.GetBilling)
		protected.POST("/billing/subscriptions/:id/cancel", h.BillingHandler.CancelSubscription)
		protected.POST("/billing/subscriptions/:id/resume", h.BillingHandler.ResumeSubscription)
	}

	// Stripe webhook (public, signature verified)
	r.POST("/webhooks/stripe", h.DonationHandler.HandleStripeWebhook)
}
