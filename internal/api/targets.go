package api

import (
	"log"
	"net/http"

	"github.com/donorconnect/api/internal/api/middleware"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TargetHandler struct {
	db *database.DB
}

func NewTargetHandler(db *database.DB) *TargetHandler {
	return &TargetHandler{db: db}
}

// ListNGOs returns all registered NGOs
func (h *TargetHandler) ListNGOs(c *gin.Context) {
	ngos, err := h.db.ListNGOs(c.Request.Context())
	if err != nil {
		log.Printf("failed to list NGOs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list NGOs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ngos": ngos})
}

// CreateNGO registers a new NGO. Restricted to ngo and admin roles.
func (h *TargetHandler) CreateNGO(c *gin.Context) {
	role := middleware.GetUserRole(c)
	if role != string(models.RoleNGO) && role != string(models.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return
	}

	var req models.CreateNGORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ngo, err := h.db.CreateNGO(c.Request.Context(), req.Name, req.Description, req.Website)
	if err != nil {
		log.Printf("failed to create NGO: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create NGO"})
		return
	}

	c.JSON(http.StatusCreated, ngo)
}

// ListCampaigns returns all fundraising campaigns
func (h *TargetHandler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.db.ListCampaigns(c.Request.Context())
	if err != nil {
		log.Printf("failed to list campaigns: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list campaigns"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// CreateCampaign creates a fundraising campaign under an existing NGO
func (h *TargetHandler) CreateCampaign(c *gin.Context) {
	role := middleware.GetUserRole(c)
	if role != string(models.RoleNGO) && role != string(models.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return
	}

	var req models.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ngoID, err := uuid.Parse(req.NGOID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid NGO ID"})
		return
	}

	exists, err := h.db.TargetExists(c.Request.Context(), models.TargetNGO, ngoID)
	if err != nil {
		log.Printf("failed to check NGO: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check NGO"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "NGO not found"})
		return
	}

	campaign, err := h.db.CreateCampaign(c.Request.Context(), ngoID, req.Name, req.Description, req.GoalAmount)
	if err != nil {
		log.Printf("failed to create campaign: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// GetDonationTotal returns the sum of completed donations for a target
func (h *TargetHandler) GetDonationTotal(c *gin.Context) {
	kind := models.TargetKind(c.Param("kind"))
	if kind != models.TargetNGO && kind != models.TargetCampaign {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target kind"})
		return
	}

	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target ID"})
		return
	}

	total, err := h.db.GetDonationTotalForTarget(c.Request.Context(), kind, targetID)
	if err != nil {
		log.Printf("failed to get donation total: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get donation total"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_kind": kind,
		"target_id":   targetID,
		"total":       total,
	})
}
