package tenant

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/sendgate/internal/idgen"
	"github.com/mbd888/sendgate/internal/security"
)

// Handler provides the operator-facing tenant management endpoints. These
// sit behind the admin secret, not tenant API keys.
type Handler struct {
	store Store
}

// NewHandler creates a tenant admin handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up tenant management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.CreateTenant)
	r.GET("/tenants/:id", h.GetTenant)
	r.PATCH("/tenants/:id", h.UpdateTenant)
	r.POST("/tenants/:id/credit", h.CreditTenant)
}

// CreateRequest is the signup payload.
type CreateRequest struct {
	Name       string `json:"name" binding:"required"`
	Plan       string `json:"plan"`
	WebhookURL string `json:"webhook_url"`
}

type createResponse struct {
	Tenant *Tenant `json:"tenant"`
	// APIKey is only ever returned once, at creation.
	APIKey string `json:"api_key"`
}

// CreateTenant handles POST /admin/tenants
func (h *Handler) CreateTenant(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name is required"})
		return
	}

	plan := Plan(req.Plan)
	if req.Plan == "" {
		plan = PlanFree
	}
	if !ValidPlan(plan) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "unknown plan: " + req.Plan})
		return
	}
	if req.WebhookURL != "" {
		if err := security.ValidateWebhookURL(req.WebhookURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "webhook_url: " + err.Error()})
			return
		}
	}

	now := time.Now().UTC()
	t := &Tenant{
		ID:         idgen.WithPrefix("ten_"),
		Name:       req.Name,
		APIKey:     idgen.APIKey(),
		Plan:       plan,
		Active:     true,
		Balance:    decimal.Zero,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.Create(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, createResponse{Tenant: t, APIKey: t.APIKey})
}

// GetTenant handles GET /admin/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdateRequest mutates plan, active flag, or webhook URL. Nil fields are
// left as they are.
type UpdateRequest struct {
	Plan       *string `json:"plan"`
	Active     *bool   `json:"active"`
	WebhookURL *string `json:"webhook_url"`
}

// UpdateTenant handles PATCH /admin/tenants/:id
func (h *Handler) UpdateTenant(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	if req.Plan != nil {
		plan := Plan(*req.Plan)
		if !ValidPlan(plan) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "unknown plan: " + *req.Plan})
			return
		}
		t.Plan = plan
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if req.WebhookURL != nil {
		if *req.WebhookURL != "" {
			if err := security.ValidateWebhookURL(*req.WebhookURL); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "webhook_url: " + err.Error()})
				return
			}
		}
		t.WebhookURL = *req.WebhookURL
	}

	if err := h.store.Update(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// CreditRequest is a billing-sync balance top-up.
type CreditRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// CreditTenant handles POST /admin/tenants/:id/credit
func (h *Handler) CreditTenant(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "amount is required"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "amount must be a positive decimal"})
		return
	}

	if err := h.store.Credit(c.Request.Context(), c.Param("id"), amount); err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, t)
}
