package send

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sendgate/internal/ratelimit"
	"github.com/mbd888/sendgate/internal/tenant"
	"github.com/mbd888/sendgate/internal/transaction"
)

// TenantContextKey is where the auth middleware stores the authenticated
// tenant on the gin context.
const TenantContextKey = "authTenant"

// Handler provides the HTTP surface of the send pipeline.
type Handler struct {
	service *Service
	txns    transaction.Store
}

// NewHandler creates a new send handler.
func NewHandler(service *Service, txns transaction.Store) *Handler {
	return &Handler{service: service, txns: txns}
}

// RegisterRoutes sets up tenant-facing routes. All of them require the auth
// middleware to have resolved the tenant already.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/messaging/:service/send", h.Send)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
}

// RegisterReceiptRoutes sets up the provider callback route, which is
// authenticated separately (shared secret, not tenant API keys).
func (h *Handler) RegisterReceiptRoutes(r *gin.RouterGroup) {
	r.POST("/receipts", h.DeliveryReceipt)
}

// Send handles POST /v1/messaging/:service/send
func (h *Handler) Send(c *gin.Context) {
	t := authedTenant(c)
	if t == nil {
		return
	}

	req := Request{
		Service:        c.Param("service"),
		IdempotencyKey: c.GetHeader("X-Idempotency-Key"),
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(CodeInvalidRequest),
			"message": "Invalid request body",
		})
		return
	}

	outcome, sendErr := h.service.Send(c.Request.Context(), t, &req)
	if sendErr != nil {
		if sendErr.Decision != nil {
			ratelimit.ApplyHeaders(c, sendErr.Decision)
		}
		if sendErr.Code == CodeRateLimitExceeded {
			ratelimit.Deny(c, sendErr.Decision)
			return
		}
		c.JSON(sendErr.Status, gin.H{
			"error":   string(sendErr.Code),
			"message": sendErr.Message,
		})
		return
	}

	if outcome.Decision != nil {
		ratelimit.ApplyHeaders(c, outcome.Decision)
	}
	if outcome.Replayed {
		c.Header("X-Idempotent-Replay", "true")
	}
	c.Data(outcome.StatusCode, "application/json", outcome.Body)
}

// GetTransaction handles GET /v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	t := authedTenant(c)
	if t == nil {
		return
	}

	txn, err := h.txns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	// Tenants can only see their own rows.
	if txn.TenantID != t.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ListTransactions handles GET /v1/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	t := authedTenant(c)
	if t == nil {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	txns, next, err := h.txns.ListByTenant(c.Request.Context(), t.ID, transaction.ListOptions{
		Status: transaction.Status(c.Query("status")),
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(CodeInvalidRequest), "message": "invalid cursor"})
		return
	}

	resp := gin.H{"transactions": txns, "has_more": next != ""}
	if next != "" {
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// receiptRequest is a provider delivery receipt callback.
type receiptRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Delivered     *bool  `json:"delivered" binding:"required"`
}

// DeliveryReceipt handles POST /internal/receipts
func (h *Handler) DeliveryReceipt(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(CodeInvalidRequest),
			"message": "transaction_id and delivered are required",
		})
		return
	}

	txn, err := h.service.ConfirmDelivery(c.Request.Context(), req.TransactionID, *req.Delivered)
	if err != nil {
		switch {
		case errors.Is(err, transaction.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, transaction.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}
	c.JSON(http.StatusOK, txn)
}

// authedTenant pulls the tenant placed on the context by the auth
// middleware, failing the request if it is missing.
func authedTenant(c *gin.Context) *tenant.Tenant {
	v, ok := c.Get(TenantContextKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	t, ok := v.(*tenant.Tenant)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return t
}
