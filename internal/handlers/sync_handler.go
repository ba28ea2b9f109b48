package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shopify2xero/internal/services"
)

// SyncHandler exposes the sync engine over HTTP. Each endpoint invokes
// exactly one engine operation and returns its result or error.
type SyncHandler struct {
	service *services.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service *services.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

// syncOrderRequest is the body for order sync endpoints
type syncOrderRequest struct {
	DeletedProductOverrides map[string]string `json:"deletedProductOverrides"`
}

// SyncCustomer copies one storefront customer to the accounting platform
// as a contact. With ?update=true an existing contact with the same name
// is updated instead of a new one being created.
func (h *SyncHandler) SyncCustomer(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
		return
	}
	update := c.Query("update") == "true"

	contact, err := h.service.SyncContact(c.Request.Context(), customerID, update)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// SyncOrder copies one storefront order to the accounting platform as an
// invoice. A duplicate invoice is reported as a successful no-op.
func (h *SyncHandler) SyncOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req syncOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.service.SyncOrder(c.Request.Context(), orderID, req.DeletedProductOverrides); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

// SyncPayout copies every order referenced by a payout's transactions
// and returns a batch summary.
func (h *SyncHandler) SyncPayout(c *gin.Context) {
	var req services.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.SyncPayout(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// writeError maps engine errors to HTTP statuses: precondition
// violations are the caller's to fix, everything else is an upstream
// failure.
func writeError(c *gin.Context, err error) {
	var precondition *services.PreconditionError
	if errors.As(err, &precondition) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": precondition.Reason})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
