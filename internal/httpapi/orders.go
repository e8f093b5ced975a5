package httpapi

import (
	"net/http"
	"strings"

	"gamecredit-platform/internal/auth"
	"gamecredit-platform/internal/orders"
	"gamecredit-platform/internal/rbac"
	"gamecredit-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const headerIdempotencyKey = "Idempotency-Key"

func (h Handlers) CreateOrder(c *gin.Context) {
	var req orders.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey)); key != "" {
		req.IdempotencyKey = key
	}
	req.ClientID = callerClient(c)

	ctx := c.Request.Context()
	v, err := h.Orders.CreateOrder(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}
	if ip := auth.ClientIP(ctx); ip != "" && h.Referrals != nil {
		if err := h.Referrals.RecordIP(ctx, req.ClientID, ip); err != nil {
			logger.From(ctx).Warn("record client ip", "client_id", req.ClientID, "err", err)
		}
	}
	c.JSON(http.StatusCreated, v)
}

func (h Handlers) ListOrders(c *gin.Context) {
	list, err := h.Orders.ListClientOrders(c.Request.Context(), callerClient(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// GetOrder serves both clients (own orders only) and staff.
func (h Handlers) GetOrder(c *gin.Context) {
	owner := callerClient(c)
	if role, _ := auth.Role(c.Request.Context()); rbac.IsStaff(role) {
		owner = ""
	} else if owner == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "client_id required"})
		return
	}
	v, err := h.Orders.GetOrder(c.Request.Context(), c.Param("order_id"), owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h Handlers) CancelOrder(c *gin.Context) {
	v, err := h.Orders.CancelOrder(c.Request.Context(), c.Param("order_id"), callerClient(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h Handlers) SubmitOrder(c *gin.Context) {
	v, err := h.Orders.Submit(c.Request.Context(), c.Param("order_id"), callerClient(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type screenshotRequest struct {
	URL string `json:"screenshot_url"`
}

func (h Handlers) AttachScreenshot(c *gin.Context) {
	var req screenshotRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		badRequest(c, "screenshot_url required")
		return
	}
	v, err := h.Orders.AttachScreenshot(c.Request.Context(), c.Param("order_id"), callerClient(c), req.URL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// --- Admin ---

type editAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (h Handlers) EditOrderAmount(c *gin.Context) {
	var req editAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	v, err := h.Orders.EditOrderAmount(c.Request.Context(), orders.EditRequest{
		OrderID: c.Param("order_id"),
		Amount:  req.Amount,
		Reason:  req.Reason,
		ActorID: callerUser(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h Handlers) ConfirmOrder(c *gin.Context) {
	res, err := h.Orders.ConfirmOrder(c.Request.Context(), c.Param("order_id"), callerUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) RejectOrder(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	v, err := h.Orders.RejectOrder(c.Request.Context(), c.Param("order_id"), req.Reason, callerUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h Handlers) ReconcileOrder(c *gin.Context) {
	v, repaired, err := h.Orders.Reconcile(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": v.Order, "transaction": v.Transaction, "repaired": repaired})
}
