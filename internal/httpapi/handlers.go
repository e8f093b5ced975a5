package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/audit"
	"gamecredit-platform/internal/auth"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/orders"
	"gamecredit-platform/internal/referral"
	"gamecredit-platform/internal/settings"
	"gamecredit-platform/internal/webhook"
	"gamecredit-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Ledger    *ledger.Service
	Referrals *referral.Service
	Orders    *orders.Service
	Webhooks  *webhook.Service
	Settings  *settings.Service
	Audit     *audit.Service
}

// fail answers with the status the error class maps to. Messages outside the
// error taxonomy are not leaked.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := http.StatusText(status)
	if apperr.Public(err) {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// callerClient is the client the token was issued for.
func callerClient(c *gin.Context) string {
	id, _ := auth.ClientID(c.Request.Context())
	return id
}

func callerUser(c *gin.Context) string {
	id, _ := auth.UserID(c.Request.Context())
	return id
}

// audited records an admin action. Failures are logged, never returned.
func (h Handlers) audited(ctx context.Context, typ audit.EventType, targetType, targetID, clientID, message string, meta map[string]string) {
	if h.Audit == nil {
		return
	}
	var metadata string
	if len(meta) > 0 {
		b, _ := json.Marshal(meta)
		metadata = string(b)
	}
	if err := h.Audit.LogAdminAction(ctx, typ, targetType, targetID, clientID, message, metadata); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", typ, "target_id", targetID, "err", err)
	}
}

func (h Handlers) publish(ctx context.Context, event, ownerID string, data any) {
	if h.Webhooks != nil {
		h.Webhooks.Publish(ctx, event, ownerID, data)
	}
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
