package httpapi

import (
	"net/http"
	"strconv"

	"gamecredit-platform/internal/audit"
	"gamecredit-platform/internal/webhook"
	"gamecredit-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type registerWebhookRequest struct {
	URL    string   `json:"webhook_url"`
	Events []string `json:"subscribed_events"`
	Secret string   `json:"signing_secret,omitempty"`
}

func (h Handlers) RegisterWebhook(c *gin.Context) {
	var req registerWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	reg, err := h.Webhooks.Register(c.Request.Context(), webhook.RegisterRequest{
		OwnerID: callerClient(c),
		URL:     req.URL,
		Events:  req.Events,
		Secret:  req.Secret,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h Handlers) ListWebhooks(c *gin.Context) {
	list, err := h.Webhooks.List(c.Request.Context(), callerClient(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": list})
}

func (h Handlers) DeleteWebhook(c *gin.Context) {
	if err := h.Webhooks.Delete(c.Request.Context(), callerClient(c), c.Param("webhook_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ListDeliveries(c *gin.Context) {
	h.deliveries(c, callerClient(c))
}

func (h Handlers) AdminListDeliveries(c *gin.Context) {
	h.deliveries(c, "")
}

func (h Handlers) deliveries(c *gin.Context, owner string) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.Webhooks.ListDeliveries(c.Request.Context(), owner, c.Param("webhook_id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": list})
}

// --- Admin ---

type triggerRequest struct {
	Event    string `json:"event_type"`
	ClientID string `json:"client_id,omitempty"`
	Data     any    `json:"data"`
}

func (h Handlers) TriggerWebhookEvent(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	out, err := h.Webhooks.Trigger(ctx, req.Event, req.ClientID, req.Data)
	if err != nil {
		if len(out) > 0 {
			logger.FromGin(c).Warn("webhook trigger stored only some deliveries", "event", req.Event, "queued", len(out), "err", err)
		}
		fail(c, err)
		return
	}
	h.audited(ctx, audit.EventTypeWebhook, "event", req.Event, req.ClientID, "webhook event triggered", map[string]string{
		"deliveries": strconv.Itoa(len(out)),
	})
	c.JSON(http.StatusAccepted, gin.H{"deliveries": out})
}

func (h Handlers) ReactivateWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	w, err := h.Webhooks.Reactivate(ctx, c.Param("webhook_id"))
	if err != nil {
		fail(c, err)
		return
	}
	h.audited(ctx, audit.EventTypeWebhook, "webhook", w.ID, w.OwnerID, "webhook reactivated", nil)
	c.JSON(http.StatusOK, w)
}
