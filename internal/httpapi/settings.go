package httpapi

import (
	"net/http"

	"gamecredit-platform/internal/audit"
	"gamecredit-platform/internal/settings"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetSettings(c *gin.Context) {
	s, err := h.Settings.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings replaces the whole document.
func (h Handlers) UpdateSettings(c *gin.Context) {
	var next settings.Settings
	if err := c.ShouldBindJSON(&next); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	saved, err := h.Settings.Update(ctx, next)
	if err != nil {
		fail(c, err)
		return
	}
	h.audited(ctx, audit.EventTypeSettings, "settings", "platform", "", "settings updated", nil)
	c.JSON(http.StatusOK, saved)
}
