package httpapi

import (
	"net/http"

	"gamecredit-platform/internal/audit"
	"gamecredit-platform/internal/auth"
	"gamecredit-platform/internal/referral"

	"github.com/gin-gonic/gin"
)

type registerClientRequest struct {
	referral.RegisterRequest
	SignupIP string `json:"signup_ip"`
}

// RegisterClient is called by the onboarding front end (bot, admin panel) on
// behalf of a new client.
func (h Handlers) RegisterClient(c *gin.Context) {
	var req registerClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	req.IP = req.SignupIP
	cl, err := h.Referrals.RegisterClient(c.Request.Context(), req.RegisterRequest)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

func (h Handlers) ApplyReferralCode(c *gin.Context) {
	var req referral.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	req.ClientID = callerClient(c)
	req.IP = auth.ClientIP(c.Request.Context())

	rec, err := h.Referrals.ApplyReferralCode(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) GetReferralSummary(c *gin.Context) {
	sum, err := h.Referrals.GetReferralSummary(c.Request.Context(), callerClient(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type referralStatusRequest struct {
	Status referral.Status `json:"status"`
}

func (h Handlers) UpdateReferralStatus(c *gin.Context) {
	var req referralStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	referredID := c.Param("client_id")
	rec, err := h.Referrals.UpdateReferralStatus(ctx, referredID, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	h.audited(ctx, audit.EventTypeReferral, "referral", rec.ID, referredID, "referral status changed", map[string]string{
		"status":      string(rec.Status),
		"referrer_id": rec.ReferrerID,
	})
	c.JSON(http.StatusOK, rec)
}
