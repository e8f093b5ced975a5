package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gamecredit-platform/internal/audit"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/webhook"
	"gamecredit-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetWallet(c *gin.Context) {
	h.walletSummary(c, callerClient(c))
}

func (h Handlers) AdminGetWallet(c *gin.Context) {
	h.walletSummary(c, c.Param("client_id"))
}

// walletSummary still answers with the clamped snapshot when the ledger is
// found negative; the violation is logged for operators.
func (h Handlers) walletSummary(c *gin.Context, clientID string) {
	sum, err := h.Ledger.GetWalletSummary(c.Request.Context(), clientID)
	if errors.Is(err, ledger.ErrNegativeBalance) {
		logger.FromGin(c).Error("ledger invariant violated", "client_id", clientID, "err", err)
		err = nil
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) AdjustWallet(c *gin.Context) {
	var req ledger.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	req.ClientID = c.Param("client_id")
	req.AdminUserID = callerUser(c)
	if key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey)); key != "" {
		req.IdempotencyKey = key
	}

	ctx := c.Request.Context()
	tx, bal, err := h.Ledger.AdjustWallet(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}
	h.audited(ctx, audit.EventTypeWallet, "client", req.ClientID, req.ClientID, "wallet adjusted", map[string]string{
		"transaction_id": tx.ID,
		"wallet_type":    string(req.Wallet),
		"amount":         req.Amount.StringFixed(2),
		"reason":         req.Reason,
	})
	h.publish(ctx, webhook.EventWalletAdjusted, req.ClientID, gin.H{"transaction": tx, "balances": bal})
	c.JSON(http.StatusOK, gin.H{"transaction": tx, "balances": bal})
}
