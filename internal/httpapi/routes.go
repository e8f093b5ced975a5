package httpapi

import (
	"gamecredit-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Routes mounts the /v1 API. authMW must put the caller's identity into the
// request context.
func Routes(r gin.IRouter, h Handlers, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(authMW)

	v1.GET("/orders/:order_id", h.GetOrder)

	// CLIENT routes
	client := v1.Group("")
	client.Use(rbac.RequireClient())
	{
		client.POST("/orders", h.CreateOrder)
		client.GET("/orders", h.ListOrders)
		client.POST("/orders/:order_id/cancel", h.CancelOrder)
		client.POST("/orders/:order_id/submit", h.SubmitOrder)
		client.PUT("/orders/:order_id/screenshot", h.AttachScreenshot)

		client.GET("/wallet", h.GetWallet)

		client.POST("/referrals/apply", h.ApplyReferralCode)
		client.GET("/referrals", h.GetReferralSummary)

		client.POST("/webhooks", h.RegisterWebhook)
		client.GET("/webhooks", h.ListWebhooks)
		client.DELETE("/webhooks/:webhook_id", h.DeleteWebhook)
		client.GET("/webhooks/:webhook_id/deliveries", h.ListDeliveries)
	}

	// Staff reads. Support may look, only admin may write.
	staff := v1.Group("/admin")
	staff.Use(rbac.RequireAnyRole(rbac.RoleSupport))
	{
		staff.GET("/clients/:client_id/wallet", h.AdminGetWallet)
		staff.GET("/webhooks/:webhook_id/deliveries", h.AdminListDeliveries)
		staff.GET("/settings", h.GetSettings)
	}

	// ADMIN routes
	v1.POST("/clients", rbac.RequireAnyRole(rbac.RoleAdmin), h.RegisterClient)

	admin := v1.Group("/admin")
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.PUT("/orders/:order_id/amount", h.EditOrderAmount)
		admin.POST("/orders/:order_id/confirm", h.ConfirmOrder)
		admin.POST("/orders/:order_id/reject", h.RejectOrder)
		admin.POST("/orders/:order_id/reconcile", h.ReconcileOrder)

		admin.POST("/wallets/:client_id/adjust", h.AdjustWallet)
		admin.PUT("/referrals/:client_id/status", h.UpdateReferralStatus)

		admin.POST("/webhooks/trigger", h.TriggerWebhookEvent)
		admin.POST("/webhooks/:webhook_id/reactivate", h.ReactivateWebhook)

		admin.PUT("/settings", h.UpdateSettings)
	}
}
