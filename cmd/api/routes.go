package main

import (
	"gamecredit-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", httpapi.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// protected API group
	httpapi.Routes(r, h, authMW)
}
