package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/http/middleware"
)

func NewRouter(h *OrderHandler, wh *WebhookHandler, th *TokenHandler, authz *middleware.Authz, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.MetricsMiddleware(), middleware.Logging(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/v1/token", th.IssueToken)

	// Provider callbacks authenticate with their own signatures, not JWTs.
	r.POST("/v1/webhooks/:tenant/:provider", wh.Receive)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", authz.Require("orders.write"), h.CreateOrder)
		v1.GET("/orders/:id", authz.Require("orders.read"), h.GetOrder)

		v1.POST("/orders/:id/accept", authz.Require("orders.manage"), h.AcceptOrder)
		v1.POST("/orders/:id/reject", authz.Require("orders.manage"), h.RejectOrder)
		v1.PUT("/orders/:id/status", authz.Require("orders.manage"), h.AdvanceStatus)
		v1.PUT("/orders/:id/cancel", authz.Require("orders.manage"), h.CancelOrder)
	}

	return r
}
