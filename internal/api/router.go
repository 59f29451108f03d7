package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register wires all routes onto the Echo instance.
func Register(e *echo.Echo, conv *ConversationHandler, webhook *WebhookHandler, ws *WSHandler, gatherer prometheus.Gatherer) {
	apiGroup := e.Group("/api")
	apiGroup.GET("/conversations", conv.List)
	apiGroup.GET("/conversations/:waId/messages", conv.Messages)
	apiGroup.GET("/conversations/:waId/info", conv.Info)
	apiGroup.POST("/conversations/:waId/messages", conv.Send)
	apiGroup.PUT("/conversations/:waId/mark-read", conv.MarkRead)
	apiGroup.POST("/webhook", webhook.Receive)
	apiGroup.GET("/health", conv.Health)

	e.GET("/ws", ws.Serve)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
