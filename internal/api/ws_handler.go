package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rlopes/wview/internal/realtime"
	"go.uber.org/zap"
)

// WSHandler upgrades viewer connections into the realtime hub.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates the WebSocket endpoint handler. An empty
// allowedOrigin accepts any origin.
func NewWSHandler(hub *realtime.Hub, allowedOrigin string, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		logger: logger,
	}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	client := realtime.NewClient(conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.hub)

	return nil
}
