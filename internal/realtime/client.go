package realtime

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// controlFrame is what viewers send to manage their subscriptions:
// {"action":"join","waId":"..."} or {"action":"join","waIds":[...]} or
// {"action":"leave","waId":"..."}.
type controlFrame struct {
	Action string   `json:"action"`
	WaID   string   `json:"waId"`
	WaIDs  []string `json:"waIds"`
}

// Client is one WebSocket viewer connection. The rooms set is owned by
// the hub loop; the pumps never touch it.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:  conn,
		send:  make(chan []byte, 64),
		rooms: make(map[string]bool),
	}
}

// ReadPump consumes subscription control frames until the connection
// closes, then discards the client's subscriptions.
func (c *Client) ReadPump(h *Hub) {
	defer func() {
		h.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("viewer read error", zap.Error(err))
			}
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Warn("invalid control frame", zap.Error(err))
			continue
		}

		waIDs := frame.WaIDs
		if frame.WaID != "" {
			waIDs = append(waIDs, frame.WaID)
		}
		switch frame.Action {
		case "join":
			h.Join(c, waIDs...)
		case "leave":
			if frame.WaID != "" {
				h.Leave(c, frame.WaID)
			}
		default:
			h.logger.Warn("unknown control action", zap.String("action", frame.Action))
		}
	}
}

// WritePump forwards hub frames to the connection until the hub closes
// the send channel.
func (c *Client) WritePump() {
	defer func() { _ = c.conn.Close() }()

	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
