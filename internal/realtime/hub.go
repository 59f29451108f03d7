// Package realtime fans out store mutations to connected WebSocket
// viewers with conversation-scoped delivery.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rlopes/wview/internal/bus"
	"github.com/rlopes/wview/internal/metrics"
	"github.com/rlopes/wview/internal/store"
	"go.uber.org/zap"
)

// Wire event names, matching what the web client listens for.
const (
	EventNewMessage           = "new-message"
	EventConversationsUpdated = "conversations-updated"
	EventMessagesRead         = "messages-read"
)

// Envelope is the frame pushed to viewers.
type Envelope struct {
	Event     string       `json:"event"`
	WaID      string       `json:"waId,omitempty"`
	Message   *messageView `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type messageView struct {
	MessageID   string `json:"messageId"`
	MessageBody string `json:"messageBody"`
	MessageType string `json:"messageType"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
	UserName    string `json:"userName"`
}

type command struct {
	client *Client
	action string
	waIDs  []string
}

// Hub owns all viewer connections and their room membership. A single
// run-loop goroutine mutates the maps, which also serializes delivery so
// events reach each subscriber in publish order.
type Hub struct {
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	register   chan *Client
	unregister chan *Client
	commands   chan command

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	cancel context.CancelFunc
}

// NewHub creates a hub wired to the event bus.
func NewHub(b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		bus:        b,
		metrics:    m,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan command),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Start subscribes to conversation events and runs the hub loop.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("conversation", 256)

	go func() {
		defer unsub()
		for {
			select {
			case c := <-h.register:
				h.addClient(c)
			case c := <-h.unregister:
				h.removeClient(c)
			case cmd := <-h.commands:
				h.applyCommand(cmd)
			case evt := <-ch:
				h.route(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the hub loop.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Register adds a connected viewer.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister drops a viewer and its entire subscription set.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Join subscribes the viewer to one or more conversations (idempotent).
func (h *Hub) Join(c *Client, waIDs ...string) {
	h.commands <- command{client: c, action: "join", waIDs: waIDs}
}

// Leave unsubscribes the viewer from a conversation (idempotent).
func (h *Hub) Leave(c *Client, waID string) {
	h.commands <- command{client: c, action: "leave", waIDs: []string{waID}}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c] = true
	h.metrics.ConnectedViewers.Inc()
	h.logger.Info("viewer connected")
}

func (h *Hub) removeClient(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for waID := range c.rooms {
		delete(h.rooms[waID], c)
		if len(h.rooms[waID]) == 0 {
			delete(h.rooms, waID)
		}
	}
	close(c.send)
	h.metrics.ConnectedViewers.Dec()
	h.logger.Info("viewer disconnected")
}

func (h *Hub) applyCommand(cmd command) {
	if !h.clients[cmd.client] {
		return
	}
	switch cmd.action {
	case "join":
		for _, waID := range cmd.waIDs {
			if waID == "" {
				continue
			}
			if h.rooms[waID] == nil {
				h.rooms[waID] = make(map[*Client]bool)
			}
			h.rooms[waID][cmd.client] = true
			cmd.client.rooms[waID] = true
		}
	case "leave":
		for _, waID := range cmd.waIDs {
			delete(h.rooms[waID], cmd.client)
			if len(h.rooms[waID]) == 0 {
				delete(h.rooms, waID)
			}
			delete(cmd.client.rooms, waID)
		}
	}
}

func (h *Hub) route(evt bus.Event) {
	switch evt.Kind {
	case bus.KindNewMessage:
		payload, ok := evt.Payload.(bus.NewMessagePayload)
		if !ok {
			return
		}
		h.sendToRoom(payload.WaID, Envelope{
			Event:     EventNewMessage,
			WaID:      payload.WaID,
			Message:   toMessageView(payload.Message),
			Timestamp: evt.Timestamp,
		})
	case bus.KindMessagesRead:
		payload, ok := evt.Payload.(bus.MessagesReadPayload)
		if !ok {
			return
		}
		h.sendToRoom(payload.WaID, Envelope{
			Event:     EventMessagesRead,
			WaID:      payload.WaID,
			Timestamp: evt.Timestamp,
		})
	case bus.KindConversationsUpdated:
		h.broadcast(Envelope{
			Event:     EventConversationsUpdated,
			Timestamp: evt.Timestamp,
		})
	}
}

func (h *Hub) sendToRoom(waID string, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err))
		return
	}
	for c := range h.rooms[waID] {
		h.deliver(c, frame)
	}
}

func (h *Hub) broadcast(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err))
		return
	}
	for c := range h.clients {
		h.deliver(c, frame)
	}
}

// deliver is fire-and-forget: a viewer that cannot keep up is dropped
// rather than replayed to.
func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("dropping slow viewer")
		h.removeClient(c)
	}
}

func toMessageView(m *store.Message) *messageView {
	if m == nil {
		return nil
	}
	return &messageView{
		MessageID:   m.MsgID,
		MessageBody: m.Body,
		MessageType: m.MessageType,
		Direction:   m.Direction,
		Status:      m.Status,
		Timestamp:   m.Timestamp,
		UserName:    m.UserName,
	}
}
