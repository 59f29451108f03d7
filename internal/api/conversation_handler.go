// Package api exposes the store and the pipeline over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rlopes/wview/internal/errs"
	"github.com/rlopes/wview/internal/ingest"
	"github.com/rlopes/wview/internal/store"
	"go.uber.org/zap"
)

// ConversationHandler serves the conversation read/write endpoints.
type ConversationHandler struct {
	db       *store.DB
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

// NewConversationHandler creates the handler backed by the store.
func NewConversationHandler(db *store.DB, p *ingest.Pipeline, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{db: db, pipeline: p, logger: logger}
}

type conversationView struct {
	WaID            string `json:"waId"`
	UserName        string `json:"userName"`
	LastMessage     string `json:"lastMessage"`
	LastMessageTime int64  `json:"lastMessageTime"`
	MessageCount    int    `json:"messageCount"`
	UnreadCount     int    `json:"unreadCount"`
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

type sendMessageRequest struct {
	MessageBody string `json:"messageBody"`
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(c echo.Context) error {
	convs, err := h.db.ListConversations()
	if err != nil {
		return h.fail(c, "list conversations", err)
	}
	views := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, conversationView{
			WaID:            conv.WaID,
			UserName:        conv.UserName,
			LastMessage:     conv.LastMessage,
			LastMessageTime: conv.LastMessageAt,
			MessageCount:    conv.MessageCount,
			UnreadCount:     conv.UnreadCount,
		})
	}
	return c.JSON(http.StatusOK, views)
}

// Messages handles GET /api/conversations/:waId/messages.
func (h *ConversationHandler) Messages(c echo.Context) error {
	msgs, err := h.db.ListMessages(c.Param("waId"))
	if err != nil {
		return h.fail(c, "list messages", err)
	}
	views := make([]messageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, toMessageView(&msgs[i]))
	}
	return c.JSON(http.StatusOK, views)
}

// Info handles GET /api/conversations/:waId/info.
func (h *ConversationHandler) Info(c echo.Context) error {
	info, err := h.db.GetConversationInfo(c.Param("waId"))
	if err != nil {
		return h.fail(c, "conversation info", err)
	}
	if info == nil {
		return h.fail(c, "conversation info", errs.NotFound("conversation"))
	}
	return c.JSON(http.StatusOK, map[string]string{
		"waId":        info.WaID,
		"userName":    info.UserName,
		"phoneNumber": info.PhoneNumber,
	})
}

// Send handles POST /api/conversations/:waId/messages.
func (h *ConversationHandler) Send(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, "send message", errs.Validation("invalid request body"))
	}
	msg, err := h.pipeline.SendMessage(c.Param("waId"), req.MessageBody)
	if err != nil {
		return h.fail(c, "send message", err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": toMessageView(msg),
	})
}

// MarkRead handles PUT /api/conversations/:waId/mark-read.
func (h *ConversationHandler) MarkRead(c echo.Context) error {
	count, err := h.pipeline.MarkRead(c.Param("waId"))
	if err != nil {
		return h.fail(c, "mark read", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"updated": count,
	})
}

// Health handles GET /api/health.
func (h *ConversationHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
}

func (h *ConversationHandler) fail(c echo.Context, op string, err error) error {
	var appErr *errs.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		return c.JSON(appErr.Status, map[string]string{"error": appErr.Message})
	}
	h.logger.Error(op, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func toMessageView(m *store.Message) messageView {
	return messageView{
		MessageID:   m.MsgID,
		MessageBody: m.Body,
		MessageType: m.MessageType,
		Direction:   m.Direction,
		Status:      m.Status,
		Timestamp:   m.Timestamp,
		UserName:    m.UserName,
	}
}
