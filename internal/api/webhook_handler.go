package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rlopes/wview/internal/ingest"
	"go.uber.org/zap"
)

// WebhookHandler accepts platform webhook payloads, one or a batch.
// Ingestion is fire-and-forget: per-payload failures are logged and
// counted, never surfaced as an error response.
type WebhookHandler struct {
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

// NewWebhookHandler creates the ingestion endpoint handler.
func NewWebhookHandler(p *ingest.Pipeline, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{pipeline: p, logger: logger}
}

// Receive handles POST /api/webhook. The body is either a single payload
// object or a JSON array of payloads.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Warn("read webhook body", zap.Error(err))
		return c.JSON(http.StatusOK, ingest.BatchResult{})
	}

	result := h.pipeline.ProcessBatch(splitPayloads(body))
	return c.JSON(http.StatusOK, result)
}

func splitPayloads(body []byte) []json.RawMessage {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err == nil {
			return batch
		}
	}
	return []json.RawMessage{body}
}
