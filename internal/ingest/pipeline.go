// Package ingest normalizes webhook payloads into store operations and
// publishes the resulting domain events.
package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rlopes/wview/internal/bus"
	"github.com/rlopes/wview/internal/errs"
	"github.com/rlopes/wview/internal/metrics"
	"github.com/rlopes/wview/internal/store"
	"go.uber.org/zap"
)

// Pipeline drives all three write paths: inbound message events, status
// events and user-initiated sends.
type Pipeline struct {
	db      *store.DB
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Outcome describes what a single payload did to the store.
type Outcome string

const (
	OutcomeStored          Outcome = "stored"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeStatusApplied   Outcome = "status_applied"
	OutcomeStatusUnmatched Outcome = "status_unmatched"
)

// BatchResult counts the outcome of one webhook batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// New creates a pipeline backed by the store.
func New(db *store.DB, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{db: db, bus: b, metrics: m, logger: logger}
}

// ProcessBatch ingests each payload independently; one malformed payload
// never aborts the rest.
func (p *Pipeline) ProcessBatch(raws []json.RawMessage) BatchResult {
	var result BatchResult
	for _, raw := range raws {
		outcome, err := p.ProcessPayload(raw)
		switch {
		case err == nil && outcome == OutcomeDuplicate:
			result.Duplicate++
		case err == nil:
			result.Processed++
		case errs.Is(err, errs.CodeMalformedPayload), errs.Is(err, errs.CodeValidation):
			p.metrics.PayloadsMalformed.Inc()
			p.logger.Warn("skipping payload", zap.Error(err))
			result.Failed++
		default:
			p.logger.Error("payload processing failed", zap.Error(err))
			result.Failed++
		}
	}
	return result
}

// ProcessPayload normalizes and applies a single webhook payload.
// Duplicate messages and unmatched status updates are logged no-ops.
func (p *Pipeline) ProcessPayload(raw []byte) (Outcome, error) {
	parsed, err := ParsePayload(raw)
	if err != nil {
		return "", err
	}
	if parsed.Message != nil {
		return p.ingestMessage(parsed.Message)
	}
	return p.applyStatus(parsed.Status)
}

func (p *Pipeline) ingestMessage(pm *ParsedMessage) (Outcome, error) {
	inserted, stored, err := p.db.InsertMessage(pm.ToStoreMessage())
	if err != nil {
		return "", err
	}
	if !inserted {
		p.metrics.PayloadsDuplicate.Inc()
		p.logger.Info("message already exists", zap.String("msg_id", pm.MsgID))
		return OutcomeDuplicate, nil
	}
	p.metrics.PayloadsIngested.Inc()
	p.logger.Info("message ingested",
		zap.String("msg_id", stored.MsgID),
		zap.String("wa_id", stored.WaID))
	p.publishNewMessage(stored)
	return OutcomeStored, nil
}

func (p *Pipeline) applyStatus(ps *ParsedStatus) (Outcome, error) {
	updated, err := p.db.UpdateStatusByIDs(ps.CandidateIDs, ps.Status, ps.Timestamp)
	if err != nil {
		return "", err
	}
	if !updated {
		p.logger.Info("no message matched status update",
			zap.Strings("candidate_ids", ps.CandidateIDs),
			zap.String("status", ps.Status))
		return OutcomeStatusUnmatched, nil
	}
	p.metrics.StatusUpdates.Inc()
	// Status changes shift derived unread counts, so viewers refresh
	// their conversation list.
	p.bus.Publish(bus.Event{Kind: bus.KindConversationsUpdated, Timestamp: time.Now()})
	return OutcomeStatusApplied, nil
}

// SendMessage creates an outgoing message in an existing conversation.
// Display name and phone metadata are inherited from the conversation's
// most recent message.
func (p *Pipeline) SendMessage(waID, body string) (*store.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.Validation("message body is required")
	}

	last, err := p.db.LatestMessage(waID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, errs.NotFound("conversation")
	}

	id := uuid.New().String()
	_, stored, err := p.db.InsertMessage(&store.Message{
		MsgID:         id,
		MetaMsgID:     id,
		WaID:          waID,
		UserName:      last.UserName,
		MessageType:   "text",
		Body:          body,
		Direction:     store.DirectionOutgoing,
		Status:        store.StatusSent,
		Timestamp:     time.Now().UnixMilli(),
		PhoneNumberID: last.PhoneNumberID,
		DisplayPhone:  last.DisplayPhone,
	})
	if err != nil {
		return nil, err
	}

	p.metrics.MessagesSent.Inc()
	p.logger.Info("outgoing message created",
		zap.String("msg_id", stored.MsgID),
		zap.String("wa_id", waID))
	p.publishNewMessage(stored)
	return stored, nil
}

// MarkRead transitions all incoming messages of the conversation to read
// and notifies subscribed viewers when anything actually changed.
func (p *Pipeline) MarkRead(waID string) (int64, error) {
	count, err := p.db.MarkConversationRead(waID, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		now := time.Now()
		p.bus.Publish(bus.Event{
			Kind:      bus.KindMessagesRead,
			Timestamp: now,
			Payload:   bus.MessagesReadPayload{WaID: waID, Count: count},
		})
		p.bus.Publish(bus.Event{Kind: bus.KindConversationsUpdated, Timestamp: now})
	}
	return count, nil
}

func (p *Pipeline) publishNewMessage(m *store.Message) {
	now := time.Now()
	p.bus.Publish(bus.Event{
		Kind:      bus.KindNewMessage,
		Timestamp: now,
		Payload:   bus.NewMessagePayload{WaID: m.WaID, Message: m},
	})
	p.bus.Publish(bus.Event{Kind: bus.KindConversationsUpdated, Timestamp: now})
}
