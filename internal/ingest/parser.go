package ingest

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rlopes/wview/internal/errs"
	"github.com/rlopes/wview/internal/store"
)

// Webhook payload envelope: metaData.entry[0].changes[0].value carries
// either a message event (messages + contacts) or a status event
// (statuses).
type payloadEnvelope struct {
	MetaData struct {
		Entry []struct {
			Changes []struct {
				Value changeValue `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	} `json:"metaData"`
}

type changeValue struct {
	Metadata struct {
		PhoneNumberID      string `json:"phone_number_id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
	Statuses []struct {
		ID        string `json:"id"`
		MetaMsgID string `json:"meta_msg_id"`
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	} `json:"statuses"`
}

// ParsedMessage is a normalized inbound message ready for ingestion.
type ParsedMessage struct {
	MsgID         string
	WaID          string
	UserName      string
	MessageType   string
	Body          string
	Timestamp     time.Time
	PhoneNumberID string
	DisplayPhone  string
}

// ParsedStatus is a normalized status-change event.
type ParsedStatus struct {
	// CandidateIDs are matched against both msg_id and meta_msg_id; the
	// identifier spaces may collide, see the store uniqueness test.
	CandidateIDs []string
	Status       string
	Timestamp    time.Time
}

// Parsed is the result of normalizing one webhook payload. Exactly one
// of Message and Status is set.
type Parsed struct {
	Message *ParsedMessage
	Status  *ParsedStatus
}

var knownMessageTypes = map[string]bool{
	"text":     true,
	"image":    true,
	"document": true,
	"audio":    true,
	"video":    true,
}

// ParsePayload normalizes one raw webhook payload. Structural violations
// produce a MalformedPayload error; the caller logs and skips them.
func ParsePayload(raw []byte) (*Parsed, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.MalformedPayload("payload is not valid JSON")
	}
	if len(env.MetaData.Entry) == 0 || len(env.MetaData.Entry[0].Changes) == 0 {
		return nil, errs.MalformedPayload("payload has no entry changes")
	}
	value := env.MetaData.Entry[0].Changes[0].Value

	switch {
	case len(value.Messages) > 0:
		msg, err := parseMessage(value)
		if err != nil {
			return nil, err
		}
		return &Parsed{Message: msg}, nil
	case len(value.Statuses) > 0:
		st, err := parseStatus(value)
		if err != nil {
			return nil, err
		}
		return &Parsed{Status: st}, nil
	default:
		return nil, errs.MalformedPayload("payload carries neither messages nor statuses")
	}
}

func parseMessage(value changeValue) (*ParsedMessage, error) {
	msg := value.Messages[0]
	if len(value.Contacts) == 0 {
		return nil, errs.MalformedPayload("message payload has no contacts")
	}
	contact := value.Contacts[0]

	if msg.ID == "" || msg.From == "" {
		return nil, errs.MalformedPayload("message payload is missing id or sender")
	}
	msgType := msg.Type
	if msgType == "" {
		msgType = "text"
	}
	if !knownMessageTypes[msgType] {
		return nil, errs.MalformedPayload("unknown message type " + msgType)
	}
	ts, err := parseEpoch(msg.Timestamp)
	if err != nil {
		return nil, err
	}

	body := ""
	if msg.Text != nil {
		body = msg.Text.Body
	}

	return &ParsedMessage{
		MsgID:         msg.ID,
		WaID:          msg.From,
		UserName:      contact.Profile.Name,
		MessageType:   msgType,
		Body:          body,
		Timestamp:     ts,
		PhoneNumberID: value.Metadata.PhoneNumberID,
		DisplayPhone:  value.Metadata.DisplayPhoneNumber,
	}, nil
}

func parseStatus(value changeValue) (*ParsedStatus, error) {
	st := value.Statuses[0]
	if st.ID == "" && st.MetaMsgID == "" {
		return nil, errs.MalformedPayload("status payload has no identifiers")
	}
	if st.Status == "" {
		return nil, errs.MalformedPayload("status payload is missing the status value")
	}
	ts, err := parseEpoch(st.Timestamp)
	if err != nil {
		return nil, err
	}
	return &ParsedStatus{
		CandidateIDs: []string{st.ID, st.MetaMsgID},
		Status:       st.Status,
		Timestamp:    ts,
	}, nil
}

// parseEpoch converts the platform's seconds-since-epoch string.
func parseEpoch(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, errs.MalformedPayload("timestamp is not epoch seconds")
	}
	return time.Unix(sec, 0), nil
}

// ToStoreMessage converts a ParsedMessage into a store.Message with
// incoming direction and initial sent status.
func (p *ParsedMessage) ToStoreMessage() *store.Message {
	return &store.Message{
		MsgID:         p.MsgID,
		MetaMsgID:     p.MsgID,
		WaID:          p.WaID,
		UserName:      p.UserName,
		MessageType:   p.MessageType,
		Body:          p.Body,
		Direction:     store.DirectionIncoming,
		Status:        store.StatusSent,
		Timestamp:     p.Timestamp.UnixMilli(),
		PhoneNumberID: p.PhoneNumberID,
		DisplayPhone:  p.DisplayPhone,
	}
}
