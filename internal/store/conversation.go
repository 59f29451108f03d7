package store

import (
	"database/sql"
	"fmt"
)

// ListConversations groups the message log by counterparty and derives
// each conversation summary, newest conversation first. The bare
// user_name and body columns resolve to the row supplying MAX(timestamp),
// which SQLite guarantees for a single min/max aggregate.
func (db *DB) ListConversations() ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT wa_id,
			user_name,
			body AS last_message,
			MAX(timestamp) AS last_message_at,
			COUNT(*) AS message_count,
			SUM(CASE WHEN direction = ? AND status != ? THEN 1 ELSE 0 END) AS unread_count
		FROM messages
		GROUP BY wa_id
		ORDER BY last_message_at DESC`, DirectionIncoming, StatusRead)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.WaID, &c.UserName, &c.LastMessage, &c.LastMessageAt, &c.MessageCount, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversationInfo returns the conversation header derived from the
// most recent message, or nil when no message exists for waID. The phone
// number falls back to the counterparty id when the webhook never
// reported a display number.
func (db *DB) GetConversationInfo(waID string) (*ConversationInfo, error) {
	var info ConversationInfo
	err := db.QueryRow(`
		SELECT wa_id, user_name, COALESCE(NULLIF(display_phone, ''), wa_id)
		FROM messages
		WHERE wa_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, waID).
		Scan(&info.WaID, &info.UserName, &info.PhoneNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation info: %w", err)
	}
	return &info, nil
}

// StoreSummary computes store-wide counts: total messages, distinct
// conversations and the status distribution.
func (db *DB) StoreSummary() (*Summary, error) {
	s := &Summary{StatusCounts: make(map[string]int)}

	err := db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT wa_id) FROM messages`).
		Scan(&s.TotalMessages, &s.Conversations)
	if err != nil {
		return nil, fmt.Errorf("summary counts: %w", err)
	}

	rows, err := db.Query(`SELECT status, COUNT(*) FROM messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("summary statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		s.StatusCounts[status] = count
	}
	return s, rows.Err()
}
