package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rlopes/wview/internal/errs"
)

const messageColumns = `id, msg_id, meta_msg_id, wa_id, user_name, message_type, body, direction, status, timestamp, status_updated_at, phone_number_id, display_phone`

// statusRank orders statuses for the forward-only transition guard.
// failed ranks above delivered so a failure can still land after sent or
// delivered; read and failed themselves never move again.
const statusRankCase = `CASE %s WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 WHEN 'failed' THEN 4 ELSE 0 END`

// InsertMessage persists m if no message with the same msg_id exists.
// Returns whether the row was inserted and the stored record (the
// pre-existing one on a duplicate). The conflict clause makes the
// lookup-then-write atomic under concurrent calls for the same msg_id.
func (db *DB) InsertMessage(m *Message) (bool, *Message, error) {
	if m.MsgID == "" || m.WaID == "" || m.Body == "" || m.Timestamp == 0 {
		return false, nil, errs.Validation("messageId, waId, body and timestamp are required")
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	if m.Direction == "" {
		m.Direction = DirectionIncoming
	}
	if m.Status == "" {
		m.Status = StatusSent
	}
	now := time.Now().UnixMilli()
	if m.StatusUpdatedAt == 0 {
		m.StatusUpdatedAt = now
	}

	res, err := db.Exec(`
		INSERT INTO messages (msg_id, meta_msg_id, wa_id, user_name, message_type, body, direction, status, timestamp, status_updated_at, phone_number_id, display_phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO NOTHING`,
		m.MsgID, m.MetaMsgID, m.WaID, m.UserName, m.MessageType, m.Body, m.Direction, m.Status, m.Timestamp, m.StatusUpdatedAt, m.PhoneNumberID, m.DisplayPhone, now)
	if err != nil {
		return false, nil, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("insert message: %w", err)
	}

	stored, err := db.GetMessage(m.MsgID)
	if err != nil {
		return false, nil, err
	}
	return n > 0, stored, nil
}

// GetMessage returns the message with the given msg_id, or nil if absent.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// UpdateStatusByIDs applies newStatus to the message whose msg_id or
// meta_msg_id matches one of candidateIDs, but only when the transition
// moves the status forward and the current status is not terminal.
// A missing match or a backward transition is a benign no-op.
//
// The candidate set can match several messages when the msg_id and
// meta_msg_id spaces collide; only the earliest-inserted match is
// touched.
func (db *DB) UpdateStatusByIDs(candidateIDs []string, newStatus string, at time.Time) (bool, error) {
	ids := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, 2*len(ids)+3)
	args = append(args, newStatus, at.UnixMilli())
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, newStatus)

	res, err := db.Exec(fmt.Sprintf(`
		UPDATE messages
		SET status = ?, status_updated_at = ?
		WHERE id = (
			SELECT MIN(id) FROM messages
			WHERE msg_id IN (%s) OR meta_msg_id IN (%s)
		  )
		  AND status NOT IN ('read', 'failed')
		  AND `+statusRankCase+` < `+statusRankCase,
		placeholders, placeholders, "status", "?"), args...)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return n > 0, nil
}

// ListMessages returns every message of a conversation ascending by
// timestamp, ties broken by insertion order.
func (db *DB) ListMessages(waID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE wa_id = ?
		ORDER BY timestamp ASC, id ASC`, waID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MsgID, &m.MetaMsgID, &m.WaID, &m.UserName, &m.MessageType, &m.Body, &m.Direction, &m.Status, &m.Timestamp, &m.StatusUpdatedAt, &m.PhoneNumberID, &m.DisplayPhone); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LatestMessage returns the most recent message of a conversation, or
// nil when the conversation does not exist.
func (db *DB) LatestMessage(waID string) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE wa_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, waID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return m, nil
}

// MarkConversationRead transitions every incoming non-read message of the
// conversation to read, stamping status_updated_at. Returns how many rows
// changed; calling it again immediately returns 0.
func (db *DB) MarkConversationRead(waID string, at time.Time) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages
		SET status = ?, status_updated_at = ?
		WHERE wa_id = ? AND direction = ? AND status != ?`,
		StatusRead, at.UnixMilli(), waID, DirectionIncoming, StatusRead)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.MsgID, &m.MetaMsgID, &m.WaID, &m.UserName, &m.MessageType, &m.Body, &m.Direction, &m.Status, &m.Timestamp, &m.StatusUpdatedAt, &m.PhoneNumberID, &m.DisplayPhone)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
