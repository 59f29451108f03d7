package bus

import (
	"time"

	"github.com/rlopes/wview/internal/store"
)

// Event kinds published after store mutations. They share the
// "conversation" prefix so the realtime hub can watch all of them with a
// single subscription.
const (
	KindNewMessage           = "conversation.new_message"
	KindMessagesRead         = "conversation.messages_read"
	KindConversationsUpdated = "conversations.updated"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewMessagePayload accompanies KindNewMessage.
type NewMessagePayload struct {
	WaID    string
	Message *store.Message
}

// MessagesReadPayload accompanies KindMessagesRead.
type MessagesReadPayload struct {
	WaID  string
	Count int64
}
