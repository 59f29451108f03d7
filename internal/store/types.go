package store

// Message direction relative to the business account.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Delivery statuses. sent, delivered and read form a forward-only
// sequence; read and failed are terminal.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message is one stored webhook or user-sent message.
type Message struct {
	ID              int64
	MsgID           string
	MetaMsgID       string
	WaID            string
	UserName        string
	MessageType     string
	Body            string
	Direction       string
	Status          string
	Timestamp       int64 // unix millis
	StatusUpdatedAt int64 // unix millis
	PhoneNumberID   string
	DisplayPhone    string
}

// Conversation is the derived per-counterparty summary. It is never
// stored; ListConversations recomputes it from messages on every call.
type Conversation struct {
	WaID          string
	UserName      string
	LastMessage   string
	LastMessageAt int64
	MessageCount  int
	UnreadCount   int
}

// ConversationInfo is the header shown for an open conversation, taken
// from the most recent message.
type ConversationInfo struct {
	WaID        string
	UserName    string
	PhoneNumber string
}

// Summary aggregates store-wide counts for the loader's report.
type Summary struct {
	TotalMessages int
	Conversations int
	StatusCounts  map[string]int
}
