package message

import "time"

// DefaultChannel is the channel used when a caller does not name one.
const DefaultChannel = "public"

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderAgent SenderType = "agent"
	SenderHuman SenderType = "human"
)

// Valid reports whether the sender type is one of the known values.
func (t SenderType) Valid() bool {
	return t == SenderAgent || t == SenderHuman
}

// Message is one entry in the durable channel log. The id and timestamp are
// assigned by the store at append time and are authoritative for ordering;
// two messages may share a timestamp, so clients syncing incrementally must
// track (timestamp, id) pairs rather than the timestamp alone.
type Message struct {
	ID         int64      `json:"id"`
	Sender     string     `json:"sender"`
	SenderType SenderType `json:"senderType"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	Channel    string     `json:"channel"`
}
