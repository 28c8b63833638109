// Package message defines the value objects handed out by the store:
// conversations, message contents and their delivery status.
package message

import (
	"time"

	"github.com/matheus3301/cipherlog/internal/protocol"
)

// Message is an immutable snapshot of one entry of a conversation log.
type Message struct {
	Conversation Conversation
	ID           protocol.MessageID
	UUID         string
	Sender       protocol.ContactID
	Outgoing     bool
	Status       Status
	CreatedAt    time.Time
	SentAt       time.Time
	ReceivedAt   time.Time
	SeenAt       time.Time
	ModifiedAt   time.Time
	Content      Content
}
