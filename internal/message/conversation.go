package message

import (
	"strings"

	"github.com/matheus3301/cipherlog/internal/protocol"
)

// Conversation is either a one-to-one chat with a contact or a group chat.
// It is comparable and can be used as a map key.
type Conversation struct {
	group   bool
	contact protocol.ContactID
	groupID protocol.GroupID
}

// WithContact returns the conversation with a single contact.
func WithContact(id protocol.ContactID) Conversation {
	return Conversation{contact: id}
}

// InGroup returns the conversation of a group.
func InGroup(id protocol.GroupID) Conversation {
	return Conversation{group: true, groupID: id}
}

func (c Conversation) IsGroup() bool { return c.group }
func (c Conversation) Contact() protocol.ContactID { return c.contact }
func (c Conversation) Group() protocol.GroupID { return c.groupID }

func (c Conversation) String() string {
	if c.group {
		return c.groupID.String()
	}
	return c.contact.String()
}

// ParseConversation accepts either a contact id or a group id as printed by String.
func ParseConversation(s string) (Conversation, error) {
	if strings.Contains(s, ":") {
		g, err := protocol.ParseGroupID(s)
		if err != nil {
			return Conversation{}, err
		}
		return InGroup(g), nil
	}
	id, err := protocol.ParseContactID(s)
	if err != nil {
		return Conversation{}, err
	}
	return WithContact(id), nil
}
