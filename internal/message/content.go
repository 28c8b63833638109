package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/cipherlog/internal/protocol"
)

var (
	ErrInvalidContent  = errors.New("invalid message content")
	ErrWrongKind       = errors.New("content has a different kind")
	ErrPayloadTooLarge = errors.New("content exceeds maximum payload size")
)

// Kind tags the variant held by a Content.
type Kind string

const (
	KindText             Kind = "text"
	KindImage            Kind = "image"
	KindLocation         Kind = "location"
	KindReceipt          Kind = "receipt"
	KindTyping           Kind = "typing"
	KindGroupCreation    Kind = "group_creation"
	KindGroupSetTitle    Kind = "group_set_title"
	KindGroupSetImage    Kind = "group_set_image"
	KindGroupLeave       Kind = "group_leave"
	KindGroupSyncRequest Kind = "group_sync_request"
)

// Control reports whether the kind is a receipt or typing notification.
// Those never show up in a conversation's visible log.
func (k Kind) Control() bool {
	return k == KindReceipt || k == KindTyping
}

// GroupControl reports whether the kind manages group state.
func (k Kind) GroupControl() bool {
	switch k {
	case KindGroupCreation, KindGroupSetTitle, KindGroupSetImage, KindGroupLeave, KindGroupSyncRequest:
		return true
	}
	return false
}

// HasMedia reports whether content of this kind carries a binary attachment.
func (k Kind) HasMedia() bool {
	return k == KindImage || k == KindGroupSetImage
}

// Signature returns the wire content type byte for the kind in the given scope.
func (k Kind) Signature(group bool) (byte, bool) {
	switch k {
	case KindText:
		if group {
			return protocol.SignatureGroupText, true
		}
		return protocol.SignatureContactText, true
	case KindImage:
		if group {
			return protocol.SignatureGroupPicture, true
		}
		return protocol.SignatureContactPicture, true
	case KindLocation:
		if group {
			return protocol.SignatureGroupLocation, true
		}
		return protocol.SignatureContactLocation, true
	case KindReceipt:
		return protocol.SignatureReceipt, !group
	case KindTyping:
		return protocol.SignatureTyping, !group
	case KindGroupCreation:
		return protocol.SignatureGroupCreation, group
	case KindGroupSetTitle:
		return protocol.SignatureGroupTitle, group
	case KindGroupSetImage:
		return protocol.SignatureGroupPhoto, group
	case KindGroupLeave:
		return protocol.SignatureGroupLeave, group
	case KindGroupSyncRequest:
		return protocol.SignatureGroupSyncRequest, group
	}
	return 0, false
}

// ReceiptType is the acknowledgement carried by a receipt.
type ReceiptType byte

const (
	ReceiptReceived ReceiptType = ReceiptType(protocol.ReceiptTypeReceived)
	ReceiptSeen     ReceiptType = ReceiptType(protocol.ReceiptTypeSeen)
	ReceiptAgree    ReceiptType = ReceiptType(protocol.ReceiptTypeAgree)
	ReceiptDisagree ReceiptType = ReceiptType(protocol.ReceiptTypeDisagree)
)

// Status is the delivery status the referenced message moves to.
func (r ReceiptType) Status() (Status, bool) {
	switch r {
	case ReceiptReceived:
		return StatusDelivered, true
	case ReceiptSeen:
		return StatusSeen, true
	case ReceiptAgree:
		return StatusAgreed, true
	case ReceiptDisagree:
		return StatusDisagreed, true
	}
	return "", false
}

// TypingState is carried by a typing notification.
type TypingState byte

const (
	TypingStopped TypingState = TypingState(protocol.TypingTypeStopped)
	TypingStarted TypingState = TypingState(protocol.TypingTypeTyping)
)

// Content is the payload of a message. Exactly one group of fields is
// meaningful, selected by Kind.
type Content struct {
	Kind     Kind                 `json:"kind"`
	Text     string               `json:"text,omitempty"`
	Caption  string               `json:"caption,omitempty"`
	Title    string               `json:"title,omitempty"`
	Image    []byte               `json:"-"`
	MediaID  string               `json:"media,omitempty"`
	Location *protocol.Location   `json:"location,omitempty"`
	Receipt  ReceiptType          `json:"receipt,omitempty"`
	Referred protocol.MessageID   `json:"referred,omitempty"`
	Typing   TypingState          `json:"typing,omitempty"`
	Members  []protocol.ContactID `json:"members,omitempty"`
}

func Text(s string) Content { return Content{Kind: KindText, Text: s} }

func Image(data []byte, caption string) Content {
	return Content{Kind: KindImage, Image: data, Caption: caption}
}

func Location(loc protocol.Location) Content { return Content{Kind: KindLocation, Location: &loc} }

func Receipt(t ReceiptType, referred protocol.MessageID) Content {
	return Content{Kind: KindReceipt, Receipt: t, Referred: referred}
}

func Typing(s TypingState) Content { return Content{Kind: KindTyping, Typing: s} }

func GroupCreation(members []protocol.ContactID) Content {
	return Content{Kind: KindGroupCreation, Members: members}
}

func GroupSetTitle(title string) Content { return Content{Kind: KindGroupSetTitle, Title: title} }

func GroupSetImage(data []byte) Content { return Content{Kind: KindGroupSetImage, Image: data} }

func GroupLeave() Content { return Content{Kind: KindGroupLeave} }

func GroupSyncRequest() Content { return Content{Kind: KindGroupSyncRequest} }

// HasMedia reports whether the content carries a binary attachment.
func (c Content) HasMedia() bool { return c.Kind.HasMedia() }

// Validate checks that the content is well formed and allowed in a contact
// (group == false) or group conversation.
func (c Content) Validate(group bool) error {
	if _, ok := c.Kind.Signature(group); !ok {
		scope := "contact"
		if group {
			scope = "group"
		}
		return fmt.Errorf("%w: %s not allowed in %s conversation", ErrInvalidContent, c.Kind, scope)
	}
	switch c.Kind {
	case KindText:
		return checkPayload(c.Text)
	case KindImage:
		return checkPayload(c.Caption)
	case KindGroupSetTitle:
		return checkPayload(c.Title)
	case KindLocation:
		if c.Location == nil {
			return fmt.Errorf("%w: location missing", ErrInvalidContent)
		}
		return checkPayload(c.Location.Address + c.Location.Description)
	case KindReceipt:
		if _, ok := c.Receipt.Status(); !ok {
			return fmt.Errorf("%w: receipt type %d", ErrInvalidContent, c.Receipt)
		}
	case KindTyping:
		if c.Typing != TypingStopped && c.Typing != TypingStarted {
			return fmt.Errorf("%w: typing state %d", ErrInvalidContent, c.Typing)
		}
	case KindGroupCreation:
		if len(c.Members)*protocol.IdentityLength > protocol.MaxContentPayloadLength {
			return ErrPayloadTooLarge
		}
	}
	return nil
}

func checkPayload(s string) error {
	if !protocol.FitsPayload(len(s)) {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(s))
	}
	return nil
}

// Encode serializes the content without its media bytes.
func (c Content) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeContent is the inverse of Encode.
func DecodeContent(data []byte) (Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return Content{}, fmt.Errorf("decode content: %w", err)
	}
	return c, nil
}

// AsText returns the body of a text message.
func (c Content) AsText() (string, error) {
	if c.Kind != KindText {
		return "", fmt.Errorf("%w: %s", ErrWrongKind, c.Kind)
	}
	return c.Text, nil
}

// AsImage returns the image bytes and caption.
func (c Content) AsImage() ([]byte, string, error) {
	if c.Kind != KindImage {
		return nil, "", fmt.Errorf("%w: %s", ErrWrongKind, c.Kind)
	}
	return c.Image, c.Caption, nil
}

// AsLocation returns the shared location.
func (c Content) AsLocation() (protocol.Location, error) {
	if c.Kind != KindLocation || c.Location == nil {
		return protocol.Location{}, fmt.Errorf("%w: %s", ErrWrongKind, c.Kind)
	}
	return *c.Location, nil
}

// Preview is a short human readable rendering used by listings.
func (c Content) Preview() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindImage:
		if c.Caption != "" {
			return "[image] " + c.Caption
		}
		return "[image]"
	case KindLocation:
		if c.Location != nil && c.Location.Description != "" {
			return "[location] " + c.Location.Description
		}
		return "[location]"
	case KindGroupCreation:
		return fmt.Sprintf("[group created, %d members]", len(c.Members))
	case KindGroupSetTitle:
		return "[title] " + c.Title
	case KindGroupSetImage:
		return "[group image changed]"
	case KindGroupLeave:
		return "[left group]"
	case KindGroupSyncRequest:
		return "[sync request]"
	case KindReceipt:
		return fmt.Sprintf("[receipt %d for %s]", c.Receipt, c.Referred)
	case KindTyping:
		return "[typing]"
	}
	return ""
}
