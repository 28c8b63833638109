package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidContactID = errors.New("invalid contact id")
	ErrInvalidGroupID   = errors.New("invalid group id")
	ErrInvalidMessageID = errors.New("invalid message id")
)

var contactIDRegexp = regexp.MustCompile(`^[0-9A-Z*][0-9A-Z]{7}$`)

// ContactID is the eight character identity of an account.
type ContactID string

// ParseContactID validates s and returns it as a ContactID.
func ParseContactID(s string) (ContactID, error) {
	if !contactIDRegexp.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidContactID, s)
	}
	return ContactID(s), nil
}

func (c ContactID) String() string { return string(c) }

// GroupID identifies a group by its creator and the creator-assigned sequence number.
type GroupID struct {
	Creator ContactID
	Seq     uint64
}

// String renders the id as CREATOR:hexseq.
func (g GroupID) String() string {
	return fmt.Sprintf("%s:%016x", g.Creator, g.Seq)
}

// ParseGroupID parses the form produced by GroupID.String.
func ParseGroupID(s string) (GroupID, error) {
	creator, seq, ok := strings.Cut(s, ":")
	if !ok {
		return GroupID{}, fmt.Errorf("%w: %q", ErrInvalidGroupID, s)
	}
	c, err := ParseContactID(creator)
	if err != nil {
		return GroupID{}, fmt.Errorf("%w: %q", ErrInvalidGroupID, s)
	}
	n, err := strconv.ParseUint(seq, 16, 64)
	if err != nil {
		return GroupID{}, fmt.Errorf("%w: %q", ErrInvalidGroupID, s)
	}
	return GroupID{Creator: c, Seq: n}, nil
}

// MessageID is unique within one conversation.
type MessageID uint64

func (m MessageID) String() string {
	return fmt.Sprintf("%016x", uint64(m))
}

// ParseMessageID parses a hex message id.
func ParseMessageID(s string) (MessageID, error) {
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
	}
	return MessageID(n), nil
}
