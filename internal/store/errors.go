package store

import (
	"errors"
	"fmt"

	"github.com/matheus3301/cipherlog/internal/message"
)

var (
	ErrUnknownContact                 = errors.New("unknown contact")
	ErrUnknownGroup                   = errors.New("unknown group")
	ErrUnknownConversation            = errors.New("unknown conversation")
	ErrUnknownConversationParticipant = errors.New("unknown conversation participant")
	ErrUnknownMessage                 = errors.New("unknown message")
	ErrUnknownBlob                    = errors.New("unknown media blob")
	ErrUnknownOption                  = errors.New("unknown option")
	ErrReservedOption                 = errors.New("option key is reserved")
	ErrMigrationFailed                = errors.New("migration failed")
	ErrInvalidPasswordOrStore         = errors.New("invalid password or store")
	ErrStorageUnavailable             = errors.New("storage unavailable")
	ErrStoreExists                    = errors.New("store already initialized")
	ErrPublicKeyMismatch              = errors.New("contact is known with a different public key")
	ErrMessageIDsExhausted            = errors.New("conversation has no message ids left")
	ErrMessageIDConflict              = errors.New("message id is already used by a sent message")
	ErrCursorNotPositioned            = errors.New("cursor is not positioned")

	ErrPayloadTooLarge = message.ErrPayloadTooLarge
	ErrInvalidContent  = message.ErrInvalidContent
)

// IncompatibleSchemaError reports a table written by a newer version of the
// code than the one running.
type IncompatibleSchemaError struct {
	Table  string
	Stored int
	Known  int
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("table %s is at schema version %d, this build knows up to %d", e.Table, e.Stored, e.Known)
}

// MigrationFailedError reports a table migration that was rolled back.
type MigrationFailedError struct {
	Table string
	From  int
	To    int
	Err   error
}

func (e *MigrationFailedError) Error() string {
	return fmt.Sprintf("migrate table %s from version %d to %d: %v", e.Table, e.From, e.To, e.Err)
}

func (e *MigrationFailedError) Unwrap() []error {
	return []error{ErrMigrationFailed, e.Err}
}

// ImportError points at the record that aborted a bulk import.
type ImportError struct {
	Index int
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import record %d: %v", e.Index, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func unknownContact(id fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrUnknownContact, id)
}

func unknownGroup(id fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrUnknownGroup, id)
}

// participantErr marks err as a failure to resolve the other side of a conversation.
func participantErr(err error) error {
	return fmt.Errorf("%w: %w", ErrUnknownConversationParticipant, err)
}
