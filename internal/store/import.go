package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"go.uber.org/zap"
)

// ImportedMessage is a message restored from an earlier installation. Its id
// and timestamps are kept as they were.
type ImportedMessage struct {
	ID         protocol.MessageID
	// Sender is only read for incoming group messages.
	Sender     protocol.ContactID
	Outgoing   bool
	Status     message.Status
	CreatedAt  time.Time
	SentAt     time.Time
	ReceivedAt time.Time
	SeenAt     time.Time
	Content    message.Content
}

// ContactMessageRecord is an imported message of a contact conversation.
type ContactMessageRecord struct {
	Contact protocol.ContactID
	ImportedMessage
}

// GroupMessageRecord is an imported message of a group conversation.
type GroupMessageRecord struct {
	Group protocol.GroupID
	ImportedMessage
}

// MediaItemRecord attaches data to an imported image message.
type MediaItemRecord struct {
	Conversation message.Conversation
	MessageID    protocol.MessageID
	Data         []byte
}

// GroupRecord is a group restored from an earlier installation. Deleted
// marks a group that was left before the backup was taken.
type GroupRecord struct {
	ID           protocol.GroupID
	Title        string
	Description  string
	Members      []protocol.ContactID
	CreatedAt    time.Time
	Deleted      bool
	AwaitingSync bool
}

// ImportResult counts what a batch did. Records whose id is already taken
// are skipped.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportGroups restores group records. Groups that are already known are
// skipped so that newer local state wins. The creator and every member must
// be known contacts.
func (db *DB) ImportGroups(ctx context.Context, records []GroupRecord) (ImportResult, error) {
	return db.importBatch(ctx, "groups", len(records), func(ctx context.Context, tx dbx.DBTX, i int) (bool, error) {
		return db.importGroup(ctx, tx, records[i])
	})
}

// ImportContactMessages writes a batch of restored contact messages in a
// single transaction. The first invalid record aborts the whole batch.
// Imports publish no per-message events.
func (db *DB) ImportContactMessages(ctx context.Context, records []ContactMessageRecord) (ImportResult, error) {
	return db.importBatch(ctx, "contact", len(records), func(ctx context.Context, tx dbx.DBTX, i int) (bool, error) {
		rec := records[i]
		return db.importMessage(ctx, tx, message.WithContact(rec.Contact), rec.ImportedMessage)
	})
}

// ImportGroupMessages is ImportContactMessages for group conversations.
// Groups must already exist, deleted ones included.
func (db *DB) ImportGroupMessages(ctx context.Context, records []GroupMessageRecord) (ImportResult, error) {
	return db.importBatch(ctx, "group", len(records), func(ctx context.Context, tx dbx.DBTX, i int) (bool, error) {
		rec := records[i]
		return db.importMessage(ctx, tx, message.InGroup(rec.Group), rec.ImportedMessage)
	})
}

// ImportMediaItems attaches blobs to messages imported earlier. Replacing an
// attachment drops the previous blob.
func (db *DB) ImportMediaItems(ctx context.Context, records []MediaItemRecord) (ImportResult, error) {
	return db.importBatch(ctx, "media", len(records), func(ctx context.Context, tx dbx.DBTX, i int) (bool, error) {
		return db.importMedia(ctx, tx, records[i])
	})
}

func (db *DB) importBatch(ctx context.Context, kind string, n int, fn func(ctx context.Context, tx dbx.DBTX, i int) (bool, error)) (ImportResult, error) {
	var res ImportResult
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		res = ImportResult{}
		for i := 0; i < n; i++ {
			ok, err := fn(ctx, tx, i)
			if err != nil {
				return &ImportError{Index: i, Err: err}
			}
			if ok {
				res.Imported++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	db.logger.Info("import batch written",
		zap.String("kind", kind),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (db *DB) importMessage(ctx context.Context, tx dbx.DBTX, conv message.Conversation, m ImportedMessage) (bool, error) {
	if err := m.Content.Validate(conv.IsGroup()); err != nil {
		return false, err
	}
	if _, err := requireConversation(ctx, tx, conv, false); err != nil {
		return false, err
	}

	sender := m.Sender
	switch {
	case m.Outgoing:
		sender = db.SelfContact()
	case !conv.IsGroup():
		sender = conv.Contact()
	case sender == "":
		return false, fmt.Errorf("%w: incoming group message without sender", ErrInvalidContent)
	default:
		if err := requireContacts(ctx, tx, sender); err != nil {
			return false, participantErr(err)
		}
	}

	dup, err := messageExists(ctx, tx, conv, m.ID)
	if err != nil || dup {
		return false, err
	}

	st := m.Status
	if st == "" {
		st = message.StatusReceived
		if m.Outgoing {
			st = message.StatusSent
		}
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = db.now()
	}
	r := record{
		conv: conv, id: m.ID, sender: sender, outgoing: m.Outgoing, status: st,
		createdAt: created, sentAt: m.SentAt, receivedAt: m.ReceivedAt, seenAt: m.SeenAt, content: m.Content,
	}
	if err := db.insertRecord(ctx, tx, &r); err != nil {
		return false, err
	}
	if m.Outgoing {
		// Restored sent history continues the local sequence.
		last, ok, err := lastSentID(ctx, tx, conv)
		if err != nil {
			return false, err
		}
		if !ok || m.ID > last {
			if err := setLastSentID(ctx, tx, conv, m.ID); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (db *DB) importGroup(ctx context.Context, tx dbx.DBTX, rec GroupRecord) (bool, error) {
	_, err := loadGroup(ctx, tx, rec.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUnknownGroup) {
		return false, err
	}
	if err := requireContacts(ctx, tx, rec.ID.Creator); err != nil {
		return false, participantErr(err)
	}
	if err := requireContacts(ctx, tx, rec.Members...); err != nil {
		return false, participantErr(err)
	}

	g := &Group{ID: rec.ID, Title: rec.Title, Description: rec.Description, CreatedAt: rec.CreatedAt}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = db.now()
	}
	db.setMembers(g, rec.Members, rec.AwaitingSync)
	if rec.Deleted {
		g.Deleted = true
		g.AwaitingSync = false
	}
	if err := saveGroup(ctx, tx, g); err != nil {
		return false, err
	}
	return true, nil
}

func (db *DB) importMedia(ctx context.Context, tx dbx.DBTX, rec MediaItemRecord) (bool, error) {
	if len(rec.Data) == 0 {
		return false, fmt.Errorf("%w: empty media item", ErrInvalidContent)
	}
	table := visibleTable(rec.Conversation)
	where, args := convWhere(rec.Conversation)
	args = append(args, sqlID(rec.MessageID))

	var (
		kind string
		old  sql.NullString
	)
	err := tx.QueryRowContext(ctx, `SELECT kind, media_id FROM `+table+` WHERE `+where+` AND message_id = ?`, args...).
		Scan(&kind, &old)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s in %s", ErrUnknownMessage, rec.MessageID, rec.Conversation)
	}
	if err != nil {
		return false, storageErr("read media target", err)
	}
	if !message.Kind(kind).HasMedia() {
		return false, fmt.Errorf("%w: %s message carries no media", ErrInvalidContent, kind)
	}

	id, err := db.putMedia(ctx, tx, rec.Data)
	if err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET media_id = ? WHERE `+where+` AND message_id = ?`,
		append([]any{id}, args...)...)
	if err != nil {
		return false, storageErr("attach media", err)
	}
	if old.Valid {
		if err := removeMedia(ctx, tx, old.String); err != nil && !errors.Is(err, ErrUnknownBlob) {
			return false, err
		}
	}
	return true, nil
}
