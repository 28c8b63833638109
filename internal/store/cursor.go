package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
)

// logReader is the read side of the visible message logs that cursors walk.
type logReader interface {
	hasVisible(ctx context.Context, conv message.Conversation, id protocol.MessageID) (bool, error)
	boundaryID(ctx context.Context, conv message.Conversation, last bool) (protocol.MessageID, bool, error)
	adjacentID(ctx context.Context, conv message.Conversation, from protocol.MessageID, forward bool) (protocol.MessageID, bool, error)
	visibleMessage(ctx context.Context, conv message.Conversation, id protocol.MessageID) (*message.Message, error)
}

// Cursor walks the visible messages of one conversation in id order. A
// cursor reads the store afresh on every move, so it observes messages
// added after it was created.
type Cursor struct {
	log   logReader
	conv  message.Conversation
	pos   protocol.MessageID
	valid bool
}

// MessageCursor returns an unpositioned cursor over conv. Deleted groups can
// still be read.
func (db *DB) MessageCursor(ctx context.Context, conv message.Conversation) (*Cursor, error) {
	_, err := requireConversation(ctx, db.DB, conv, false)
	if errors.Is(err, ErrUnknownContact) || errors.Is(err, ErrUnknownGroup) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, conv)
	}
	if err != nil {
		return nil, err
	}
	return &Cursor{log: db, conv: conv}, nil
}

// Conversation is the conversation the cursor walks.
func (c *Cursor) Conversation() message.Conversation { return c.conv }

// IsValid reports whether the cursor is on a message.
func (c *Cursor) IsValid() bool { return c.valid }

// Position returns the id the cursor is on.
func (c *Cursor) Position() (protocol.MessageID, bool) { return c.pos, c.valid }

// Seek positions the cursor on id. The cursor becomes unpositioned when the
// conversation has no visible message with that id.
func (c *Cursor) Seek(ctx context.Context, id protocol.MessageID) (bool, error) {
	ok, err := c.log.hasVisible(ctx, c.conv, id)
	if err != nil {
		return false, err
	}
	c.pos, c.valid = id, ok
	return ok, nil
}

// SeekToFirst positions the cursor on the oldest message.
func (c *Cursor) SeekToFirst(ctx context.Context) (bool, error) {
	return c.seekBoundary(ctx, false)
}

// SeekToLast positions the cursor on the newest message.
func (c *Cursor) SeekToLast(ctx context.Context) (bool, error) {
	return c.seekBoundary(ctx, true)
}

func (c *Cursor) seekBoundary(ctx context.Context, last bool) (bool, error) {
	id, ok, err := c.log.boundaryID(ctx, c.conv, last)
	if err != nil {
		return false, err
	}
	c.pos, c.valid = id, ok
	return ok, nil
}

// Next moves to the following message. At the last message it returns false
// and stays put. An unpositioned cursor does not move.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	return c.step(ctx, true)
}

// Previous moves to the preceding message.
func (c *Cursor) Previous(ctx context.Context) (bool, error) {
	return c.step(ctx, false)
}

func (c *Cursor) step(ctx context.Context, forward bool) (bool, error) {
	if !c.valid {
		return false, nil
	}
	id, ok, err := c.log.adjacentID(ctx, c.conv, c.pos, forward)
	if err != nil || !ok {
		return false, err
	}
	c.pos = id
	return true, nil
}

// Message loads the message under the cursor, media included.
func (c *Cursor) Message(ctx context.Context) (*message.Message, error) {
	if !c.valid {
		return nil, ErrCursorNotPositioned
	}
	return c.log.visibleMessage(ctx, c.conv, c.pos)
}

func (db *DB) hasVisible(ctx context.Context, conv message.Conversation, id protocol.MessageID) (bool, error) {
	where, args := convWhere(conv)
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+visibleTable(conv)+` WHERE `+where+` AND message_id = ?`,
		append(args, sqlID(id))...).Scan(&n)
	if err != nil {
		return false, storageErr("seek message", err)
	}
	return n > 0, nil
}

func (db *DB) boundaryID(ctx context.Context, conv message.Conversation, last bool) (protocol.MessageID, bool, error) {
	agg := "MIN"
	if last {
		agg = "MAX"
	}
	where, args := convWhere(conv)
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT `+agg+`(message_id) FROM `+visibleTable(conv)+` WHERE `+where, args...).Scan(&v)
	if err != nil {
		return 0, false, storageErr("seek message", err)
	}
	return fromSQLID(v.Int64), v.Valid, nil
}

func (db *DB) adjacentID(ctx context.Context, conv message.Conversation, from protocol.MessageID, forward bool) (protocol.MessageID, bool, error) {
	where, args := convWhere(conv)
	cmp, order := ">", "ASC"
	if !forward {
		cmp, order = "<", "DESC"
	}
	var v int64
	err := db.QueryRowContext(ctx, `SELECT message_id FROM `+visibleTable(conv)+` WHERE `+where+
		` AND message_id `+cmp+` ? ORDER BY message_id `+order+` LIMIT 1`, append(args, sqlID(from))...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("step cursor", err)
	}
	return fromSQLID(v), true, nil
}

func (db *DB) visibleMessage(ctx context.Context, conv message.Conversation, id protocol.MessageID) (*message.Message, error) {
	var m *message.Message
	err := db.read(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		m, err = db.loadMessage(ctx, tx, visibleTable(conv), conv, id)
		return err
	})
	return m, err
}
