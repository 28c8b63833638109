package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"go.uber.org/zap"
)

// MessageRef identifies a message in notifications and listings.
type MessageRef struct {
	Conversation message.Conversation
	ID           protocol.MessageID
	UUID         string
}

// Message ids are unsigned 64 bit values and SQLite integers are signed.
// Flipping the top bit maps one onto the other and keeps the sort order.
func sqlID(id protocol.MessageID) int64   { return int64(uint64(id) ^ (1 << 63)) }
func fromSQLID(v int64) protocol.MessageID { return protocol.MessageID(uint64(v) ^ (1 << 63)) }

const (
	tableContactMessages = "contact_messages"
	tableControlMessages = "control_messages"
	tableGroupMessages   = "group_messages"
)

func convWhere(conv message.Conversation) (string, []any) {
	if conv.IsGroup() {
		g := conv.Group()
		return "group_creator = ? AND group_seq = ?", []any{string(g.Creator), int64(g.Seq)}
	}
	return "contact = ?", []any{string(conv.Contact())}
}

// visibleTable holds the entries a cursor walks.
func visibleTable(conv message.Conversation) string {
	if conv.IsGroup() {
		return tableGroupMessages
	}
	return tableContactMessages
}

// logTables are all tables sharing the id space of conv.
func logTables(conv message.Conversation) []string {
	if conv.IsGroup() {
		return []string{tableGroupMessages}
	}
	return []string{tableContactMessages, tableControlMessages}
}

func tableFor(conv message.Conversation, k message.Kind) string {
	if conv.IsGroup() {
		return tableGroupMessages
	}
	if k.Control() {
		return tableControlMessages
	}
	return tableContactMessages
}

// requireConversation checks that the other side of conv is known. With
// active set, deleted groups count as unknown.
func requireConversation(ctx context.Context, q dbx.DBTX, conv message.Conversation, active bool) (*Group, error) {
	if !conv.IsGroup() {
		if err := requireContacts(ctx, q, conv.Contact()); err != nil {
			return nil, participantErr(err)
		}
		return nil, nil
	}
	g, err := loadGroup(ctx, q, conv.Group())
	if err != nil {
		return nil, participantErr(err)
	}
	if active && g.Deleted {
		return nil, participantErr(unknownGroup(conv.Group()))
	}
	return g, nil
}

// messageDirection looks id up in every log of conv.
func messageDirection(ctx context.Context, q dbx.DBTX, conv message.Conversation, id protocol.MessageID) (exists, outgoing bool, err error) {
	where, args := convWhere(conv)
	for _, t := range logTables(conv) {
		err := q.QueryRowContext(ctx, `SELECT is_outgoing FROM `+t+` WHERE `+where+` AND message_id = ?`,
			append(args, sqlID(id))...).Scan(&outgoing)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return false, false, storageErr("check message", err)
		}
		return true, outgoing, nil
	}
	return false, false, nil
}

func messageExists(ctx context.Context, q dbx.DBTX, conv message.Conversation, id protocol.MessageID) (bool, error) {
	exists, _, err := messageDirection(ctx, q, conv, id)
	return exists, err
}

func counterTable(conv message.Conversation) (table, where string, args []any) {
	if conv.IsGroup() {
		g := conv.Group()
		return "chat_groups", "creator = ? AND seq = ?", []any{string(g.Creator), int64(g.Seq)}
	}
	return "contacts", "identity = ?", []any{string(conv.Contact())}
}

func lastSentID(ctx context.Context, tx dbx.DBTX, conv message.Conversation) (protocol.MessageID, bool, error) {
	table, where, args := counterTable(conv)
	var v sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT last_message_id FROM `+table+` WHERE `+where, args...).Scan(&v); err != nil {
		return 0, false, storageErr("read message counter", err)
	}
	return fromSQLID(v.Int64), v.Valid, nil
}

func setLastSentID(ctx context.Context, tx dbx.DBTX, conv message.Conversation, id protocol.MessageID) error {
	table, where, args := counterTable(conv)
	_, err := tx.ExecContext(ctx, `UPDATE `+table+` SET last_message_id = ? WHERE `+where, append([]any{sqlID(id)}, args...)...)
	if err != nil {
		return storageErr("record message id", err)
	}
	return nil
}

// nextMessageID allocates the next id of the local sequence of conv and
// records it. Ids chosen by peers never move the sequence; ones that are
// already taken are stepped over.
func nextMessageID(ctx context.Context, tx dbx.DBTX, conv message.Conversation) (protocol.MessageID, error) {
	last, ok, err := lastSentID(ctx, tx, conv)
	if err != nil {
		return 0, err
	}
	next := protocol.MessageID(1)
	if ok {
		if uint64(last) == math.MaxUint64 {
			return 0, fmt.Errorf("%w: %s", ErrMessageIDsExhausted, conv)
		}
		next = last + 1
	}
	for {
		taken, err := messageExists(ctx, tx, conv, next)
		if err != nil {
			return 0, err
		}
		if !taken {
			break
		}
		if uint64(next) == math.MaxUint64 {
			return 0, fmt.Errorf("%w: %s", ErrMessageIDsExhausted, conv)
		}
		next++
	}
	if err := setLastSentID(ctx, tx, conv, next); err != nil {
		return 0, err
	}
	return next, nil
}

// NextMessageID reserves a fresh id in conv.
func (db *DB) NextMessageID(ctx context.Context, conv message.Conversation) (protocol.MessageID, error) {
	var id protocol.MessageID
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := requireConversation(ctx, tx, conv, false); err != nil {
			return err
		}
		var err error
		id, err = nextMessageID(ctx, tx, conv)
		return err
	})
	return id, err
}

// record is one row of a conversation log before it is written.
type record struct {
	conv       message.Conversation
	id         protocol.MessageID
	uuid       string
	sender     protocol.ContactID
	outgoing   bool
	status     message.Status
	createdAt  time.Time
	sentAt     time.Time
	receivedAt time.Time
	seenAt     time.Time
	content    message.Content
}

func (r *record) ref() MessageRef {
	return MessageRef{Conversation: r.conv, ID: r.id, UUID: r.uuid}
}

func (db *DB) insertRecord(ctx context.Context, tx dbx.DBTX, r *record) error {
	if r.uuid == "" {
		r.uuid = uuid.NewString()
	}
	var mediaID sql.NullString
	if r.content.HasMedia() && len(r.content.Image) > 0 {
		id, err := db.putMedia(ctx, tx, r.content.Image)
		if err != nil {
			return err
		}
		mediaID = sql.NullString{String: id, Valid: true}
	}

	stored := r.content
	stored.Image, stored.MediaID = nil, ""
	plain, err := stored.Encode()
	if err != nil {
		return err
	}
	sealed, err := db.sealer.Seal(plain)
	if err != nil {
		return err
	}

	table := tableFor(r.conv, r.content.Kind)
	switch table {
	case tableGroupMessages:
		g := r.conv.Group()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_messages (group_creator, group_seq, message_id, sender, uuid, is_outgoing, status, kind,
				content, media_id, created_at, sent_at, received_at, seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(g.Creator), int64(g.Seq), sqlID(r.id), string(r.sender), r.uuid, boolInt(r.outgoing), string(r.status),
			string(r.content.Kind), sealed, mediaID, toMillis(r.createdAt), toMillis(r.sentAt), toMillis(r.receivedAt), toMillis(r.seenAt))
	case tableControlMessages:
		var referred sql.NullInt64
		if r.content.Kind == message.KindReceipt {
			referred = sql.NullInt64{Int64: sqlID(r.content.Referred), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO control_messages (contact, message_id, uuid, is_outgoing, status, kind, content, referred_id,
				created_at, sent_at, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(r.conv.Contact()), sqlID(r.id), r.uuid, boolInt(r.outgoing), string(r.status), string(r.content.Kind),
			sealed, referred, toMillis(r.createdAt), toMillis(r.sentAt), toMillis(r.receivedAt))
	default:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contact_messages (contact, message_id, uuid, is_outgoing, status, kind, content, media_id,
				created_at, sent_at, received_at, seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(r.conv.Contact()), sqlID(r.id), r.uuid, boolInt(r.outgoing), string(r.status), string(r.content.Kind),
			sealed, mediaID, toMillis(r.createdAt), toMillis(r.sentAt), toMillis(r.receivedAt), toMillis(r.seenAt))
	}
	if err != nil {
		return storageErr("insert message", err)
	}
	return nil
}

func selectColumns(table string) string {
	switch table {
	case tableGroupMessages:
		return `message_id, uuid, is_outgoing, status, content, media_id, created_at, sent_at, received_at, seen_at, modified_at, sender`
	case tableControlMessages:
		return `message_id, uuid, is_outgoing, status, content, NULL, created_at, sent_at, received_at, 0, modified_at, ''`
	default:
		return `message_id, uuid, is_outgoing, status, content, media_id, created_at, sent_at, received_at, seen_at, modified_at, ''`
	}
}

func (db *DB) scanMessage(ctx context.Context, q dbx.DBTX, conv message.Conversation, r rowScanner) (*message.Message, error) {
	var (
		m                                       message.Message
		id                                      int64
		status, sender                          string
		sealed                                  []byte
		mediaID                                 sql.NullString
		created, sent, received, seen, modified int64
	)
	if err := r.Scan(&id, &m.UUID, &m.Outgoing, &status, &sealed, &mediaID, &created, &sent, &received, &seen, &modified, &sender); err != nil {
		return nil, err
	}
	plain, err := db.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open message content: %w", err)
	}
	if m.Content, err = message.DecodeContent(plain); err != nil {
		return nil, err
	}
	if mediaID.Valid {
		m.Content.MediaID = mediaID.String
		m.Content.Image, err = db.loadMedia(ctx, q, mediaID.String)
		if err != nil && !errors.Is(err, ErrUnknownBlob) {
			return nil, err
		}
	}

	m.Conversation = conv
	m.ID = fromSQLID(id)
	m.Status = message.Status(status)
	m.Sender = protocol.ContactID(sender)
	if !conv.IsGroup() {
		m.Sender = conv.Contact()
		if m.Outgoing {
			m.Sender = db.SelfContact()
		}
	}
	m.CreatedAt = fromMillis(created)
	m.SentAt = fromMillis(sent)
	m.ReceivedAt = fromMillis(received)
	m.SeenAt = fromMillis(seen)
	m.ModifiedAt = fromMillis(modified)
	return &m, nil
}

func (db *DB) loadMessage(ctx context.Context, q dbx.DBTX, table string, conv message.Conversation, id protocol.MessageID) (*message.Message, error) {
	where, args := convWhere(conv)
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns(table)+` FROM `+table+` WHERE `+where+` AND message_id = ?`,
		append(args, sqlID(id))...)
	m, err := db.scanMessage(ctx, q, conv, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownMessage, id, conv)
	}
	if err != nil {
		return nil, storageErr("load message", err)
	}
	return m, nil
}

// Message returns a visible message of conv.
func (db *DB) Message(ctx context.Context, conv message.Conversation, id protocol.MessageID) (*message.Message, error) {
	return db.visibleMessage(ctx, conv, id)
}

// ControlLog returns the receipts and typing notifications exchanged with a
// contact, in id order.
func (db *DB) ControlLog(ctx context.Context, contact protocol.ContactID) ([]*message.Message, error) {
	conv := message.WithContact(contact)
	var out []*message.Message
	err := db.read(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+selectColumns(tableControlMessages)+`
			FROM control_messages WHERE contact = ? ORDER BY message_id`, string(contact))
		if err != nil {
			return storageErr("list control messages", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			m, err := db.scanMessage(ctx, tx, conv, rows)
			if err != nil {
				return storageErr("scan control message", err)
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

var statusRank = map[message.Status]int{
	message.StatusQueued:     0,
	message.StatusSending:    1,
	message.StatusSendFailed: 1,
	message.StatusSent:       2,
	message.StatusReceived:   2,
	message.StatusDelivered:  3,
	message.StatusSeen:       4,
	message.StatusAgreed:     5,
	message.StatusDisagreed:  5,
}

// advances reports whether moving from cur to next is progress. Agreement
// may flip between agreed and disagreed.
func advances(cur, next message.Status) bool {
	if cur == next {
		return false
	}
	return statusRank[next] >= statusRank[cur] && (statusRank[next] > statusRank[cur] || statusRank[next] == 5)
}

// applyReceipt moves the message referenced by a receipt in a contact
// conversation. outgoing selects which side's message the receipt targets.
// A missing target is not an error: receipts may arrive for pruned history.
func (db *DB) applyReceipt(ctx context.Context, tx dbx.DBTX, contact protocol.ContactID, c message.Content, outgoing bool) (*MessageRef, error) {
	next, _ := c.Receipt.Status()
	if !outgoing && next == message.StatusDelivered {
		// Delivery is only tracked for our own messages.
		return nil, nil
	}
	var cur, id string
	err := tx.QueryRowContext(ctx, `
		SELECT status, uuid FROM contact_messages WHERE contact = ? AND message_id = ? AND is_outgoing = ?`,
		string(contact), sqlID(c.Referred), boolInt(outgoing)).Scan(&cur, &id)
	if errors.Is(err, sql.ErrNoRows) {
		db.logger.Debug("receipt for unknown message", zap.String("contact", contact.String()), zap.Stringer("referred", c.Referred))
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read receipt target", err)
	}
	if !advances(message.Status(cur), next) {
		return nil, nil
	}
	now := toMillis(db.now())
	seen := int64(0)
	if next == message.StatusSeen {
		seen = now
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE contact_messages SET status = ?, modified_at = ?,
			seen_at = CASE WHEN ? != 0 AND seen_at = 0 THEN ? ELSE seen_at END
		WHERE contact = ? AND message_id = ?`,
		string(next), now, seen, seen, string(contact), sqlID(c.Referred))
	if err != nil {
		return nil, storageErr("apply receipt", err)
	}
	return &MessageRef{Conversation: message.WithContact(contact), ID: c.Referred, UUID: id}, nil
}

func requireMedia(c message.Content) error {
	if c.HasMedia() && len(c.Image) == 0 {
		return fmt.Errorf("%w: %s without data", ErrInvalidContent, c.Kind)
	}
	return nil
}

// RecordSent stores a message written by the local user and returns the id
// allocated for it. Queued messages wait for the transport; others are being
// sent right now. Group control content is applied to the group.
func (db *DB) RecordSent(ctx context.Context, conv message.Conversation, sentAt time.Time, queued bool, c message.Content) (protocol.MessageID, error) {
	return db.recordSent(ctx, conv, sentAt, queued, c, true)
}

// RecordSentGroupControl is RecordSent for group control content, with apply
// deciding whether the local group state changes as well.
func (db *DB) RecordSentGroupControl(ctx context.Context, id protocol.GroupID, sentAt time.Time, queued bool, c message.Content, apply bool) (protocol.MessageID, error) {
	if !c.Kind.GroupControl() {
		return 0, fmt.Errorf("%w: %s is not group control", ErrInvalidContent, c.Kind)
	}
	return db.recordSent(ctx, message.InGroup(id), sentAt, queued, c, apply)
}

// RecordSentText is RecordSent for a text message.
func (db *DB) RecordSentText(ctx context.Context, conv message.Conversation, sentAt time.Time, queued bool, text string) (protocol.MessageID, error) {
	return db.RecordSent(ctx, conv, sentAt, queued, message.Text(text))
}

func (db *DB) recordSent(ctx context.Context, conv message.Conversation, sentAt time.Time, queued bool, c message.Content, apply bool) (protocol.MessageID, error) {
	if err := c.Validate(conv.IsGroup()); err != nil {
		return 0, err
	}
	if err := requireMedia(c); err != nil {
		return 0, err
	}
	self := db.SelfContact()
	var (
		r       record
		changed *MessageRef
		groupUp bool
	)
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		changed, groupUp = nil, false
		if conv.IsGroup() && c.Kind.GroupControl() {
			g, err := loadGroup(ctx, tx, conv.Group())
			if errors.Is(err, ErrUnknownGroup) && apply && c.Kind == message.KindGroupCreation && conv.Group().Creator == self {
				g, err = db.createGroup(ctx, tx, conv.Group(), c.Members, false)
				groupUp = err == nil
			} else if err == nil && apply {
				groupUp, err = db.applyGroupControl(ctx, tx, g, self, c, true)
			}
			if err != nil {
				return participantErr(err)
			}
		} else if _, err := requireConversation(ctx, tx, conv, true); err != nil {
			return err
		}

		id, err := nextMessageID(ctx, tx, conv)
		if err != nil {
			return err
		}
		st := message.StatusSending
		if queued {
			st = message.StatusQueued
		}
		r = record{
			conv: conv, id: id, sender: self, outgoing: true, status: st,
			createdAt: db.now(), sentAt: sentAt, content: c,
		}
		if err := db.insertRecord(ctx, tx, &r); err != nil {
			return err
		}
		if c.Kind == message.KindReceipt {
			changed, err = db.applyReceipt(ctx, tx, conv.Contact(), c, false)
		}
		return err
	})
	if err != nil {
		return 0, err
	}

	if groupUp {
		db.emitGroup(conv.Group())
	}
	if changed != nil {
		db.emit(bus.MessageChanged, *changed)
	}
	if !c.Kind.Control() {
		db.emit(bus.MessageNew, r.ref())
	}
	return r.id, nil
}

// RecordReceived stores a message from sender under the id the sender chose.
// Receiving an id that the conversation already holds from the peer is a
// no-op. An id already used by a sent message fails with ErrMessageIDConflict.
// In a contact conversation sender may be left empty.
func (db *DB) RecordReceived(ctx context.Context, conv message.Conversation, sender protocol.ContactID, id protocol.MessageID, sentAt, receivedAt time.Time, c message.Content) error {
	if err := c.Validate(conv.IsGroup()); err != nil {
		return err
	}
	if err := requireMedia(c); err != nil {
		return err
	}
	if !conv.IsGroup() {
		if sender != "" && sender != conv.Contact() {
			return fmt.Errorf("%w: sender %s in conversation with %s", ErrInvalidContent, sender, conv.Contact())
		}
		sender = conv.Contact()
	}

	var (
		r        record
		inserted bool
		changed  *MessageRef
		groupUp  bool
	)
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		inserted, changed, groupUp = false, nil, false
		if err := requireContacts(ctx, tx, sender); err != nil {
			return participantErr(err)
		}

		var g *Group
		if conv.IsGroup() {
			var err error
			g, err = loadGroup(ctx, tx, conv.Group())
			switch {
			case errors.Is(err, ErrUnknownGroup) && c.Kind == message.KindGroupCreation:
				if g, err = db.createGroup(ctx, tx, conv.Group(), c.Members, false); err != nil {
					return participantErr(err)
				}
				groupUp = true
			case err != nil:
				return participantErr(err)
			case g.Deleted && !c.Kind.GroupControl():
				return participantErr(unknownGroup(conv.Group()))
			}
		}

		dup, ours, err := messageDirection(ctx, tx, conv, id)
		if err != nil {
			return err
		}
		if dup && ours {
			return fmt.Errorf("%w: %s in %s", ErrMessageIDConflict, id, conv)
		}
		if dup {
			db.logger.Debug("duplicate message ignored", zap.Stringer("conversation", conv), zap.Stringer("id", id))
			return nil
		}

		if g != nil && c.Kind.GroupControl() && !groupUp {
			if groupUp, err = db.applyGroupControl(ctx, tx, g, sender, c, false); err != nil {
				return err
			}
		}

		r = record{
			conv: conv, id: id, sender: sender, status: message.StatusReceived,
			createdAt: db.now(), sentAt: sentAt, receivedAt: receivedAt, content: c,
		}
		if err := db.insertRecord(ctx, tx, &r); err != nil {
			return err
		}
		inserted = true
		if c.Kind == message.KindReceipt {
			changed, err = db.applyReceipt(ctx, tx, conv.Contact(), c, true)
		}
		return err
	})
	if err != nil || !inserted {
		return err
	}

	if groupUp {
		db.emitGroup(conv.Group())
	}
	if changed != nil {
		db.emit(bus.MessageChanged, *changed)
	}
	switch {
	case c.Kind == message.KindTyping && c.Typing == message.TypingStarted:
		db.emit(bus.TypingStarted, sender)
	case c.Kind == message.KindTyping:
		db.emit(bus.TypingStopped, sender)
	case c.Kind.Control():
	default:
		db.emit(bus.MessageNew, r.ref())
	}
	return nil
}

// RecordReceivedText is RecordReceived for a text message.
func (db *DB) RecordReceivedText(ctx context.Context, conv message.Conversation, sender protocol.ContactID, id protocol.MessageID, sentAt, receivedAt time.Time, text string) error {
	return db.RecordReceived(ctx, conv, sender, id, sentAt, receivedAt, message.Text(text))
}

// MarkSendDone records that the transport delivered a sent message.
func (db *DB) MarkSendDone(ctx context.Context, conv message.Conversation, id protocol.MessageID) error {
	return db.markSend(ctx, conv, id, true)
}

// MarkSendFailed records that sending a message failed.
func (db *DB) MarkSendFailed(ctx context.Context, conv message.Conversation, id protocol.MessageID) error {
	return db.markSend(ctx, conv, id, false)
}

func (db *DB) markSend(ctx context.Context, conv message.Conversation, id protocol.MessageID, done bool) error {
	var ref *MessageRef
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		ref = nil
		where, args := convWhere(conv)
		args = append(args, sqlID(id))
		for _, t := range logTables(conv) {
			var (
				cur, uid string
				outgoing bool
			)
			err := tx.QueryRowContext(ctx, `SELECT status, uuid, is_outgoing FROM `+t+` WHERE `+where+` AND message_id = ?`, args...).
				Scan(&cur, &uid, &outgoing)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return storageErr("read message status", err)
			}
			if !outgoing {
				return fmt.Errorf("%w: %s in %s was received, not sent", ErrUnknownMessage, id, conv)
			}

			st := message.Status(cur)
			next := message.StatusSent
			if !done {
				next = message.StatusSendFailed
			}
			if !st.Pending() || (!done && st == message.StatusSendFailed) {
				return nil
			}
			now := toMillis(db.now())
			_, err = tx.ExecContext(ctx, `
				UPDATE `+t+` SET status = ?, modified_at = ?,
					sent_at = CASE WHEN ? AND sent_at = 0 THEN ? ELSE sent_at END
				WHERE `+where+` AND message_id = ?`,
				append([]any{string(next), now, done, now}, args...)...)
			if err != nil {
				return storageErr("update message status", err)
			}
			ref = &MessageRef{Conversation: conv, ID: id, UUID: uid}
			return nil
		}
		return fmt.Errorf("%w: %s in %s", ErrUnknownMessage, id, conv)
	})
	if err != nil {
		return err
	}
	if ref != nil {
		db.emit(bus.MessageChanged, *ref)
	}
	return nil
}

// ContactMessageCount counts visible messages of all contact conversations.
func (db *DB) ContactMessageCount(ctx context.Context) (int, error) {
	return db.count(ctx, tableContactMessages)
}

// GroupMessageCount counts messages of all group conversations.
func (db *DB) GroupMessageCount(ctx context.Context) (int, error) {
	return db.count(ctx, tableGroupMessages)
}

// ControlMessageCount counts receipts and typing notifications.
func (db *DB) ControlMessageCount(ctx context.Context) (int, error) {
	return db.count(ctx, tableControlMessages)
}
