package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"go.uber.org/zap"
)

// refColumns selects the conversation key, id and uuid of a log row.
func refColumns(table string) string {
	if table == tableGroupMessages {
		return `group_creator, group_seq, message_id, uuid`
	}
	return `contact, 0, message_id, uuid`
}

func scanRefs(rows *sql.Rows, table string) ([]MessageRef, error) {
	defer func() { _ = rows.Close() }()
	var refs []MessageRef
	for rows.Next() {
		var (
			key     string
			seq, id int64
			ref     MessageRef
		)
		if err := rows.Scan(&key, &seq, &id, &ref.UUID); err != nil {
			return nil, err
		}
		ref.ID = fromSQLID(id)
		if table == tableGroupMessages {
			ref.Conversation = message.InGroup(protocol.GroupID{Creator: protocol.ContactID(key), Seq: uint64(seq)})
		} else {
			ref.Conversation = message.WithContact(protocol.ContactID(key))
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// QueuedMessages lists outgoing messages waiting for the transport.
func (db *DB) QueuedMessages(ctx context.Context) ([]MessageRef, error) {
	var out []MessageRef
	err := db.read(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, t := range []string{tableContactMessages, tableControlMessages, tableGroupMessages} {
			rows, err := tx.QueryContext(ctx, `SELECT `+refColumns(t)+` FROM `+t+`
				WHERE is_outgoing = 1 AND status = ? ORDER BY created_at`, string(message.StatusQueued))
			if err != nil {
				return storageErr("list queued messages", err)
			}
			refs, err := scanRefs(rows, t)
			if err != nil {
				return storageErr("scan queued messages", err)
			}
			out = append(out, refs...)
		}
		return nil
	})
	return out, err
}

// SweepStaleQueued marks outgoing messages that have been queued for longer
// than staleAfter as failed and returns them.
func (db *DB) SweepStaleQueued(ctx context.Context, now time.Time, staleAfter time.Duration) ([]MessageRef, error) {
	if staleAfter <= 0 {
		return nil, fmt.Errorf("sweep: stale age must be positive, got %s", staleAfter)
	}
	cutoff := toMillis(now.Add(-staleAfter))
	var swept []MessageRef
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		swept = nil
		for _, t := range []string{tableContactMessages, tableControlMessages, tableGroupMessages} {
			rows, err := tx.QueryContext(ctx, `
				UPDATE `+t+` SET status = ?, modified_at = ?
				WHERE is_outgoing = 1 AND status = ? AND created_at < ?
				RETURNING `+refColumns(t),
				string(message.StatusSendFailed), toMillis(now), string(message.StatusQueued), cutoff)
			if err != nil {
				return storageErr("sweep queued messages", err)
			}
			refs, err := scanRefs(rows, t)
			if err != nil {
				return storageErr("sweep queued messages", err)
			}
			swept = append(swept, refs...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(swept) > 0 {
		db.logger.Info("stale queued messages failed", zap.Int("count", len(swept)), zap.Duration("stale_after", staleAfter))
	}
	for _, ref := range swept {
		db.emit(bus.MessageChanged, ref)
	}
	return swept, nil
}
