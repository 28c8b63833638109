package store

import (
	"context"
	"errors"
	"slices"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"go.uber.org/zap"
)

// applyGroupControl changes g according to control content c written by
// actor. outgoing is set when the local user wrote c. It reports whether the
// group record changed.
func (db *DB) applyGroupControl(ctx context.Context, tx dbx.DBTX, g *Group, actor protocol.ContactID, c message.Content, outgoing bool) (bool, error) {
	switch c.Kind {
	case message.KindGroupCreation:
		if len(c.Members) == 0 {
			if g.Deleted {
				return false, nil
			}
			g.Deleted, g.AwaitingSync = true, false
			break
		}
		if err := requireContacts(ctx, tx, c.Members...); err != nil {
			return false, participantErr(err)
		}
		db.setMembers(g, c.Members, false)

	case message.KindGroupSetTitle:
		if g.Title == c.Title {
			return false, nil
		}
		g.Title = c.Title

	case message.KindGroupSetImage:
		id, err := db.putMedia(ctx, tx, c.Image)
		if err != nil {
			return false, err
		}
		old := g.ImageID
		g.ImageID = id
		if old != "" {
			if err := removeMedia(ctx, tx, old); err != nil && !errors.Is(err, ErrUnknownBlob) {
				return false, err
			}
		}

	case message.KindGroupLeave:
		if g.Deleted || !g.HasMember(actor) {
			return false, nil
		}
		members := slices.DeleteFunc(slices.Clone(g.Members), func(m protocol.ContactID) bool { return m == actor })
		db.setMembers(g, members, g.AwaitingSync)

	case message.KindGroupSyncRequest:
		if !outgoing || g.Deleted || g.AwaitingSync {
			return false, nil
		}
		g.AwaitingSync = true

	default:
		return false, nil
	}

	if err := saveGroup(ctx, tx, g); err != nil {
		return false, err
	}
	db.logger.Debug("group updated",
		zap.Stringer("group", g.ID),
		zap.String("kind", string(c.Kind)),
		zap.Stringer("state", g.State()))
	return true, nil
}

func (db *DB) emitGroup(id protocol.GroupID) {
	db.emit(bus.GroupChanged, id)
}
