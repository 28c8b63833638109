package store

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	db, rec := testStore(t)
	gid := protocol.GroupID{Creator: aliceID, Seq: 7}

	require.NoError(t, db.CreateGroup(ctx, gid, []protocol.ContactID{bobID, selfID, aliceID, bobID}, true))
	require.NoError(t, db.CreateGroup(ctx, gid, nil, false))
	assert.Equal(t, []string{bus.GroupChanged}, rec.kinds())

	g, err := db.Group(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, []protocol.ContactID{selfID, aliceID, bobID}, g.Members)
	assert.Equal(t, GroupAwaitingSync, g.State())

	members, err := db.GroupMembers(ctx, gid, true)
	require.NoError(t, err)
	assert.Equal(t, []protocol.ContactID{aliceID, bobID}, members)

	containing, err := db.GroupsContainingMember(ctx, bobID)
	require.NoError(t, err)
	assert.Equal(t, []protocol.GroupID{gid}, containing)
	_, err = db.GroupsContainingMember(ctx, carolID)
	assert.ErrorIs(t, err, ErrUnknownContact)

	err = db.CreateGroup(ctx, protocol.GroupID{Creator: aliceID, Seq: 8}, []protocol.ContactID{selfID, carolID}, false)
	assert.ErrorIs(t, err, ErrUnknownContact)
}

func TestGroupWithoutSelfIsDeleted(t *testing.T) {
	ctx := context.Background()
	db, _ := testStore(t)
	gid := protocol.GroupID{Creator: aliceID, Seq: 1}
	require.NoError(t, db.CreateGroup(ctx, gid, []protocol.ContactID{aliceID, bobID}, true))

	deleted, err := db.IsGroupDeleted(ctx, gid)
	require.NoError(t, err)
	assert.True(t, deleted)
	ok, err := db.HasGroup(ctx, gid)
	require.NoError(t, err)
	assert.False(t, ok)
	awaiting, err := db.IsGroupAwaitingSync(ctx, gid)
	require.NoError(t, err)
	assert.False(t, awaiting)

	known, err := db.KnownGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)
	n, err := db.GroupCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err = db.IsGroupDeleted(ctx, protocol.GroupID{Creator: bobID, Seq: 1})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestReceivedGroupControl(t *testing.T) {
	ctx := context.Background()
	db, rec := testStore(t)
	gid := protocol.GroupID{Creator: aliceID, Seq: 3}
	conv := message.InGroup(gid)
	now := time.Now()

	require.NoError(t, db.RecordReceived(ctx, conv, aliceID, 1, now, now,
		message.GroupCreation([]protocol.ContactID{aliceID, bobID, selfID})))
	state, err := db.GroupState(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, GroupActive, state)

	require.NoError(t, db.RecordReceived(ctx, conv, aliceID, 2, now, now, message.GroupSetTitle("climbing")))
	title, err := db.GroupTitle(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, "climbing", title)

	require.NoError(t, db.RecordReceived(ctx, conv, aliceID, 3, now, now, message.GroupSetImage([]byte("png-1"))))
	require.NoError(t, db.RecordReceived(ctx, conv, aliceID, 4, now, now, message.GroupSetImage([]byte("png-2"))))
	img, ok, err := db.GroupImage(ctx, gid)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("png-2"), img)
	// Two message attachments plus the current group image.
	n, err := db.MediaItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, db.RecordReceived(ctx, conv, bobID, 5, now, now, message.GroupLeave()))
	members, err := db.GroupMembers(ctx, gid, false)
	require.NoError(t, err)
	assert.Equal(t, []protocol.ContactID{selfID, aliceID}, members)

	// An empty creation tombstones the group but keeps the members.
	require.NoError(t, db.RecordReceived(ctx, conv, aliceID, 6, now, now, message.GroupCreation(nil)))
	g, err := db.Group(ctx, gid)
	require.NoError(t, err)
	assert.True(t, g.Deleted)
	assert.Equal(t, []protocol.ContactID{selfID, aliceID}, g.Members)

	// Deleted groups still take titles but no visible messages.
	require.NoError(t, db.RecordReceived(ctx, conv, aliceID, 7, now, now, message.GroupSetTitle("archived")))
	title, err = db.GroupTitle(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, "archived", title)
	err = db.RecordReceived(ctx, conv, aliceID, 8, now, now, message.Text("hello?"))
	assert.ErrorIs(t, err, ErrUnknownConversationParticipant)
	assert.ErrorIs(t, err, ErrUnknownGroup)

	count, err := db.GroupMessageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Contains(t, rec.kinds(), bus.GroupChanged)
}

func TestReceivedControlForUnknownGroup(t *testing.T) {
	db, _ := testStore(t)
	now := time.Now()
	conv := message.InGroup(protocol.GroupID{Creator: aliceID, Seq: 9})

	err := db.RecordReceived(context.Background(), conv, aliceID, 1, now, now, message.GroupSetTitle("x"))
	assert.ErrorIs(t, err, ErrUnknownConversationParticipant)
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestSentGroupControl(t *testing.T) {
	ctx := context.Background()
	db, _ := testStore(t)
	gid := protocol.GroupID{Creator: selfID, Seq: 1}
	conv := message.InGroup(gid)
	now := time.Now()

	_, err := db.RecordSent(ctx, conv, now, false, message.GroupCreation([]protocol.ContactID{selfID, aliceID}))
	require.NoError(t, err)
	ok, err := db.HasGroup(ctx, gid)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = db.RecordSentGroupControl(ctx, gid, now, false, message.GroupSetTitle("not applied"), false)
	require.NoError(t, err)
	title, err := db.GroupTitle(ctx, gid)
	require.NoError(t, err)
	assert.Empty(t, title)

	_, err = db.RecordSentGroupControl(ctx, gid, now, false, message.GroupSyncRequest(), true)
	require.NoError(t, err)
	awaiting, err := db.IsGroupAwaitingSync(ctx, gid)
	require.NoError(t, err)
	assert.True(t, awaiting)

	_, err = db.RecordSent(ctx, conv, now, false, message.GroupLeave())
	require.NoError(t, err)
	deleted, err := db.IsGroupDeleted(ctx, gid)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = db.RecordSentGroupControl(ctx, gid, now, false, message.Text("x"), true)
	assert.ErrorIs(t, err, ErrInvalidContent)
}
