package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/matheus3301/cipherlog/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selfID  protocol.ContactID = "AAAAAAAA"
	aliceID protocol.ContactID = "ALICE001"
	bobID   protocol.ContactID = "BOB00001"
	carolID protocol.ContactID = "CAROL001"

	testPassword = "correct horse"
)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) Publish(evt bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func testKeys(t *testing.T) protocol.KeyPair {
	t.Helper()
	keys, err := protocol.GenerateKeyPair()
	require.NoError(t, err)
	return keys
}

func createStore(t *testing.T, path string, opts Options) *DB {
	t.Helper()
	db, err := Create(context.Background(), path, testPassword, selfID, testKeys(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testStore returns a fresh store with alice and bob known.
func testStore(t *testing.T) (*DB, *recorder) {
	t.Helper()
	rec := &recorder{}
	db := createStore(t, filepath.Join(t.TempDir(), "store.db"), Options{Events: rec})
	ctx := context.Background()
	for _, id := range []protocol.ContactID{aliceID, bobID} {
		require.NoError(t, db.AddContact(ctx, NewContact{ID: id, PublicKey: testKeys(t).Public}))
	}
	rec.reset()
	return db, rec
}

func TestCreateThenOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	keys := testKeys(t)

	db, err := Create(ctx, path, testPassword, selfID, keys, Options{})
	require.NoError(t, err)
	require.NoError(t, db.SetOptionString(ctx, "theme", "dark"))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path, testPassword, Options{})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Equal(t, selfID, db.SelfContact())
	assert.Equal(t, keys, db.Backup().Keys)
	theme, err := db.OptionString(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)

	self, err := db.Contact(ctx, selfID)
	require.NoError(t, err)
	assert.Equal(t, keys.Public, self.PublicKey)
	assert.Equal(t, protocol.VerificationFullyVerified, self.Verification)
}

func TestOpenRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := Create(ctx, path, testPassword, selfID, testKeys(t), Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(ctx, path, "wrong", Options{})
	assert.ErrorIs(t, err, ErrInvalidPasswordOrStore)
}

func TestOpenRejectsUninitializedStore(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), testPassword, Options{})
	assert.ErrorIs(t, err, ErrInvalidPasswordOrStore)
}

func TestCreateTwiceFails(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := Create(ctx, path, testPassword, selfID, testKeys(t), Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Create(ctx, path, testPassword, selfID, testKeys(t), Options{})
	assert.ErrorIs(t, err, ErrStoreExists)
}

func TestLifecycleFollowsOpen(t *testing.T) {
	rec := &recorder{}
	machine := status.NewMachine(rec)
	createStore(t, filepath.Join(t.TempDir(), "store.db"), Options{Lifecycle: machine})
	assert.Equal(t, status.Ready, machine.Current())

	failed := status.NewMachine(nil)
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), testPassword, Options{Lifecycle: failed})
	require.Error(t, err)
	assert.Equal(t, status.Failed, failed.Current())
}

func TestClockDrivesTimestamps(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	db := createStore(t, filepath.Join(t.TempDir(), "store.db"), Options{Clock: func() time.Time { return fixed }})

	self, err := db.Contact(context.Background(), selfID)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(self.CreatedAt))
}
