package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/matheus3301/cipherlog/internal/status"
	"github.com/matheus3301/cipherlog/internal/store"
	"go.uber.org/zap"
)

const (
	self  protocol.ContactID = "AAAAAAAA"
	alice protocol.ContactID = "ALICE001"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	keys, err := protocol.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.Create(context.Background(), filepath.Join(t.TempDir(), "store.db"), "pw", self, keys, store.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	other, err := protocol.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AddContact(context.Background(), store.NewContact{ID: alice, PublicKey: other.Public}); err != nil {
		t.Fatal(err)
	}
	return db
}

func readyMachine(t *testing.T, b *bus.Bus) *status.Machine {
	t.Helper()
	m := status.NewMachine(b)
	for _, s := range []status.State{status.Migrating, status.Ready, status.Live} {
		if err := m.Transition(s); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func textRecord(id protocol.MessageID, text string) store.ContactMessageRecord {
	return store.ContactMessageRecord{
		Contact:         alice,
		ImportedMessage: store.ImportedMessage{ID: id, Content: message.Text(text)},
	}
}

func TestImportWritesBatchAndCheckpoint(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	machine := readyMachine(t, b)
	e := NewEngine(db, machine, b, zap.NewNop())

	lifecycle, unsubLC := b.Subscribe(bus.LifecycleChanged, 10)
	defer unsubLC()
	completed, unsub := b.Subscribe(bus.ImportCompleted, 10)
	defer unsub()

	done, err := e.Import(context.Background(), Batch{
		Contacts:   []store.ContactMessageRecord{textRecord(1, "one"), textRecord(2, "two"), textRecord(1, "again")},
		Checkpoint: "page-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if done.Contacts.Imported != 2 || done.Contacts.Skipped != 1 {
		t.Errorf("contacts = %+v, want 2 imported 1 skipped", done.Contacts)
	}
	if machine.Current() != status.Live {
		t.Errorf("state = %s, want LIVE after import", machine.Current())
	}

	var seen []status.State
	for len(seen) < 2 {
		select {
		case evt := <-lifecycle:
			seen = append(seen, evt.Payload.(status.Change).To)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for lifecycle events, got %v", seen)
		}
	}
	if seen[0] != status.Importing || seen[1] != status.Live {
		t.Errorf("transitions = %v, want [IMPORTING LIVE]", seen)
	}

	select {
	case evt := <-completed:
		if got := evt.Payload.(Completed); got.Checkpoint != "page-1" {
			t.Errorf("checkpoint = %q, want page-1", got.Checkpoint)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for import.completed event")
	}

	cp, err := e.Checkpoint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cp != "page-1" {
		t.Errorf("Checkpoint() = %q, want page-1", cp)
	}
}

func TestImportFailureKeepsCheckpoint(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, readyMachine(t, b), b, zap.NewNop())

	cp, err := e.Checkpoint(context.Background())
	if err != nil || cp != "" {
		t.Fatalf("Checkpoint() = %q, %v, want empty", cp, err)
	}

	bad := textRecord(1, "x")
	bad.Contact = "NOBODY01"
	_, err = e.Import(context.Background(), Batch{Contacts: []store.ContactMessageRecord{bad}, Checkpoint: "page-9"})
	var importErr *store.ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("err = %v, want ImportError", err)
	}
	if cp, _ := e.Checkpoint(context.Background()); cp != "" {
		t.Errorf("checkpoint = %q after failed batch, want empty", cp)
	}
}

func TestImportRejectedWhileNotReady(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, status.NewMachine(nil), bus.New(), nil)
	if _, err := e.Import(context.Background(), Batch{Contacts: []store.ContactMessageRecord{textRecord(1, "x")}}); err == nil {
		t.Fatal("expected import to be refused before the store is ready")
	}
}

func TestEngineConsumesBusBatches(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, readyMachine(t, b), b, zap.NewNop())
	completed, unsub := b.Subscribe(bus.ImportCompleted, 10)
	defer unsub()

	e.Start(context.Background())
	defer e.Stop()

	b.Emit(bus.IngestBatch, Batch{Contacts: []store.ContactMessageRecord{textRecord(7, "via bus")}})

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for import.completed event")
	}
	m, err := db.Message(context.Background(), message.WithContact(alice), 7)
	if err != nil {
		t.Fatal(err)
	}
	if m.Content.Text != "via bus" {
		t.Errorf("text = %q, want 'via bus'", m.Content.Text)
	}
}

func TestImportRestoresGroupsBeforeMessages(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, readyMachine(t, b), b, zap.NewNop())
	gid := protocol.GroupID{Creator: alice, Seq: 4}

	group := store.GroupRecord{ID: gid, Title: "book club", Description: "one chapter a week", Members: []protocol.ContactID{self, alice}}
	msg := store.GroupMessageRecord{
		Group:           gid,
		ImportedMessage: store.ImportedMessage{ID: 1, Sender: alice, Content: message.Text("chapter one?")},
	}

	done, err := e.Import(context.Background(), Batch{
		GroupRecords: []store.GroupRecord{group},
		Groups:       []store.GroupMessageRecord{msg},
	})
	if err != nil {
		t.Fatal(err)
	}
	if done.GroupRecords.Imported != 1 || done.Groups.Imported != 1 {
		t.Errorf("completed = %+v, want one group and one group message", done)
	}
	desc, err := db.GroupDescription(context.Background(), gid)
	if err != nil {
		t.Fatal(err)
	}
	if desc != "one chapter a week" {
		t.Errorf("description = %q", desc)
	}
}

// gatedLifecycle holds BeginImport until release is closed.
type gatedLifecycle struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLifecycle) BeginImport() (func() error, error) {
	close(g.entered)
	<-g.release
	return func() error { return nil }, nil
}

func TestStopWaitsForBatchInFlight(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	lc := &gatedLifecycle{entered: make(chan struct{}), release: make(chan struct{})}
	e := NewEngine(db, lc, b, nil)

	e.Start(context.Background())
	b.Emit(bus.IngestBatch, Batch{Contacts: []store.ContactMessageRecord{textRecord(1, "late")}})

	select {
	case <-lc.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the batch to start")
	}

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a batch was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(lc.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Stop")
	}

	// A second Stop is a no-op.
	e.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	e := NewEngine(testDB(t), status.NewMachine(nil), bus.New(), nil)
	e.Stop()
}
