package api

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/matheus3301/cipherlog/internal/status"
	"github.com/matheus3301/cipherlog/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	selfID  = protocol.ContactID("AAAAAAAA")
	aliceID = protocol.ContactID("ALICE001")
)

func newTestStore(t *testing.T, m *status.Machine) *store.DB {
	t.Helper()
	ctx := context.Background()
	keys, err := protocol.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.Create(ctx, filepath.Join(t.TempDir(), "store.db"), "pw", selfID, keys, store.Options{Lifecycle: m})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	alice, err := protocol.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AddContact(ctx, store.NewContact{ID: aliceID, PublicKey: alice.Public, Nickname: "al"}); err != nil {
		t.Fatal(err)
	}
	return db
}

func serve(t *testing.T, svc *StoreService) *Client {
	t.Helper()
	// Short path for the unix socket length limit.
	dir, err := os.MkdirTemp("/tmp", "cl-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "d.sock")

	srv := grpc.NewServer()
	Register(srv, svc)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatusAndIdentity(t *testing.T) {
	ctx := context.Background()
	m := status.NewMachine(nil)
	db := newTestStore(t, m)
	c := serve(t, NewStoreService("main", db, m, nil))

	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Profile != "main" || st.State != string(status.Ready) {
		t.Errorf("status = %+v", st)
	}
	if st.Contacts != 2 {
		t.Errorf("contacts = %d, want 2", st.Contacts)
	}

	id, err := c.GetIdentity(ctx)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if id.ID != selfID.String() || id.PublicKey != db.Backup().Keys.Public.String() {
		t.Errorf("identity = %+v", id)
	}
}

func TestListContactsAndGroups(t *testing.T) {
	ctx := context.Background()
	m := status.NewMachine(nil)
	db := newTestStore(t, m)
	gid := protocol.GroupID{Creator: aliceID, Seq: 3}
	if err := db.CreateGroup(ctx, gid, []protocol.ContactID{selfID, aliceID}, false); err != nil {
		t.Fatal(err)
	}
	c := serve(t, NewStoreService("main", db, m, nil))

	contacts, err := c.ListContacts(ctx, &ListContactsRequest{})
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts.Contacts) != 1 || contacts.Contacts[0].ID != aliceID.String() || contacts.Contacts[0].Nickname != "al" {
		t.Errorf("contacts = %+v", contacts.Contacts)
	}
	contacts, err = c.ListContacts(ctx, &ListContactsRequest{WithSelf: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts.Contacts) != 2 {
		t.Errorf("with self: %d contacts, want 2", len(contacts.Contacts))
	}

	groups, err := c.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups.Groups) != 1 || groups.Groups[0].ID != gid.String() || len(groups.Groups[0].Members) != 2 {
		t.Errorf("groups = %+v", groups.Groups)
	}
}

func TestReadConversationPages(t *testing.T) {
	ctx := context.Background()
	m := status.NewMachine(nil)
	db := newTestStore(t, m)
	conv := message.WithContact(aliceID)
	now := time.Now()
	for id := protocol.MessageID(1); id <= 5; id++ {
		if err := db.RecordReceivedText(ctx, conv, aliceID, id, now, now, "m"+id.String()); err != nil {
			t.Fatal(err)
		}
	}
	c := serve(t, NewStoreService("main", db, m, nil))

	page, err := c.ReadConversation(ctx, &ReadConversationRequest{Conversation: aliceID.String(), Limit: 2})
	if err != nil {
		t.Fatalf("ReadConversation: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != 1 || page.Messages[1].ID != 2 || !page.HasMore {
		t.Fatalf("first page = %+v has_more=%v", page.Messages, page.HasMore)
	}

	anchor := page.Messages[1].ID
	page, err = c.ReadConversation(ctx, &ReadConversationRequest{Conversation: aliceID.String(), Anchor: &anchor, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 3 || page.Messages[0].ID != 3 || page.HasMore {
		t.Errorf("after anchor = %+v has_more=%v", page.Messages, page.HasMore)
	}

	page, err = c.ReadConversation(ctx, &ReadConversationRequest{Conversation: aliceID.String(), Backward: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != 5 || page.Messages[1].ID != 4 {
		t.Errorf("backward page = %+v", page.Messages)
	}
	if page.Messages[0].Outgoing || page.Messages[0].Sender != aliceID.String() {
		t.Errorf("message = %+v", page.Messages[0])
	}
}

func TestReadConversationErrors(t *testing.T) {
	ctx := context.Background()
	m := status.NewMachine(nil)
	db := newTestStore(t, m)
	c := serve(t, NewStoreService("main", db, m, nil))

	tests := []struct {
		name string
		req  *ReadConversationRequest
		want codes.Code
	}{
		{"malformed", &ReadConversationRequest{Conversation: "nope"}, codes.InvalidArgument},
		{"unknown contact", &ReadConversationRequest{Conversation: "ZZZZZZZZ"}, codes.NotFound},
		{"missing anchor", &ReadConversationRequest{Conversation: aliceID.String(), Anchor: new(uint64)}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ReadConversation(ctx, tt.req)
			if got := grpcstatus.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestEnableTimers(t *testing.T) {
	ctx := context.Background()
	m := status.NewMachine(nil)
	db := newTestStore(t, m)
	c := serve(t, NewStoreService("main", db, m, nil))

	for range 2 {
		resp, err := c.EnableTimers(ctx)
		if err != nil {
			t.Fatalf("EnableTimers: %v", err)
		}
		if resp.State != string(status.Live) {
			t.Errorf("state = %s, want LIVE", resp.State)
		}
	}
	if !m.IsLive() {
		t.Error("machine not live")
	}
}
