package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/cipherlog/internal/api"
	"github.com/matheus3301/cipherlog/internal/config"
	"github.com/matheus3301/cipherlog/internal/profile"
	"github.com/matheus3301/cipherlog/internal/status"
	"github.com/matheus3301/cipherlog/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// shortTempDir keeps unix socket paths under the 104-char limit on macOS.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// TestNewServerUsesParams verifies the socket override is honored and that
// the store and health services answer before a store is attached.
func TestNewServerUsesParams(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t, "cl-srv-*"), "d.sock")

	p := Params{ProfileName: "fxtest", SocketPath: socketPath}
	srv, err := NewServer(p, zap.NewNop(), api.NewStoreService("fxtest", nil, status.NewMachine(nil), nil))
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	c, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	h, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if h.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v, want SERVING", h.Status)
	}

	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != string(status.Opening) {
		t.Errorf("state = %s, want OPENING", st.State)
	}
}

// TestModuleLifecycle runs the whole fx graph: create a store on first start,
// reopen it on the second, refuse a wrong password on the third.
func TestModuleLifecycle(t *testing.T) {
	t.Setenv(profile.HomeEnv, shortTempDir(t, "cl-home-*"))
	ctx := context.Background()
	cfg := config.Default()

	app := fxtest.New(t, Module(Params{ProfileName: "main", Password: "pw", InitIdentity: "SELF0001", Config: cfg}))
	app.RequireStart()

	c, err := api.Dial(profile.SocketPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != string(status.Live) {
		t.Errorf("state = %s, want LIVE with timers enabled", st.State)
	}
	if st.Contacts != 1 {
		t.Errorf("contacts = %d, want only self", st.Contacts)
	}
	id, err := c.GetIdentity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.ID != "SELF0001" {
		t.Errorf("identity = %s", id.ID)
	}
	_ = c.Close()
	app.RequireStop()

	if _, err := os.Stat(profile.SocketPath("main")); !os.IsNotExist(err) {
		t.Errorf("socket left behind after stop: %v", err)
	}

	// Second start opens the existing store; timers stay off until asked for.
	quiet := *cfg
	quiet.Queue.EnableTimers = false
	app = fxtest.New(t, Module(Params{ProfileName: "main", Password: "pw", Config: &quiet}))
	app.RequireStart()
	c, err = api.Dial(profile.SocketPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	st, err = c.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != string(status.Ready) {
		t.Errorf("state = %s, want READY", st.State)
	}
	resp, err := c.EnableTimers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != string(status.Live) {
		t.Errorf("after EnableTimers state = %s, want LIVE", resp.State)
	}
	_ = c.Close()
	app.RequireStop()

	bad := fx.New(Module(Params{ProfileName: "main", Password: "wrong", Config: cfg}), fx.NopLogger)
	if err := bad.Start(ctx); err == nil || !strings.Contains(err.Error(), store.ErrInvalidPasswordOrStore.Error()) {
		t.Errorf("start with wrong password: %v, want ErrInvalidPasswordOrStore", err)
	}
}

func TestModuleRequiresIdentityForNewStore(t *testing.T) {
	t.Setenv(profile.HomeEnv, shortTempDir(t, "cl-init-*"))

	app := fx.New(Module(Params{ProfileName: "main", Password: "pw", Config: config.Default()}), fx.NopLogger)
	if err := app.Err(); err == nil {
		t.Fatal("expected an error without a store or an identity to create one")
	}
}
