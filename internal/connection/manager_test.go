package connection

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/codej/codej/internal/backend"
	"github.com/codej/codej/internal/program"
)

// stubBackend fails its connection test according to the token it was
// configured with: "bad" is an auth failure, "down" a network failure.
type stubBackend struct {
	token string
}

func init() {
	backend.Register(backend.Type("stub"), func(cfg backend.Config) (backend.Backend, error) {
		return &stubBackend{token: cfg.Token}, nil
	})
}

func (s *stubBackend) Name() backend.Type { return "stub" }

func (s *stubBackend) TestConnection(context.Context) error {
	switch s.token {
	case "bad":
		return backend.ErrAuth
	case "down":
		return backend.ErrNetwork
	default:
		return nil
	}
}

func (s *stubBackend) FetchAll(context.Context) ([]program.Program, error) { return nil, nil }
func (s *stubBackend) Create(context.Context, program.Program) (string, error) {
	return "", nil
}
func (s *stubBackend) Update(context.Context, string, program.Program) error { return nil }
func (s *stubBackend) Delete(context.Context, string) error                  { return nil }

// fakeCredStore records persistence calls.
type fakeCredStore struct {
	saved   *backend.Config
	cleared bool
}

func (f *fakeCredStore) SaveBackend(cfg backend.Config) error {
	c := cfg
	f.saved = &c
	return nil
}

func (f *fakeCredStore) ClearBackend() error {
	f.cleared = true
	f.saved = nil
	return nil
}

func newTestManager() (*Manager, *fakeCredStore) {
	store := &fakeCredStore{}
	return NewManager(store, log.New(io.Discard, "", 0)), store
}

func stubConfig(token string) backend.Config {
	return backend.Config{Type: "stub", Token: token}
}

// TestManager_ConnectSuccess verifies the verify-then-persist order.
func TestManager_ConnectSuccess(t *testing.T) {
	m, store := newTestManager()

	if err := m.Connect(context.Background(), stubConfig("good")); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %s, want connected", m.State())
	}
	if store.saved == nil || store.saved.Token != "good" {
		t.Error("credentials were not persisted after a successful test")
	}
	if _, ok := m.Backend(); !ok {
		t.Error("Backend() unavailable after Connect()")
	}
}

// TestManager_ConnectFailure verifies a failed test persists nothing and
// keeps the manager disconnected.
func TestManager_ConnectFailure(t *testing.T) {
	m, store := newTestManager()

	err := m.Connect(context.Background(), stubConfig("bad"))
	if !errors.Is(err, backend.ErrAuth) {
		t.Fatalf("Connect() = %v, want ErrAuth", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if store.saved != nil {
		t.Error("failed Connect() persisted credentials")
	}
	if _, ok := m.Backend(); ok {
		t.Error("Backend() available after failed Connect()")
	}
}

// TestManager_ConnectFailureKeepsExisting verifies a bad reconfiguration
// attempt cannot wedge an established connection.
func TestManager_ConnectFailureKeepsExisting(t *testing.T) {
	m, _ := newTestManager()
	if err := m.Connect(context.Background(), stubConfig("good")); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	if err := m.Connect(context.Background(), stubConfig("down")); err == nil {
		t.Fatal("second Connect() should have failed")
	}
	if m.State() != StateConnected {
		t.Errorf("state = %s after failed reconnect, want connected", m.State())
	}
}

// TestManager_Disconnect verifies credentials are cleared.
func TestManager_Disconnect(t *testing.T) {
	m, store := newTestManager()
	if err := m.Connect(context.Background(), stubConfig("good")); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect() failed: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if !store.cleared {
		t.Error("Disconnect() did not clear credentials")
	}
}

// TestManager_ResumeFailureKeepsCredentials verifies an unreachable
// backend at startup parks the manager offline without losing config.
func TestManager_ResumeFailureKeepsCredentials(t *testing.T) {
	m, store := newTestManager()

	err := m.Resume(context.Background(), stubConfig("down"))
	if !errors.Is(err, backend.ErrNetwork) {
		t.Fatalf("Resume() = %v, want ErrNetwork", err)
	}
	if m.State() != StateOffline {
		t.Errorf("state = %s, want offline", m.State())
	}
	if store.cleared {
		t.Error("failed Resume() cleared credentials")
	}
	if m.Config().Token != "down" {
		t.Error("failed Resume() dropped the configuration")
	}
}

// TestManager_ResumeSuccess verifies a saved connection comes back up.
func TestManager_ResumeSuccess(t *testing.T) {
	m, _ := newTestManager()
	if err := m.Resume(context.Background(), stubConfig("good")); err != nil {
		t.Fatalf("Resume() failed: %v", err)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %s, want connected", m.State())
	}
}

// TestManager_ReportFailure verifies transient errors never demote and
// repeated fatal errors demote without clearing credentials.
func TestManager_ReportFailure(t *testing.T) {
	m, store := newTestManager()
	if err := m.Connect(context.Background(), stubConfig("good")); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		m.ReportFailure(backend.ErrNetwork)
	}
	if m.State() != StateConnected {
		t.Fatal("transient failures demoted the connection")
	}

	// A success in between resets the fatal counter.
	m.ReportFailure(backend.ErrAuth)
	m.ReportFailure(backend.ErrAuth)
	m.ReportSuccess()
	m.ReportFailure(backend.ErrAuth)
	m.ReportFailure(backend.ErrAuth)
	if m.State() != StateConnected {
		t.Fatal("demoted before reaching the consecutive failure limit")
	}

	m.ReportFailure(backend.ErrAuth)
	if m.State() != StateOffline {
		t.Errorf("state = %s after repeated auth failures, want offline", m.State())
	}
	if store.cleared {
		t.Error("demotion cleared credentials")
	}
}
