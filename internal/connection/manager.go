// Package connection tracks whether a cloud backend is configured and
// reachable, and owns the lifecycle around it: connecting (credentials
// are verified before they are saved), resuming a saved connection at
// startup, demoting on repeated auth failure, and disconnecting.
package connection

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/codej/codej/internal/backend"
)

// State is the connection lifecycle state.
type State string

const (
	// StateDisconnected means no backend is configured. Local-only mode.
	StateDisconnected State = "disconnected"

	// StateConnected means the backend was verified and is usable.
	StateConnected State = "connected"

	// StateOffline means credentials exist but the backend is not
	// currently reachable or usable. Credentials are retained so the
	// connection can recover without reconfiguration.
	StateOffline State = "offline"
)

// CredentialStore persists backend credentials across sessions.
type CredentialStore interface {
	SaveBackend(cfg backend.Config) error
	ClearBackend() error
}

// Demotion happens only after several consecutive fatal failures, so a
// single mis-read 401 from a flaky proxy does not drop the connection.
const authFailureLimit = 3

// Manager is the connection state machine. All methods are safe for
// concurrent use.
type Manager struct {
	mu sync.Mutex

	state        State
	backend      backend.Backend
	cfg          backend.Config
	authFailures int

	store  CredentialStore
	logger *log.Logger
}

// NewManager creates a disconnected manager.
func NewManager(store CredentialStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Manager{
		state:  StateDisconnected,
		store:  store,
		logger: logger,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Backend returns the active backend. The second return is false unless
// the manager is connected.
func (m *Manager) Backend() (backend.Backend, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.backend == nil {
		return nil, false
	}
	return m.backend, true
}

// Config returns the backend configuration currently held, whether or
// not the connection is up.
func (m *Manager) Config() backend.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Connect builds the backend described by cfg, verifies it with a test
// call, and only then persists the credentials and transitions to
// connected. On failure nothing is persisted and the previous state is
// kept, so a typo in a token can never wedge an existing connection.
func (m *Manager) Connect(ctx context.Context, cfg backend.Config) error {
	b, err := backend.New(cfg)
	if err != nil {
		return err
	}
	if err := b.TestConnection(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveBackend(cfg); err != nil {
			return fmt.Errorf("failed to save connection: %w", err)
		}
	}
	m.backend = b
	m.cfg = cfg
	m.state = StateConnected
	m.authFailures = 0
	m.logger.Printf("connected to %s backend", b.Name())
	return nil
}

// Resume restores a previously saved connection at startup. Unlike
// Connect it keeps the credentials on failure and parks the manager in
// the offline state; the retry path is a later Resume or Connect.
func (m *Manager) Resume(ctx context.Context, cfg backend.Config) error {
	b, err := backend.New(cfg)
	if err != nil {
		m.setOffline(cfg)
		return err
	}
	if err := b.TestConnection(ctx); err != nil {
		m.setOffline(cfg)
		m.logger.Printf("saved %s connection is unreachable: %v", cfg.Type, err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = b
	m.cfg = cfg
	m.state = StateConnected
	m.authFailures = 0
	m.logger.Printf("resumed %s connection", b.Name())
	return nil
}

func (m *Manager) setOffline(cfg backend.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.backend = nil
	m.state = StateOffline
}

// Disconnect drops the backend and clears the persisted credentials.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		if err := m.store.ClearBackend(); err != nil {
			return fmt.Errorf("failed to clear connection: %w", err)
		}
	}
	m.backend = nil
	m.cfg = backend.Config{}
	m.state = StateDisconnected
	m.authFailures = 0
	m.logger.Printf("disconnected")
	return nil
}

// ReportFailure records a backend operation failure. Transient failures
// leave the connection up; consecutive fatal failures demote it to
// offline while keeping credentials so the user can recover later.
func (m *Manager) ReportFailure(err error) {
	if err == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return
	}
	if !backend.IsFatal(err) {
		return
	}
	m.authFailures++
	if m.authFailures < authFailureLimit {
		m.logger.Printf("auth failure %d/%d: %v", m.authFailures, authFailureLimit, err)
		return
	}
	m.backend = nil
	m.state = StateOffline
	m.logger.Printf("demoting connection after %d auth failures", m.authFailures)
}

// ReportSuccess resets the failure counter after a successful operation.
func (m *Manager) ReportSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures = 0
}
