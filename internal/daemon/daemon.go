// Package daemon runs the long-lived sync process. The daemon:
// 1. Reconciles with the cloud backend at startup
// 2. Listens to the backend's change feed and reconciles on signals
// 3. Watches the store file for writes from other processes
// 4. Periodically runs a full reconciliation as a safety net
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/codej/codej/internal/connection"
	"github.com/codej/codej/internal/program"
	syncpkg "github.com/codej/codej/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// ReconcileInterval is how often to run a full reconciliation even
	// without a change signal.
	ReconcileInterval time.Duration

	// DebounceInterval is how long to wait after a store file event
	// before reloading. This batches rapid writes together.
	DebounceInterval time.Duration

	// PollInterval is passed to the change feed.
	PollInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReconcileInterval: 5 * time.Minute,
		DebounceInterval:  500 * time.Millisecond,
		PollInterval:      10 * time.Second,
		Logger:            log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon wires the store, connection, orchestrator, and change feed
// into one long-running process.
type Daemon struct {
	store   *program.Store
	manager *connection.Manager
	orch    *syncpkg.Orchestrator
	config  *Config

	watcher *StoreWatcher
	feed    syncpkg.Feed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. Use Start() to run it.
func New(store *program.Store, manager *connection.Manager, orch *syncpkg.Orchestrator, config *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := NewStoreWatcher(store.Path())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:   store,
		manager: manager,
		orch:    orch,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled.
//
// Startup reconciliation failure is not fatal: the daemon keeps running
// offline and the periodic loop retries.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.orch.Reconcile(ctx); err != nil {
		d.config.Logger.Printf("Initial reconcile failed: %v", err)
	}

	if b, ok := d.manager.Backend(); ok {
		feed, err := syncpkg.NewFeed(d.ctx, b, syncpkg.FeedConfig{
			PollInterval: d.config.PollInterval,
			Watermark:    d.orch.LastSync,
			Logger:       d.config.Logger,
		})
		if err != nil {
			d.config.Logger.Printf("Change feed unavailable: %v", err)
		} else if feed != nil {
			d.feed = feed
			d.config.Logger.Printf("Change feed active for %s backend", b.Name())
		}
	}

	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch store: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.store.Path())

	d.wg.Add(2)
	go d.feedLoop()
	go d.storeLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if d.feed != nil {
		d.feed.Close()
	}
	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// feedLoop reconciles on change-feed signals and on the periodic timer.
func (d *Daemon) feedLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReconcileInterval)
	defer ticker.Stop()

	var feedSignals <-chan struct{}
	if d.feed != nil {
		feedSignals = d.feed.Signals()
	}

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-feedSignals:
			d.config.Logger.Println("Remote change signal")
			d.reconcile()

		case <-ticker.C:
			d.reconcile()
		}
	}
}

// storeLoop reloads and reconciles after external writes to the store
// file, debouncing bursts.
func (d *Daemon) storeLoop() {
	defer d.wg.Done()

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-d.ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-d.watcher.Events():
			if debounce == nil {
				debounce = time.NewTimer(d.config.DebounceInterval)
				fire = debounce.C
			} else {
				debounce.Reset(d.config.DebounceInterval)
			}

		case err := <-d.watcher.Errors():
			d.config.Logger.Printf("Watcher error: %v", err)

		case <-fire:
			debounce = nil
			fire = nil
			d.config.Logger.Println("Store file changed, reloading")
			if err := d.store.Reload(); err != nil {
				d.config.Logger.Printf("Error reloading store: %v", err)
				continue
			}
			d.reconcile()
		}
	}
}

func (d *Daemon) reconcile() {
	if err := d.orch.Reconcile(d.ctx); err != nil {
		if errors.Is(err, syncpkg.ErrNotConnected) {
			return
		}
		d.config.Logger.Printf("Reconcile failed: %v", err)
	}
}
