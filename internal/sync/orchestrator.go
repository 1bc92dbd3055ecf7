package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/codej/codej/internal/backend"
	"github.com/codej/codej/internal/connection"
	"github.com/codej/codej/internal/program"
)

// ErrNotConnected is returned by operations that need a backend when
// none is connected.
var ErrNotConnected = errors.New("no cloud backend connected")

// Notifier receives user-facing sync events. Implementations must not
// block; they are called from background goroutines.
type Notifier interface {
	// SyncCompleted reports a reconciliation that changed the local set.
	SyncCompleted(added, updated int)

	// SyncWarning reports a propagation problem. The local commit
	// already succeeded; the warning is informational.
	SyncWarning(msg string)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) SyncCompleted(added, updated int) {}
func (NopNotifier) SyncWarning(msg string)           {}

// Options configures an Orchestrator.
type Options struct {
	Notifier Notifier
	Logger   *log.Logger
	Backoff  connection.BackoffConfig
}

// Orchestrator is the write path for snippet mutations. Every mutation
// commits to the local store synchronously, then propagates to the
// connected backend in the background; propagation failure produces a
// warning, never a rollback. Reconcile pulls the remote set and merges
// it in with last-write-wins.
type Orchestrator struct {
	store    *program.Store
	manager  *connection.Manager
	queue    *queue
	notifier Notifier
	logger   *log.Logger
	backoff  connection.BackoffConfig

	reconcileMu stdsync.Mutex

	mu       stdsync.Mutex
	lastSync time.Time
}

// New creates an orchestrator and starts its propagation worker.
func New(store *program.Store, manager *connection.Manager, opts Options) *Orchestrator {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = connection.DefaultBackoffConfig()
	}

	o := &Orchestrator{
		store:    store,
		manager:  manager,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		backoff:  opts.Backoff,
	}
	o.queue = newQueue(store, manager, opts.Backoff, opts.Logger, opts.Notifier.SyncWarning)
	return o
}

// Close stops the propagation worker. Pending tasks are dropped; the
// next reconciliation repairs anything unpropagated.
func (o *Orchestrator) Close() {
	o.queue.close()
}

// LastSync returns the time of the last completed reconciliation. Used
// as the changed-since watermark by poll-based change detection.
func (o *Orchestrator) LastSync() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSync
}

func (o *Orchestrator) setLastSync(t time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastSync = t
}

// Add creates a snippet from the draft, commits it locally, and queues
// remote creation when connected.
func (o *Orchestrator) Add(d program.Draft) (program.Program, error) {
	p, err := program.New(d)
	if err != nil {
		return program.Program{}, err
	}
	if err := o.store.Add(p); err != nil {
		return program.Program{}, err
	}
	if _, ok := o.manager.Backend(); ok {
		o.queue.enqueue(task{kind: opCreate, id: p.ID, program: p})
	}
	return p, nil
}

// Update applies the draft to an existing snippet, commits it locally,
// and queues remote update when connected.
func (o *Orchestrator) Update(id string, d program.Draft) (program.Program, error) {
	p, ok := o.store.Get(id)
	if !ok {
		return program.Program{}, fmt.Errorf("%w: %s", program.ErrNotFound, id)
	}
	if err := p.Apply(d); err != nil {
		return program.Program{}, err
	}
	if err := o.store.Update(p); err != nil {
		return program.Program{}, err
	}
	if _, ok := o.manager.Backend(); ok {
		o.queue.enqueue(task{kind: opUpdate, id: p.ID, program: p})
	}
	return p, nil
}

// Delete removes a snippet locally and queues remote deletion when
// connected. Deleting an unknown ID is a no-op.
func (o *Orchestrator) Delete(id string) error {
	_, existed := o.store.Get(id)
	if err := o.store.Delete(id); err != nil {
		return err
	}
	if !existed {
		return nil
	}
	if _, ok := o.manager.Backend(); ok {
		o.queue.enqueue(task{kind: opDelete, id: id})
	}
	return nil
}

// Import merges an imported record set into the local store with the
// same last-write-wins rule as reconciliation and returns how many
// records were added. Remote propagation happens on the next Sync.
func (o *Orchestrator) Import(programs []program.Program) (int, error) {
	o.reconcileMu.Lock()
	defer o.reconcileMu.Unlock()

	local := o.store.List()
	merged := program.Merge(local, programs)
	added := len(merged) - len(local)
	if err := o.store.Replace(merged); err != nil {
		return 0, err
	}
	return added, nil
}

// Reconcile pulls the complete remote set, merges it into the local
// store, and queues uploads for records the local side holds newer or
// exclusively. Local mutations made while the fetch was in flight are
// preserved: the merge runs against the store state at apply time.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	b, ok := o.manager.Backend()
	if !ok {
		return ErrNotConnected
	}

	remote, err := connection.WithRetry(ctx, o.backoff, func() ([]program.Program, error) {
		return b.FetchAll(ctx)
	})
	if err != nil {
		o.manager.ReportFailure(err)
		return fmt.Errorf("failed to fetch remote programs: %w", err)
	}
	o.manager.ReportSuccess()

	// The connection may have been torn down while the fetch was in
	// flight. A result from a backend the user just disconnected must
	// not be merged in.
	if _, ok := o.manager.Backend(); !ok {
		return ErrNotConnected
	}

	o.reconcileMu.Lock()
	defer o.reconcileMu.Unlock()

	local := o.store.List()
	merged := program.Merge(local, remote)

	// Merge never removes, so the merge changed something only when it
	// added or replaced records. Skipping the no-op write also keeps
	// the daemon's file watcher from seeing our own saves.
	added, updated := diffCounts(local, merged)
	if added > 0 || updated > 0 {
		if err := o.store.Replace(merged); err != nil {
			return fmt.Errorf("failed to apply merge: %w", err)
		}
	}
	o.setLastSync(time.Now())

	o.uploadMissing(merged, remote)

	if added > 0 || updated > 0 {
		o.logger.Printf("reconciled: %d added, %d updated", added, updated)
	}
	// Only notify when the id set changed. Field-only edits to existing
	// records are applied silently; surfacing every one of those would
	// be notification spam. Merge never removes, so additions are the
	// whole id-set delta.
	if added > 0 {
		o.notifier.SyncCompleted(added, updated)
	}
	return nil
}

// Sync runs one full reconciliation and waits for all queued
// propagation to settle. This is the CLI's one-shot sync.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if err := o.Reconcile(ctx); err != nil {
		return err
	}
	return o.queue.wait(ctx)
}

// Flush waits for queued propagation to settle without reconciling.
func (o *Orchestrator) Flush(ctx context.Context) error {
	return o.queue.wait(ctx)
}

// uploadMissing queues creates for records the remote lacks and updates
// for records where the local copy is newer.
func (o *Orchestrator) uploadMissing(merged, remote []program.Program) {
	remoteByID := make(map[string]program.Program, len(remote))
	for _, p := range remote {
		remoteByID[p.ID] = p
	}
	for _, p := range merged {
		r, exists := remoteByID[p.ID]
		switch {
		case !exists:
			o.queue.enqueue(task{kind: opCreate, id: p.ID, program: p})
		case p.UpdatedAt.After(r.UpdatedAt):
			o.queue.enqueue(task{kind: opUpdate, id: p.ID, program: p})
		}
	}
}

// diffCounts reports how many records the merge added and how many it
// replaced with a newer remote version.
func diffCounts(local, merged []program.Program) (added, updated int) {
	localByID := make(map[string]program.Program, len(local))
	for _, p := range local {
		localByID[p.ID] = p
	}
	for _, p := range merged {
		prev, exists := localByID[p.ID]
		switch {
		case !exists:
			added++
		case !p.UpdatedAt.Equal(prev.UpdatedAt):
			updated++
		}
	}
	return added, updated
}

// Backend exposes the connected backend for callers that need direct
// access, like the connection test in the CLI.
func (o *Orchestrator) Backend() (backend.Backend, bool) {
	return o.manager.Backend()
}
