package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StoreWatcher watches the snippet store file for external writes, such
// as a CLI invocation in another process. It watches the containing
// directory because the store replaces the file by atomic rename, which
// would drop a direct file watch.
type StoreWatcher struct {
	watcher *fsnotify.Watcher
	events  chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	storePath string
}

// NewStoreWatcher creates a watcher for the store file at path.
// The watcher must be started with Start() before it will emit events.
func NewStoreWatcher(path string) (*StoreWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %w", err)
	}

	return &StoreWatcher{
		watcher:   watcher,
		events:    make(chan struct{}, 1),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
		storePath: abs,
	}, nil
}

// Start begins watching the store file's directory.
func (sw *StoreWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(sw.storePath)
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()
	return nil
}

// Stop stops watching and cleans up resources. It blocks until the
// event processing goroutine has exited.
func (sw *StoreWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)
	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	sw.wg.Wait()
	return nil
}

// Events emits one coalesced signal per observed store write.
func (sw *StoreWatcher) Events() <-chan struct{} {
	return sw.events
}

// Errors emits watcher errors.
func (sw *StoreWatcher) Errors() <-chan error {
	return sw.errors
}

func (sw *StoreWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !sw.isStoreEvent(event) {
				continue
			}
			select {
			case sw.events <- struct{}{}:
			default:
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// isStoreEvent filters directory events down to writes of the store
// file itself. Create covers the atomic-rename save path.
func (sw *StoreWatcher) isStoreEvent(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != sw.storePath {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
