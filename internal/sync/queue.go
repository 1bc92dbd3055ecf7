package sync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/codej/codej/internal/backend"
	"github.com/codej/codej/internal/connection"
	"github.com/codej/codej/internal/program"
)

// queueCapacity bounds pending propagation work. A burst beyond this is
// dropped with a warning rather than blocking local commits; the next
// full reconciliation repairs whatever was dropped.
const queueCapacity = 64

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// task is one pending remote mutation. The program is a snapshot taken
// at commit time, so later local edits do not alter in-flight work.
type task struct {
	kind    opKind
	id      string
	program program.Program
}

// queue propagates local mutations to the backend in the background.
// One worker applies tasks in order, retrying transient failures with
// backoff. Exhausted or dropped tasks produce a warning, never a
// rollback of the local commit.
type queue struct {
	tasks   chan task
	store   *program.Store
	manager *connection.Manager
	backoff connection.BackoffConfig
	logger  *log.Logger
	warn    func(string)

	mu      sync.Mutex
	pending int
	waiters []chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newQueue(store *program.Store, manager *connection.Manager, backoff connection.BackoffConfig, logger *log.Logger, warn func(string)) *queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &queue{
		tasks:   make(chan task, queueCapacity),
		store:   store,
		manager: manager,
		backoff: backoff,
		logger:  logger,
		warn:    warn,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *queue) close() {
	q.cancel()
	<-q.done
}

// enqueue adds a task without blocking. A full queue drops the task.
func (q *queue) enqueue(t task) {
	q.taskAdded()
	select {
	case q.tasks <- t:
	default:
		q.taskSettled()
		msg := fmt.Sprintf("sync queue full, dropped %s of %s (will repair on next sync)", t.kind, t.id)
		q.logger.Print(msg)
		q.warn(msg)
	}
}

func (q *queue) taskAdded() {
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
}

// taskSettled decrements the pending count and releases waiters when it
// reaches zero.
func (q *queue) taskSettled() {
	q.mu.Lock()
	q.pending--
	if q.pending == 0 {
		for _, w := range q.waiters {
			close(w)
		}
		q.waiters = nil
	}
	q.mu.Unlock()
}

// wait blocks until every enqueued task has been processed or ctx ends.
// An expired ctx abandons only this wait; the registered channel is
// closed by the worker later and no goroutine is left behind.
func (q *queue) wait(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	settled := make(chan struct{})
	q.waiters = append(q.waiters, settled)
	q.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) worker() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			// Drain so wait() callers are released.
			for {
				select {
				case <-q.tasks:
					q.taskSettled()
				default:
					return
				}
			}
		case t := <-q.tasks:
			q.process(t)
			q.taskSettled()
		}
	}
}

func (q *queue) process(t task) {
	b, ok := q.manager.Backend()
	if !ok {
		q.logger.Printf("connection lost, skipping %s of %s", t.kind, t.id)
		return
	}

	err := q.apply(b, t)
	if err == nil {
		q.manager.ReportSuccess()
		return
	}

	q.manager.ReportFailure(err)
	msg := fmt.Sprintf("cloud %s of %s failed: %v (saved locally)", t.kind, t.id, err)
	q.logger.Print(msg)
	q.warn(msg)
}

func (q *queue) apply(b backend.Backend, t task) error {
	switch t.kind {
	case opCreate:
		remoteID, err := connection.WithRetry(q.ctx, q.backoff, func() (string, error) {
			return b.Create(q.ctx, t.program)
		})
		if err != nil {
			return err
		}
		if remoteID != t.id {
			// The backend assigned its own ID; adopt it locally so
			// later updates address the right record.
			if err := q.store.Rename(t.id, remoteID); err != nil {
				return fmt.Errorf("failed to adopt remote id %s: %w", remoteID, err)
			}
		}
		return nil
	case opUpdate:
		_, err := connection.WithRetry(q.ctx, q.backoff, func() (struct{}, error) {
			return struct{}{}, b.Update(q.ctx, t.id, t.program)
		})
		return err
	case opDelete:
		_, err := connection.WithRetry(q.ctx, q.backoff, func() (struct{}, error) {
			return struct{}{}, b.Delete(q.ctx, t.id)
		})
		return err
	default:
		return fmt.Errorf("unknown queue operation %d", t.kind)
	}
}
