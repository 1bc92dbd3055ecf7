package backend

import "sync"

// Subscription is a live push channel for remote change notifications.
// One signal is delivered per observed change; signals are coalesced when
// the consumer is slow, so a signal means "something changed", not "one
// thing changed".
//
// Realtimer implementations create one with NewSubscription and drive it
// with Signal and Fail; consumers use Changes, Done, Err, and Close.
type Subscription struct {
	changes chan struct{}

	mu     sync.Mutex
	err    error
	done   chan struct{}
	closer func()
}

// NewSubscription creates a subscription. closer is invoked once when the
// subscription terminates; it may be nil.
func NewSubscription(closer func()) *Subscription {
	return &Subscription{
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		closer:  closer,
	}
}

// Changes delivers one signal per remote change batch.
func (s *Subscription) Changes() <-chan struct{} {
	return s.changes
}

// Done is closed when the subscription terminates, either by Close or by
// channel failure. Check Err afterward.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription terminated. Nil after a clean Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	s.Fail(nil)
}

// Signal delivers a coalesced change notification.
func (s *Subscription) Signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Fail terminates the subscription with the given error, once.
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	s.err = err
	close(s.done)
	if s.closer != nil {
		s.closer()
	}
}
