package sync

import (
	"context"
	"sync"
	"time"

	"github.com/codej/codej/internal/backend"
)

// pushFeed keeps a realtime subscription open against the backend and
// forwards its change notifications. When the channel drops it
// reconnects with exponential backoff, and while the channel is down it
// degrades to changed-since polling so remote edits are still noticed.
type pushFeed struct {
	signals

	rt     backend.Realtimer
	poller backend.ChangePoller
	cfg    FeedConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPushFeed(ctx context.Context, rt backend.Realtimer, poller backend.ChangePoller, cfg FeedConfig) *pushFeed {
	ctx, cancel := context.WithCancel(ctx)
	f := &pushFeed{
		signals: newSignals(),
		rt:      rt,
		poller:  poller,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
	f.wg.Add(1)
	go f.run()
	return f
}

func (f *pushFeed) Close() {
	f.cancel()
	f.wg.Wait()
}

func (f *pushFeed) run() {
	defer f.wg.Done()

	delay := f.cfg.ReconnectMin
	for {
		if f.ctx.Err() != nil {
			return
		}

		sub, err := f.rt.Subscribe(f.ctx)
		if err != nil {
			f.cfg.Logger.Printf("push channel unavailable: %v (retrying in %s)", err, delay)
			f.pollUntil(delay)
			delay = nextDelay(delay, f.cfg.ReconnectMax)
			continue
		}

		f.cfg.Logger.Printf("push channel open")
		delay = f.cfg.ReconnectMin
		f.consume(sub)
		sub.Close()

		if f.ctx.Err() != nil {
			return
		}
		if err := sub.Err(); err != nil {
			f.cfg.Logger.Printf("push channel dropped: %v (reconnecting in %s)", err, delay)
		}
		f.pollUntil(delay)
		delay = nextDelay(delay, f.cfg.ReconnectMax)
	}
}

// consume forwards subscription signals until the subscription dies or
// the feed shuts down.
func (f *pushFeed) consume(sub *backend.Subscription) {
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-sub.Done():
			return
		case <-sub.Changes():
			f.signal()
		}
	}
}

// pollUntil covers a reconnect wait with changed-since polling, so a
// backend edit made while the push channel is down still surfaces
// within one poll interval.
func (f *pushFeed) pollUntil(wait time.Duration) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	if f.poller == nil {
		select {
		case <-f.ctx.Done():
		case <-deadline.C:
		}
		return
	}

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			f.pollOnce()
		}
	}
}

func (f *pushFeed) pollOnce() {
	n, err := f.poller.ChangedSince(f.ctx, f.cfg.Watermark())
	if err != nil {
		f.cfg.Logger.Printf("poll check failed: %v", err)
		return
	}
	if n > 0 {
		f.signal()
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}
