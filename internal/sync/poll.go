package sync

import (
	"context"
	"sync"
	"time"

	"github.com/codej/codej/internal/backend"
)

// pollFeed detects remote changes by periodically asking the backend
// how many records were modified after the reconciliation watermark.
// Cheap compared to a full fetch: nothing changed means one small query
// and no reconcile.
type pollFeed struct {
	signals

	poller backend.ChangePoller
	cfg    FeedConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPollFeed(ctx context.Context, poller backend.ChangePoller, cfg FeedConfig) *pollFeed {
	ctx, cancel := context.WithCancel(ctx)
	f := &pollFeed{
		signals: newSignals(),
		poller:  poller,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
	f.wg.Add(1)
	go f.run()
	return f
}

func (f *pollFeed) Close() {
	f.cancel()
	f.wg.Wait()
}

func (f *pollFeed) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			n, err := f.poller.ChangedSince(f.ctx, f.cfg.Watermark())
			if err != nil {
				f.cfg.Logger.Printf("poll check failed: %v", err)
				continue
			}
			if n > 0 {
				f.signal()
			}
		}
	}
}
