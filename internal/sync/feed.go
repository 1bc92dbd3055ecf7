// Package sync keeps the local snippet store and a remote backend
// convergent. The Orchestrator commits every mutation locally first and
// propagates it to the backend in the background; a Feed watches the
// backend for remote changes and triggers reconciliation.
package sync

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/codej/codej/internal/backend"
)

// Feed delivers remote-change signals. A signal means "the remote set
// may have changed"; consumers respond by reconciling. Signals are
// coalesced when the consumer is slow.
type Feed interface {
	// Signals delivers one signal per detected remote change batch.
	Signals() <-chan struct{}

	// Close stops the feed and releases its resources.
	Close()
}

// FeedConfig configures change detection.
type FeedConfig struct {
	// PollInterval is how often poll-based detection checks for remote
	// changes, and how often the push feed polls while its channel is
	// down.
	PollInterval time.Duration

	// Watermark returns the time of the last completed reconciliation.
	// Poll-based detection asks the backend for changes after it.
	Watermark func() time.Time

	// ReconnectMin and ReconnectMax bound the exponential wait between
	// push channel reconnect attempts.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Logger for feed activity.
	Logger *log.Logger
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		PollInterval: 10 * time.Second,
		ReconnectMin: 5 * time.Second,
		ReconnectMax: 60 * time.Second,
		Logger:       log.New(os.Stderr, "[feed] ", log.LstdFlags),
	}
}

func (c *FeedConfig) fillDefaults() {
	def := DefaultFeedConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = def.ReconnectMin
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = def.ReconnectMax
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Watermark == nil {
		c.Watermark = func() time.Time { return time.Time{} }
	}
}

// NewFeed selects the best change detection the backend offers: push
// when the backend can stream notifications, polling when it can only
// answer changed-since queries, and no feed at all otherwise. A nil
// feed with a nil error means the backend has no change detection and
// the caller should rely on periodic full reconciliation.
func NewFeed(ctx context.Context, b backend.Backend, cfg FeedConfig) (Feed, error) {
	cfg.fillDefaults()

	if rt, ok := b.(backend.Realtimer); ok {
		poller, _ := b.(backend.ChangePoller)
		return newPushFeed(ctx, rt, poller, cfg), nil
	}
	if poller, ok := b.(backend.ChangePoller); ok {
		return newPollFeed(ctx, poller, cfg), nil
	}
	return nil, nil
}

// signals is the shared coalescing channel both feed kinds embed.
type signals struct {
	ch chan struct{}
}

func newSignals() signals {
	return signals{ch: make(chan struct{}, 1)}
}

func (s signals) Signals() <-chan struct{} {
	return s.ch
}

func (s signals) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}
