package live

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
)

// NotificationSource fetches the current notification snapshot.
type NotificationSource interface {
	Notifications(ctx context.Context) (*models.NotificationList, error)
}

// Sink receives notification batches. snapshot is true for full polls.
type Sink interface {
	Process(batch []models.Notification, snapshot bool)
}

// Prober is the part of the socket the feed watches.
type Prober interface {
	Connected() bool
	Failed() bool
	Reconnect()
}

type FeedConfig struct {
	Interval      time.Duration
	ProbeInterval time.Duration
	FetchTimeout  time.Duration
}

func (c *FeedConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 10 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
}

// Feed polls notifications as the fallback to the socket push and keeps the
// socket alive.
type Feed struct {
	cfg    FeedConfig
	src    NotificationSource
	sink   Sink
	socket Prober
	log    logrus.FieldLogger
	now    func() time.Time

	trigger chan struct{}

	mu       sync.Mutex
	lastPoll time.Time
	lastErr  error
}

// NewFeed creates a feed. socket may be nil.
func NewFeed(cfg FeedConfig, src NotificationSource, sink Sink, socket Prober, log logrus.FieldLogger) *Feed {
	cfg.defaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Feed{
		cfg:     cfg,
		src:     src,
		sink:    sink,
		socket:  socket,
		log:     log.WithField("component", "feed"),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Run polls once immediately, then on every interval, probe or trigger
// until ctx ends.
func (f *Feed) Run(ctx context.Context) {
	poll := time.NewTicker(f.cfg.Interval)
	defer poll.Stop()
	probe := time.NewTicker(f.cfg.ProbeInterval)
	defer probe.Stop()

	f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			f.Poll(ctx)
		case <-f.trigger:
			f.Poll(ctx)
		case <-probe.C:
			f.probe(ctx)
		}
	}
}

// Trigger requests an immediate poll.
func (f *Feed) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
		// already pending
	}
}

func (f *Feed) probe(ctx context.Context) {
	if f.socket != nil && !f.socket.Connected() && !f.socket.Failed() {
		f.log.Debug("socket down, asking it to reconnect")
		f.socket.Reconnect()
	}
	f.mu.Lock()
	stale := f.now().Sub(f.lastPoll) > 2*f.cfg.Interval
	f.mu.Unlock()
	if stale {
		f.log.Info("notification feed stale, polling now")
		f.Poll(ctx)
	}
}

// Poll fetches one snapshot and hands it to the sink.
func (f *Feed) Poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	list, err := f.src.Notifications(ctx)
	f.mu.Lock()
	f.lastErr = err
	if err == nil {
		f.lastPoll = f.now()
	}
	f.mu.Unlock()
	if err != nil {
		f.log.WithError(err).Warn("failed to fetch notifications")
		return err
	}
	f.sink.Process(list.Notifications, true)
	return nil
}

// LastPoll returns the time of the last successful poll and the error of
// the most recent attempt.
func (f *Feed) LastPoll() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPoll, f.lastErr
}
