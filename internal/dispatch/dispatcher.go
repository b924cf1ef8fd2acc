// Package dispatch turns incoming notifications into local state changes and
// alerts. Both the socket push and the polling feed end up here.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskeer/internal/alert"
	"taskeer/internal/models"
	"taskeer/internal/pubsub"
)

const (
	HomePath          = "/app/mi-dia"
	defaultGraceDelay = 2 * time.Second
	handleTimeout     = 15 * time.Second
)

// API is the notification part of the REST client.
type API interface {
	MarkNotificationRead(ctx context.Context, id int) error
	MarkAllNotificationsRead(ctx context.Context) error
	AcceptNotification(ctx context.Context, id int) error
	RejectNotification(ctx context.Context, id int) error
}

// Host is the application shell the dispatcher acts on.
type Host interface {
	RefreshPermissions(ctx context.Context, listID int)
	RefreshMemberships(ctx context.Context)
	ReloadTasks(ctx context.Context, listID int)
	CurrentList() int
	NavigateAway(path string)
	ChatOpen(listID int) bool
}

// ChatMarker acknowledges chat messages over the socket.
type ChatMarker interface {
	MarkAllRead(listID int) error
}

// Presenter shows alerts to the user.
type Presenter interface {
	Permission() bool
	Native(a alert.Alert)
	Interrupt(a alert.Alert)
}

type Config struct {
	GraceDelay time.Duration
}

type Dispatcher struct {
	api       API
	host      Host
	chat      ChatMarker
	store     ProcessedStore
	presenter Presenter
	log       logrus.FieldLogger
	grace     time.Duration
	afterFunc func(d time.Duration, f func()) *time.Timer

	unread *pubsub.Topic[int]

	// procMu serializes Process so the two transports cannot both handle
	// the same id.
	procMu sync.Mutex

	mu         sync.Mutex
	items      map[int]models.Notification
	chatUnread map[int]int
}

func New(api API, host Host, chat ChatMarker, store ProcessedStore, presenter Presenter, log logrus.FieldLogger, cfg Config) *Dispatcher {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = defaultGraceDelay
	}
	return &Dispatcher{
		api:        api,
		host:       host,
		chat:       chat,
		store:      store,
		presenter:  presenter,
		log:        log.WithField("component", "dispatcher"),
		grace:      cfg.GraceDelay,
		afterFunc:  time.AfterFunc,
		unread:     pubsub.NewTopic[int](8),
		items:      make(map[int]models.Notification),
		chatUnread: make(map[int]int),
	}
}

// Process merges a batch into the collection and handles every unread
// notification not seen before. A snapshot replaces the collection.
func (d *Dispatcher) Process(batch []models.Notification, snapshot bool) {
	d.procMu.Lock()
	defer d.procMu.Unlock()

	d.mu.Lock()
	if snapshot {
		d.items = make(map[int]models.Notification, len(batch))
	}
	for _, n := range batch {
		d.items[n.ID] = n
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	for i := range batch {
		n := batch[i]
		seen, err := d.store.Seen(ctx, n.ID)
		if err != nil {
			d.log.WithError(err).WithField("notification", n.ID).Warn("processed store lookup failed")
		}
		if seen {
			continue
		}
		if !n.Read && n.Payload != nil {
			n.Payload.Accept(&visit{ctx: ctx, d: d}, &n)
		}
		if err := d.store.MarkSeen(ctx, n.ID); err != nil {
			d.log.WithError(err).WithField("notification", n.ID).Warn("failed to record processed notification")
		}
	}
	d.recount()
}

// recount recomputes the unread count from the collection and publishes it.
func (d *Dispatcher) recount() {
	n := d.UnreadCount()
	d.unread.Publish(n)
}

// UnreadCount is the number of unread notifications in the collection.
func (d *Dispatcher) UnreadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, n := range d.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Unread subscribes to unread-count changes.
func (d *Dispatcher) Unread() (<-chan int, func()) {
	return d.unread.Subscribe()
}

// Notifications returns the collection, newest first.
func (d *Dispatcher) Notifications() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Notification, 0, len(d.items))
	for _, n := range d.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// ChatUnread is the number of chat messages received for a list while its
// chat panel was closed.
func (d *Dispatcher) ChatUnread(listID int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chatUnread[listID]
}

func (d *Dispatcher) ResetChatUnread(listID int) {
	d.mu.Lock()
	delete(d.chatUnread, listID)
	d.mu.Unlock()
}

func (d *Dispatcher) setRead(ids ...int) {
	d.mu.Lock()
	for _, id := range ids {
		if n, ok := d.items[id]; ok {
			n.Read = true
			d.items[id] = n
		}
	}
	d.mu.Unlock()
}

func (d *Dispatcher) MarkRead(ctx context.Context, id int) error {
	if err := d.api.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	d.setRead(id)
	d.recount()
	return nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context) error {
	if err := d.api.MarkAllNotificationsRead(ctx); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	d.mu.Lock()
	for id, n := range d.items {
		n.Read = true
		d.items[id] = n
	}
	d.mu.Unlock()
	d.recount()
	return nil
}

// Accept accepts the invitation behind a notification.
func (d *Dispatcher) Accept(ctx context.Context, id int) error {
	if err := d.api.AcceptNotification(ctx, id); err != nil {
		return fmt.Errorf("accept notification %d: %w", id, err)
	}
	d.setRead(id)
	d.recount()
	d.host.RefreshMemberships(ctx)
	return nil
}

func (d *Dispatcher) Reject(ctx context.Context, id int) error {
	if err := d.api.RejectNotification(ctx, id); err != nil {
		return fmt.Errorf("reject notification %d: %w", id, err)
	}
	d.setRead(id)
	d.recount()
	d.host.RefreshMemberships(ctx)
	return nil
}

// ConnectFailed surfaces a terminal socket failure.
func (d *Dispatcher) ConnectFailed(message string) {
	d.present(alert.Alert{
		Level:   alert.LevelCritical,
		Title:   "Chat desconectado",
		Message: message,
		Source:  "socket",
	})
}

func (d *Dispatcher) present(a alert.Alert) {
	if d.presenter == nil {
		alert.LogSink{Log: d.log}.Alert(a)
		return
	}
	if a.Critical() {
		d.presenter.Interrupt(a)
		return
	}
	if d.presenter.Permission() {
		d.presenter.Native(a)
		return
	}
	alert.LogSink{Log: d.log}.Alert(a)
}

func listLink(listID int) string {
	return fmt.Sprintf("/app/lista/%d", listID)
}
