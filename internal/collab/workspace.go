// Package collab wires the client core together for one signed-in user:
// permissions, the open board, the live channel, notifications and sharing.
package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskeer/internal/alert"
	"taskeer/internal/board"
	"taskeer/internal/dispatch"
	"taskeer/internal/live"
	"taskeer/internal/models"
	"taskeer/internal/optimistic"
	"taskeer/internal/restclient"
	"taskeer/internal/roles"
	"taskeer/internal/session"
	"taskeer/internal/sharing"
)

var ErrNotSignedIn = errors.New("no user signed in")

type Options struct {
	API       *restclient.Client
	Session   *session.Session
	Socket    *live.Socket
	Store     dispatch.ProcessedStore
	Presenter dispatch.Presenter
	// Alerts receives optimistic mutation failures.
	Alerts     alert.Sink
	Feed       live.FeedConfig
	GraceDelay time.Duration
	// Navigate is called when the dispatcher sends the user elsewhere.
	Navigate func(path string)
	Log      logrus.FieldLogger
}

type Workspace struct {
	api        *restclient.Client
	session    *session.Session
	resolver   *roles.Resolver
	engine     *optimistic.Engine
	socket     *live.Socket
	feed       *live.Feed
	dispatcher *dispatch.Dispatcher
	sharing    *sharing.Workflow
	navigate   func(path string)
	log        logrus.FieldLogger

	mu       sync.Mutex
	board    *board.Board
	chatList int
}

func New(opts Options) *Workspace {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	navigate := opts.Navigate
	if navigate == nil {
		navigate = func(path string) { log.WithField("path", path).Info("navigate") }
	}

	w := &Workspace{
		api:      opts.API,
		session:  opts.Session,
		socket:   opts.Socket,
		navigate: navigate,
		log:      log.WithField("component", "workspace"),
	}
	w.resolver = roles.NewResolver(opts.API, opts.Session, log)
	w.engine = optimistic.NewEngine(opts.Alerts, log, optimistic.WithRoleRecheck(w.recheckRole))
	w.sharing = sharing.New(opts.API, w.engine, log)

	var chat dispatch.ChatMarker
	if opts.Socket != nil {
		chat = opts.Socket
	}
	w.dispatcher = dispatch.New(opts.API, w, chat, opts.Store, opts.Presenter, log, dispatch.Config{GraceDelay: opts.GraceDelay})

	var prober live.Prober
	if opts.Socket != nil {
		prober = opts.Socket
	}
	w.feed = live.NewFeed(opts.Feed, opts.API, w.dispatcher, prober, log)
	return w
}

func (w *Workspace) Dispatcher() *dispatch.Dispatcher { return w.dispatcher }
func (w *Workspace) Sharing() *sharing.Workflow       { return w.sharing }
func (w *Workspace) Engine() *optimistic.Engine       { return w.engine }
func (w *Workspace) Feed() *live.Feed                 { return w.feed }

// Board returns the open board, or nil.
func (w *Workspace) Board() *board.Board {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.board
}

// Run starts the socket and the feed and routes socket events until ctx
// ends.
func (w *Workspace) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if w.socket != nil {
		events, cancel := w.socket.Events()
		defer cancel()

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.socket.Run(ctx)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.pump(ctx, events)
		}()
	}
	w.feed.Run(ctx)
	wg.Wait()
}

func (w *Workspace) pump(ctx context.Context, events <-chan live.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		}
	}
}

func (w *Workspace) handleEvent(ev live.Event) {
	switch e := ev.(type) {
	case live.NotificationPushed:
		w.dispatcher.Process([]models.Notification{e.Notification}, false)
	case live.ConnectError:
		w.dispatcher.ConnectFailed(e.Message)
	case live.Connected:
		// catch up on anything pushed while disconnected
		w.feed.Trigger()
	case live.UserJoined:
		w.log.WithFields(logrus.Fields{"user": e.User.UserID, "connections": e.User.Connections}).Debug("user joined list")
	case live.ServerError:
		w.log.WithField("event", e.Err.Event).Warn(e.Err.Message)
	}
}

// OpenList resolves the caller's access, loads the tasks and joins the
// list's chat room.
func (w *Workspace) OpenList(ctx context.Context, listID int) (*board.Board, error) {
	if !w.session.Current().Authenticated() {
		return nil, ErrNotSignedIn
	}
	access, err := w.resolver.Resolve(ctx, listID)
	if err != nil {
		return nil, err
	}
	b := board.New(listID, access, w.api, w.engine, w.log)
	if err := b.Reload(ctx); err != nil {
		return nil, err
	}
	w.loadMembers(ctx, b)

	w.mu.Lock()
	prev := w.board
	w.board = b
	w.mu.Unlock()

	if w.socket != nil {
		if prev != nil && prev.ListID() != listID {
			w.socket.LeaveList(prev.ListID())
		}
		go func() {
			if err := w.socket.JoinList(context.Background(), listID); err != nil {
				w.log.WithError(err).WithField("list", listID).Warn("chat room join deferred")
			}
		}()
	}
	w.log.WithFields(logrus.Fields{"list": listID, "role": access.Role, "owner": access.IsOwner}).Info("list opened")
	return b, nil
}

func (w *Workspace) loadMembers(ctx context.Context, b *board.Board) {
	rows, err := w.sharing.Members(ctx, b.ListID())
	if err != nil {
		w.log.WithError(err).WithField("list", b.ListID()).Debug("members unavailable")
		return
	}
	b.SetMembers(b.List().OwnerID, rows)
}

// CloseList leaves the room and drops the board.
func (w *Workspace) CloseList() {
	w.mu.Lock()
	b := w.board
	w.board = nil
	if b != nil && w.chatList == b.ListID() {
		w.chatList = 0
	}
	w.mu.Unlock()

	if b != nil && w.socket != nil {
		if err := w.socket.LeaveList(b.ListID()); err != nil && !errors.Is(err, live.ErrNotConnected) {
			w.log.WithError(err).Warn("failed to leave chat room")
		}
	}
}

// OpenChat marks the chat panel of a list as visible.
func (w *Workspace) OpenChat(listID int) {
	w.mu.Lock()
	w.chatList = listID
	w.mu.Unlock()
	w.dispatcher.ResetChatUnread(listID)
	if w.socket != nil {
		w.socket.MarkAllRead(listID)
	}
}

func (w *Workspace) CloseChat() {
	w.mu.Lock()
	w.chatList = 0
	w.mu.Unlock()
}

func (w *Workspace) recheckRole(ctx context.Context) {
	if id := w.CurrentList(); id != 0 {
		w.RefreshPermissions(ctx, id)
	}
}

// RefreshPermissions re-resolves access for the open board in place.
func (w *Workspace) RefreshPermissions(ctx context.Context, listID int) {
	b := w.Board()
	if b == nil || b.ListID() != listID {
		return
	}
	access, err := w.resolver.Resolve(ctx, listID)
	if err != nil {
		w.log.WithError(err).WithField("list", listID).Warn("failed to refresh permissions")
		return
	}
	b.SetAccess(access)
	w.log.WithFields(logrus.Fields{"list": listID, "role": access.Role}).Info("permissions refreshed")
}

func (w *Workspace) RefreshMemberships(ctx context.Context) {
	if _, err := w.sharing.PendingInvitations(ctx); err != nil {
		w.log.WithError(err).Debug("failed to refresh invitations")
	}
	if b := w.Board(); b != nil {
		w.loadMembers(ctx, b)
	}
}

func (w *Workspace) ReloadTasks(ctx context.Context, listID int) {
	b := w.Board()
	if b == nil || b.ListID() != listID {
		return
	}
	if err := b.Reload(ctx); err != nil {
		w.log.WithError(err).WithField("list", listID).Warn("failed to reload tasks")
	}
}

func (w *Workspace) CurrentList() int {
	if b := w.Board(); b != nil {
		return b.ListID()
	}
	return 0
}

func (w *Workspace) NavigateAway(path string) {
	w.CloseList()
	w.navigate(path)
}

func (w *Workspace) ChatOpen(listID int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chatList != 0 && w.chatList == listID
}

var _ dispatch.Host = (*Workspace)(nil)
