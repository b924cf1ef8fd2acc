package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
	"taskeer/internal/pubsub"
)

const ConnectErrorMessage = "No se pudo conectar al servidor de chat después de varios intentos"

var (
	ErrJoinTimeout  = errors.New("timed out waiting for the chat connection")
	ErrNotConnected = errors.New("chat socket is not connected")
	ErrEmptyMessage = errors.New("message content is empty")
	ErrSendQueue    = errors.New("chat send queue is full")
)

// TokenSource supplies the bearer token for the handshake.
type TokenSource interface {
	Token() string
}

type SocketConfig struct {
	// URL is the server base, e.g. http://localhost:3000. The /chat path is
	// appended.
	URL            string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JoinTimeout    time.Duration
	// PongWait bounds how long the connection may stay silent. Any frame,
	// ping or pong extends it.
	PongWait time.Duration
	// PingPeriod is how often the client pings. Must be less than PongWait.
	PingPeriod time.Duration
	Dialer     *websocket.Dialer
}

func (c *SocketConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Socket is the client side of the /chat channel. It reconnects on its own,
// rejoins the current list room and keeps a presence cache for that room.
type Socket struct {
	cfg    SocketConfig
	tokens TokenSource
	log    logrus.FieldLogger
	events *pubsub.Topic[Event]

	mu        sync.Mutex
	connected bool
	failed    bool
	send      chan outbound
	up        chan struct{} // closed while connected
	room      int
	online    map[int]models.OnlineUser
	cancel    context.CancelFunc

	reconnect chan struct{}
}

func NewSocket(cfg SocketConfig, tokens TokenSource, log logrus.FieldLogger) *Socket {
	cfg.defaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Socket{
		cfg:       cfg,
		tokens:    tokens,
		log:       log.WithField("component", "socket"),
		events:    pubsub.NewTopic[Event](64),
		up:        make(chan struct{}),
		online:    make(map[int]models.OnlineUser),
		reconnect: make(chan struct{}, 1),
	}
}

// Events subscribes to decoded inbound events and status changes.
func (s *Socket) Events() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// Run dials and serves the connection until ctx ends or Close is called.
func (s *Socket) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	attempts := 0
	backoff := s.cfg.InitialBackoff
	for ctx.Err() == nil {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			s.log.WithError(err).WithField("attempt", attempts).Warn("chat connection failed")
			if attempts >= s.cfg.MaxAttempts {
				s.setFailed(true)
				s.events.Publish(ConnectError{Attempts: attempts, Message: ConnectErrorMessage})
				s.log.Error("giving up on chat connection")
				select {
				case <-ctx.Done():
					return
				case <-s.reconnect:
					s.setFailed(false)
					attempts, backoff = 0, s.cfg.InitialBackoff
					continue
				}
			}
			wait := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				wait.Stop()
				return
			case <-s.reconnect:
				wait.Stop()
			case <-wait.C:
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
			continue
		}

		attempts, backoff = 0, s.cfg.InitialBackoff
		serverClosed, err := s.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		if serverClosed {
			s.log.Info("server closed the chat connection, reconnecting")
		} else {
			s.log.WithError(err).Warn("chat connection lost, reconnecting")
		}
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := chatURL(s.cfg.URL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if tok := s.tokens.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
	}
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return conn, nil
}

func chatURL(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse chat url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if !strings.HasSuffix(u.Path, "/chat") {
		u = u.JoinPath("chat")
	}
	return u, nil
}

// serve runs one established connection. It reports whether the server ended
// it with a close frame.
func (s *Socket) serve(ctx context.Context, conn *websocket.Conn) (bool, error) {
	send := make(chan outbound, 64)

	s.mu.Lock()
	s.connected = true
	s.send = send
	close(s.up)
	room := s.room
	s.mu.Unlock()

	s.log.Info("chat connected")
	s.events.Publish(Connected{})
	if room != 0 {
		s.enqueue(models.EventJoinList, models.RoomRequest{ListID: room})
	}

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(connCtx, conn, send)
	}()

	serverClosed, err := s.readLoop(conn)
	cancel()
	conn.Close()
	wg.Wait()

	s.mu.Lock()
	s.connected = false
	s.send = nil
	s.up = make(chan struct{})
	s.mu.Unlock()

	s.events.Publish(Disconnected{ServerClosed: serverClosed, Err: err})
	return serverClosed, err
}

func (s *Socket) writeLoop(ctx context.Context, conn *websocket.Conn, send <-chan outbound) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				s.log.WithError(err).Debug("chat ping failed")
				conn.Close()
				return
			}
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
			return
		case out := <-send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(out); err != nil {
				s.log.WithError(err).WithField("event", out.Event).Warn("chat write failed")
				conn.Close()
				return
			}
		}
	}
}

// readLoop decodes frames until the connection fails. A peer that sends
// nothing for PongWait, not even a pong, counts as gone.
func (s *Socket) readLoop(conn *websocket.Conn) (bool, error) {
	alive := func() {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	}
	alive()
	conn.SetPongHandler(func(string) error {
		alive()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		alive()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			return errors.As(err, &ce), err
		}
		alive()
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var in inbound
			if err := json.Unmarshal(line, &in); err != nil {
				s.log.WithError(err).Debug("malformed chat frame")
				continue
			}
			if ev, ok := s.decode(in); ok {
				s.events.Publish(ev)
			}
		}
	}
}

func (s *Socket) decode(in inbound) (Event, bool) {
	var (
		ev  Event
		err error
	)
	switch in.Event {
	case models.EventJoinSuccess:
		var e JoinSuccess
		err = json.Unmarshal(in.Data, &e.Ack)
		ev = e
	case models.EventUsersOnline:
		var e UsersOnline
		if err = json.Unmarshal(in.Data, &e.Users); err == nil {
			s.replaceOnline(e.Users)
		}
		ev = e
	case models.EventUserJoined:
		var e UserJoined
		if err = json.Unmarshal(in.Data, &e.User); err == nil {
			s.mu.Lock()
			s.online[e.User.UserID] = e.User
			s.mu.Unlock()
		}
		ev = e
	case models.EventUserLeft:
		var e UserLeft
		if err = json.Unmarshal(in.Data, &e.User); err == nil {
			s.mu.Lock()
			delete(s.online, e.User.UserID)
			s.mu.Unlock()
		}
		ev = e
	case models.EventMessageNew:
		var e MessageNew
		err = json.Unmarshal(in.Data, &e.Message)
		ev = e
	case models.EventMessageEdited:
		var e MessageEdited
		err = json.Unmarshal(in.Data, &e.Edit)
		ev = e
	case models.EventMessageDeleted:
		var e MessageDeleted
		err = json.Unmarshal(in.Data, &e.Delete)
		ev = e
	case models.EventMessageRead:
		var e MessageRead
		err = json.Unmarshal(in.Data, &e.Read)
		ev = e
	case models.EventTypingUser:
		var e TypingStarted
		err = json.Unmarshal(in.Data, &e.User)
		ev = e
	case models.EventTypingStop:
		var e TypingStopped
		err = json.Unmarshal(in.Data, &e.User)
		ev = e
	case models.EventNotification:
		var e NotificationPushed
		err = json.Unmarshal(in.Data, &e.Notification)
		ev = e
	case models.EventStatistics:
		var e Statistics
		err = json.Unmarshal(in.Data, &e.Stats)
		ev = e
	case models.EventError:
		var e ServerError
		err = json.Unmarshal(in.Data, &e.Err)
		if err == nil {
			s.log.WithFields(logrus.Fields{"event": e.Err.Event, "message": e.Err.Message}).Warn("chat server error")
		}
		ev = e
	default:
		s.log.WithField("event", in.Event).Debug("ignoring unknown chat event")
		return nil, false
	}
	if err != nil {
		s.log.WithError(err).WithField("event", in.Event).Warn("failed to decode chat event")
		return nil, false
	}
	return ev, true
}

func (s *Socket) replaceOnline(users models.OnlineUsers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if users.ListID != 0 && users.ListID != s.room {
		return
	}
	s.online = make(map[int]models.OnlineUser, len(users.Users))
	for _, u := range users.Users {
		s.online[u.UserID] = u
	}
}

// enqueue hands a frame to the writer without waiting for it to be written.
func (s *Socket) enqueue(event string, data any) error {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	select {
	case send <- outbound{Event: event, Data: data}:
		return nil
	default:
		return ErrSendQueue
	}
}

// JoinList makes listID the current room. When disconnected it waits for
// the connection up to the join timeout; the room is remembered either way
// and joined on the next connect.
func (s *Socket) JoinList(ctx context.Context, listID int) error {
	s.mu.Lock()
	prev := s.room
	if prev != listID {
		s.online = make(map[int]models.OnlineUser)
	}
	s.room = listID
	connected := s.connected
	up := s.up
	s.mu.Unlock()

	if connected {
		if prev != 0 && prev != listID {
			s.enqueue(models.EventLeaveList, models.RoomRequest{ListID: prev})
		}
		return s.enqueue(models.EventJoinList, models.RoomRequest{ListID: listID})
	}

	timer := time.NewTimer(s.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-up:
		// serve joins the remembered room on connect
		return nil
	case <-timer.C:
		s.log.WithField("list", listID).Warn("chat not connected, join deferred")
		return ErrJoinTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Socket) LeaveList(listID int) error {
	s.mu.Lock()
	if listID == s.room {
		s.room = 0
		s.online = make(map[int]models.OnlineUser)
	}
	s.mu.Unlock()
	return s.enqueue(models.EventLeaveList, models.RoomRequest{ListID: listID})
}

// CurrentRoom returns the list room the socket is in or will rejoin.
func (s *Socket) CurrentRoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Socket) SendMessage(listID int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	return s.enqueue(models.EventMessageSend, models.RoomRequest{ListID: listID, Content: content})
}

func (s *Socket) EditMessage(messageID int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	return s.enqueue(models.EventMessageEdit, models.RoomRequest{MessageID: messageID, Content: content})
}

func (s *Socket) DeleteMessage(listID, messageID int) error {
	return s.enqueue(models.EventMessageDelete, models.RoomRequest{ListID: listID, MessageID: messageID})
}

func (s *Socket) MarkRead(listID, messageID int) error {
	return s.enqueue(models.EventMessageMarkRead, models.RoomRequest{ListID: listID, MessageID: messageID})
}

func (s *Socket) MarkAllRead(listID int) error {
	return s.enqueue(models.EventReadAll, models.RoomRequest{ListID: listID})
}

func (s *Socket) StartTyping(listID int) error {
	return s.enqueue(models.EventTypingStart, models.RoomRequest{ListID: listID})
}

func (s *Socket) StopTyping(listID int) error {
	return s.enqueue(models.EventTypingStop, models.RoomRequest{ListID: listID})
}

func (s *Socket) RequestOnlineUsers(listID int) error {
	return s.enqueue(models.EventGetOnlineUsers, models.RoomRequest{ListID: listID})
}

func (s *Socket) RequestStatistics(listID int) error {
	return s.enqueue(models.EventGetStatistics, models.RoomRequest{ListID: listID})
}

// OnlineUsers returns the cached presence of the current room.
func (s *Socket) OnlineUsers() []models.OnlineUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.OnlineUser, 0, len(s.online))
	for _, u := range s.online {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Failed reports whether the socket gave up reconnecting.
func (s *Socket) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *Socket) setFailed(v bool) {
	s.mu.Lock()
	s.failed = v
	s.mu.Unlock()
}

// Reconnect cuts short a pending backoff, or restarts the cycle after a
// terminal failure.
func (s *Socket) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Close stops the socket. It does not reconnect afterwards.
func (s *Socket) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
