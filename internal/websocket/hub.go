package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
)

var ErrNotAuthor = errors.New("only the author can change this message")

// Frame is one event on the wire.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Time  int64  `json:"time,omitempty"`
}

type Target string

const (
	TargetRoom Target = "room"
	TargetUser Target = "user"
)

// Envelope routes a frame to a room or to every connection of a user.
type Envelope struct {
	Target     Target `json:"target"`
	ListID     int    `json:"idLista,omitempty"`
	UserID     int    `json:"idUsuario,omitempty"`
	ExceptUser int    `json:"exceptUser,omitempty"`
	Frame      Frame  `json:"frame"`
}

// RoomAuthorizer decides who may join a list room.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, listID, userID int) (bool, error)
}

// ChatStore persists chat messages.
type ChatStore interface {
	SaveMessage(ctx context.Context, listID, userID int, content string) (*models.ChatMessage, error)
	EditMessage(ctx context.Context, messageID, userID int, content string) (*models.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, userID int) (listID int, err error)
	MarkMessageRead(ctx context.Context, messageID, userID int) (listID int, err error)
	MarkAllMessagesRead(ctx context.Context, listID, userID int) (int, error)
	CountMessages(ctx context.Context, listID int) (int, error)
}

// MessageNotifier is told about every stored message together with the users
// currently present in the room, so absent members can get a notification.
type MessageNotifier interface {
	NotifyMessage(ctx context.Context, msg *models.ChatMessage, present []int)
}

// Publisher fans envelopes out to every hub instance.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID int
	Email  string
	Name   string
}

// Client represents a connected WebSocket client
type Client struct {
	ID   string
	User Identity
	Hub  *Hub
	Conn *websocket.Conn
	Send chan Frame

	mutex        sync.RWMutex
	rooms        map[int]bool
	lastActivity time.Time
}

// Hub maintains the set of active clients, their rooms, and broadcasts frames
type Hub struct {
	// Registered clients by user ID
	clients map[int]map[*Client]bool

	// Clients per list room
	rooms map[int]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Envelope
	done       chan struct{}

	auth      RoomAuthorizer
	chat      ChatStore
	notifier  MessageNotifier
	publisher Publisher
	log       logrus.FieldLogger

	mutex sync.RWMutex
}

func NewHub(auth RoomAuthorizer, chat ChatStore, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[int]map[*Client]bool),
		rooms:      make(map[int]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Envelope, 256),
		done:       make(chan struct{}),
		auth:       auth,
		chat:       chat,
		log:        log.WithField("component", "hub"),
	}
}

func (h *Hub) SetNotifier(n MessageNotifier) { h.notifier = n }

// SetPublisher routes broadcasts through p (e.g. the redis bridge) instead of
// delivering them locally.
func (h *Hub) SetPublisher(p Publisher) { h.publisher = p }

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.clients[client.User.UserID] == nil {
		h.clients[client.User.UserID] = make(map[*Client]bool)
	}
	h.clients[client.User.UserID][client] = true

	h.log.WithFields(logrus.Fields{
		"client": client.ID,
		"user":   client.User.UserID,
		"total":  len(h.clients[client.User.UserID]),
	}).Info("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	clients, ok := h.clients[client.User.UserID]
	if !ok || !clients[client] {
		h.mutex.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.User.UserID)
	}
	left := h.removeFromRoomsLocked(client)
	close(client.Send)
	h.mutex.Unlock()

	for _, listID := range left {
		h.announceLeave(listID, client.User)
	}
	h.log.WithFields(logrus.Fields{"client": client.ID, "user": client.User.UserID}).Info("client unregistered")
}

// removeFromRoomsLocked drops the client from every room and returns the
// rooms the user is no longer present in.
func (h *Hub) removeFromRoomsLocked(client *Client) []int {
	client.mutex.Lock()
	rooms := make([]int, 0, len(client.rooms))
	for listID := range client.rooms {
		rooms = append(rooms, listID)
	}
	client.rooms = make(map[int]bool)
	client.mutex.Unlock()

	var gone []int
	for _, listID := range rooms {
		if members, ok := h.rooms[listID]; ok {
			delete(members, client)
			if !h.userInRoomLocked(listID, client.User.UserID) {
				gone = append(gone, listID)
			}
			if len(members) == 0 {
				delete(h.rooms, listID)
			}
		}
	}
	return gone
}

func (h *Hub) shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	close(h.done)
	for userID, clients := range h.clients {
		for client := range clients {
			close(client.Send)
		}
		delete(h.clients, userID)
	}
	h.rooms = make(map[int]map[*Client]bool)
}

// deliver sends a frame to the local connections an envelope targets.
func (h *Hub) deliver(env Envelope) {
	type departure struct {
		listID int
		user   Identity
	}
	var departed []departure

	h.mutex.Lock()
	var targets []*Client
	switch env.Target {
	case TargetRoom:
		for client := range h.rooms[env.ListID] {
			if env.ExceptUser != 0 && client.User.UserID == env.ExceptUser {
				continue
			}
			targets = append(targets, client)
		}
	case TargetUser:
		for client := range h.clients[env.UserID] {
			targets = append(targets, client)
		}
	}

	for _, client := range targets {
		select {
		case client.Send <- env.Frame:
		default:
			for _, listID := range h.dropLocked(client) {
				departed = append(departed, departure{listID, client.User})
			}
		}
	}
	h.mutex.Unlock()

	for _, d := range departed {
		h.announceLeave(d.listID, d.user)
	}
}

// dropLocked disconnects a client whose send buffer is full and returns the
// rooms its user has left.
func (h *Hub) dropLocked(client *Client) []int {
	clients := h.clients[client.User.UserID]
	if !clients[client] {
		return nil
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.User.UserID)
	}
	left := h.removeFromRoomsLocked(client)
	close(client.Send)
	h.log.WithField("client", client.ID).Warn("dropping slow client")
	return left
}

func (h *Hub) dispatch(env Envelope) {
	if h.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := h.publisher.Publish(ctx, env)
		cancel()
		if err == nil {
			return
		}
		h.log.WithError(err).Warn("publish failed, delivering locally")
	}
	h.Deliver(env)
}

// Deliver queues an envelope for local delivery only.
func (h *Hub) Deliver(env Envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	default:
		// Called from the run loop itself with a full queue.
		go func() {
			select {
			case h.broadcast <- env:
			case <-h.done:
			}
		}()
	}
}

// BroadcastToRoom sends a frame to everyone in a list room.
func (h *Hub) BroadcastToRoom(listID int, event string, data any, exceptUser int) {
	h.dispatch(Envelope{Target: TargetRoom, ListID: listID, ExceptUser: exceptUser, Frame: Frame{Event: event, Data: data}})
}

// SendToUser sends a frame to every connection of a user.
func (h *Hub) SendToUser(userID int, event string, data any) {
	h.dispatch(Envelope{Target: TargetUser, UserID: userID, Frame: Frame{Event: event, Data: data}})
}

// PushNotification delivers a stored notification over the live channel.
func (h *Hub) PushNotification(n models.Notification) {
	h.SendToUser(n.UserID, models.EventNotification, n)
}

// Join adds a client to a room. It returns the acknowledgement and whether
// the user was not present in the room before.
func (h *Hub) Join(client *Client, listID int) (models.JoinAck, bool) {
	h.mutex.Lock()
	newcomer := !h.userInRoomLocked(listID, client.User.UserID)
	if h.rooms[listID] == nil {
		h.rooms[listID] = make(map[*Client]bool)
	}
	h.rooms[listID][client] = true
	client.mutex.Lock()
	client.rooms[listID] = true
	client.mutex.Unlock()
	count := len(h.onlineLocked(listID))
	h.mutex.Unlock()

	return models.JoinAck{ListID: listID, Room: RoomName(listID), OnlineCount: count}, newcomer
}

// Leave removes a client from a room and reports whether the user is gone
// from it entirely.
func (h *Hub) Leave(client *Client, listID int) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client.mutex.Lock()
	wasIn := client.rooms[listID]
	delete(client.rooms, listID)
	client.mutex.Unlock()
	if !wasIn {
		return false
	}
	if members, ok := h.rooms[listID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, listID)
		}
	}
	return !h.userInRoomLocked(listID, client.User.UserID)
}

// Evict removes every connection of a user from a room, e.g. after their
// access was revoked.
func (h *Hub) Evict(listID, userID int) {
	h.mutex.Lock()
	var evicted *Identity
	for client := range h.rooms[listID] {
		if client.User.UserID != userID {
			continue
		}
		delete(h.rooms[listID], client)
		client.mutex.Lock()
		delete(client.rooms, listID)
		client.mutex.Unlock()
		id := client.User
		evicted = &id
	}
	if len(h.rooms[listID]) == 0 {
		delete(h.rooms, listID)
	}
	h.mutex.Unlock()

	if evicted != nil {
		h.announceLeave(listID, *evicted)
	}
}

func (h *Hub) announceLeave(listID int, user Identity) {
	h.BroadcastToRoom(listID, models.EventUserLeft, models.OnlineUser{
		UserID: user.UserID,
		Email:  user.Email,
		Name:   user.Name,
	}, 0)
	h.BroadcastToRoom(listID, models.EventUsersOnline, models.OnlineUsers{ListID: listID, Users: h.OnlineUsers(listID)}, 0)
}

func (h *Hub) userInRoomLocked(listID, userID int) bool {
	for client := range h.rooms[listID] {
		if client.User.UserID == userID {
			return true
		}
	}
	return false
}

// OnlineUsers returns one entry per user present in a room.
func (h *Hub) OnlineUsers(listID int) []models.OnlineUser {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.onlineLocked(listID)
}

func (h *Hub) onlineLocked(listID int) []models.OnlineUser {
	byUser := make(map[int]*models.OnlineUser)
	for client := range h.rooms[listID] {
		client.mutex.RLock()
		last := client.lastActivity
		client.mutex.RUnlock()

		u, ok := byUser[client.User.UserID]
		if !ok {
			u = &models.OnlineUser{UserID: client.User.UserID, Email: client.User.Email, Name: client.User.Name}
			byUser[client.User.UserID] = u
		}
		u.Connections++
		if last.After(u.LastActivity) {
			u.LastActivity = last
		}
	}
	users := make([]models.OnlineUser, 0, len(byUser))
	for _, u := range byUser {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// ConnectedUsers returns the ids of users with at least one connection.
func (h *Hub) ConnectedUsers() []int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	users := make([]int, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	sort.Ints(users)
	return users
}

func RoomName(listID int) string {
	return fmt.Sprintf("lista_%d", listID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(c *gin.Context, id Identity) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:           "client_" + uuid.NewString(),
		User:         id,
		Hub:          h,
		Conn:         conn,
		Send:         make(chan Frame, 256),
		rooms:        make(map[int]bool),
		lastActivity: time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
