package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"taskeer/internal/models"
)

type fakeAuth struct {
	members map[int]bool
}

func (f fakeAuth) CanJoin(ctx context.Context, listID, userID int) (bool, error) {
	return f.members[userID], nil
}

type fakeChat struct {
	mu       sync.Mutex
	messages map[int]*models.ChatMessage
	nextID   int
}

func newFakeChat() *fakeChat {
	return &fakeChat{messages: make(map[int]*models.ChatMessage)}
}

func (f *fakeChat) SaveMessage(ctx context.Context, listID, userID int, content string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := &models.ChatMessage{ID: f.nextID, ListID: listID, UserID: userID, Content: content, CreatedAt: time.Now()}
	f.messages[m.ID] = m
	return m, nil
}

func (f *fakeChat) EditMessage(ctx context.Context, messageID, userID int, content string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.UserID != userID {
		return nil, ErrNotAuthor
	}
	now := time.Now()
	m.Content, m.Edited, m.EditedAt = content, true, &now
	return m, nil
}

func (f *fakeChat) DeleteMessage(ctx context.Context, messageID, userID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.UserID != userID {
		return 0, ErrNotAuthor
	}
	m.Deleted = true
	return m.ListID, nil
}

func (f *fakeChat) MarkMessageRead(ctx context.Context, messageID, userID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[messageID].ListID, nil
}

func (f *fakeChat) MarkAllMessagesRead(ctx context.Context, listID, userID int) (int, error) {
	return 0, nil
}

func (f *fakeChat) CountMessages(ctx context.Context, listID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	present [][]int
}

func (r *recordingNotifier) NotifyMessage(ctx context.Context, msg *models.ChatMessage, present []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.present = append(r.present, present)
}

func startHub(t *testing.T, members ...int) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	allowed := make(map[int]bool)
	for _, m := range members {
		allowed[m] = true
	}
	hub := NewHub(fakeAuth{members: allowed}, newFakeChat(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/chat", func(c *gin.Context) {
		uid, _ := strconv.Atoi(c.Query("uid"))
		hub.ServeWS(c, Identity{UserID: uid, Email: fmt.Sprintf("u%d@example.com", uid)})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, uid int) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat?uid=" + strconv.Itoa(uid)
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *gws.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// expect reads frames until one with the given event arrives.
func expect(t *testing.T, conn *gws.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			var f received
			if json.Unmarshal(line, &f) == nil && f.Event == event {
				return f.Data
			}
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	hub, srv := startHub(t, 1)
	conn := dial(t, srv, 1)

	emit(t, conn, models.EventJoinList, models.RoomRequest{ListID: 7})
	var first models.JoinAck
	json.Unmarshal(expect(t, conn, models.EventJoinSuccess), &first)

	emit(t, conn, models.EventJoinList, models.RoomRequest{ListID: 7})
	var second models.JoinAck
	json.Unmarshal(expect(t, conn, models.EventJoinSuccess), &second)

	if first.OnlineCount != 1 || second.OnlineCount != 1 {
		t.Fatalf("expected 1 online after both joins, got %d and %d", first.OnlineCount, second.OnlineCount)
	}
	if first.Room != "lista_7" {
		t.Fatalf("unexpected room %q", first.Room)
	}
	if n := len(hub.OnlineUsers(7)); n != 1 {
		t.Fatalf("expected one presence entry, got %d", n)
	}
}

func TestPresenceCountsConnectionsPerUser(t *testing.T) {
	hub, srv := startHub(t, 1, 2)
	a1 := dial(t, srv, 1)
	a2 := dial(t, srv, 1)
	b := dial(t, srv, 2)

	for _, c := range []*gws.Conn{a1, a2, b} {
		emit(t, c, models.EventJoinList, models.RoomRequest{ListID: 3})
		expect(t, c, models.EventJoinSuccess)
	}

	users := hub.OnlineUsers(3)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %+v", users)
	}
	if users[0].UserID != 1 || users[0].Connections != 2 {
		t.Fatalf("expected user 1 with 2 connections, got %+v", users[0])
	}

	emit(t, b, models.EventLeaveList, models.RoomRequest{ListID: 3})
	var left models.OnlineUser
	json.Unmarshal(expect(t, a1, models.EventUserLeft), &left)
	if left.UserID != 2 {
		t.Fatalf("expected user 2 to leave, got %+v", left)
	}
	waitFor(t, func() bool { return len(hub.OnlineUsers(3)) == 1 })
}

func TestJoinDeniedForNonMember(t *testing.T) {
	_, srv := startHub(t, 1)
	conn := dial(t, srv, 9)

	emit(t, conn, models.EventJoinList, models.RoomRequest{ListID: 7})
	var e models.SocketError
	json.Unmarshal(expect(t, conn, models.EventError), &e)
	if e.Event != models.EventJoinList {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestChatFlow(t *testing.T) {
	hub, srv := startHub(t, 1, 2)
	notifier := &recordingNotifier{}
	hub.SetNotifier(notifier)
	a := dial(t, srv, 1)
	b := dial(t, srv, 2)
	for _, c := range []*gws.Conn{a, b} {
		emit(t, c, models.EventJoinList, models.RoomRequest{ListID: 5})
		expect(t, c, models.EventJoinSuccess)
	}

	emit(t, a, models.EventMessageSend, models.RoomRequest{ListID: 5, Content: "  hola  "})
	var msg models.ChatMessage
	json.Unmarshal(expect(t, b, models.EventMessageNew), &msg)
	if msg.Content != "hola" || msg.UserID != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}

	emit(t, b, models.EventMessageEdit, models.RoomRequest{MessageID: msg.ID, Content: "robado"})
	var e models.SocketError
	json.Unmarshal(expect(t, b, models.EventError), &e)
	if e.Event != models.EventMessageEdit {
		t.Fatalf("expected edit error, got %+v", e)
	}

	emit(t, a, models.EventMessageEdit, models.RoomRequest{MessageID: msg.ID, Content: "hola!"})
	var edited models.MessageEdited
	json.Unmarshal(expect(t, b, models.EventMessageEdited), &edited)
	if edited.Content != "hola!" || !edited.Edited {
		t.Fatalf("unexpected edit %+v", edited)
	}

	emit(t, a, models.EventTypingStart, models.RoomRequest{ListID: 5})
	var typing models.TypingUser
	json.Unmarshal(expect(t, b, models.EventTypingUser), &typing)
	if typing.UserID != 1 {
		t.Fatalf("unexpected typing %+v", typing)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.present) != 1 || len(notifier.present[0]) != 2 {
		t.Fatalf("unexpected notifier calls %+v", notifier.present)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	_, srv := startHub(t, 1)
	conn := dial(t, srv, 1)
	emit(t, conn, models.EventJoinList, models.RoomRequest{ListID: 1})
	expect(t, conn, models.EventJoinSuccess)

	emit(t, conn, models.EventMessageSend, models.RoomRequest{ListID: 1, Content: "   "})
	var e models.SocketError
	json.Unmarshal(expect(t, conn, models.EventError), &e)
	if e.Event != models.EventMessageSend {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestEvictRemovesUserFromRoom(t *testing.T) {
	hub, srv := startHub(t, 1, 2)
	a := dial(t, srv, 1)
	b := dial(t, srv, 2)
	for _, c := range []*gws.Conn{a, b} {
		emit(t, c, models.EventJoinList, models.RoomRequest{ListID: 4})
		expect(t, c, models.EventJoinSuccess)
	}

	hub.Evict(4, 2)
	var left models.OnlineUser
	json.Unmarshal(expect(t, a, models.EventUserLeft), &left)
	if left.UserID != 2 {
		t.Fatalf("expected user 2 evicted, got %+v", left)
	}
	if n := len(hub.OnlineUsers(4)); n != 1 {
		t.Fatalf("expected one user left, got %d", n)
	}
}

func TestDroppedSlowClientLeavesPresence(t *testing.T) {
	hub, srv := startHub(t, 1)
	a := dial(t, srv, 1)
	emit(t, a, models.EventJoinList, models.RoomRequest{ListID: 4})
	expect(t, a, models.EventJoinSuccess)

	// A connection that never drains its send buffer.
	slow := &Client{
		ID:    "slow",
		User:  Identity{UserID: 2, Email: "u2@example.com"},
		Hub:   hub,
		Send:  make(chan Frame, 1),
		rooms: map[int]bool{4: true},
	}
	slow.Send <- Frame{Event: "filler"}
	hub.mutex.Lock()
	hub.clients[2] = map[*Client]bool{slow: true}
	hub.rooms[4][slow] = true
	hub.mutex.Unlock()

	hub.BroadcastToRoom(4, models.EventTypingUser, map[string]any{"idLista": 4}, 0)

	var left models.OnlineUser
	json.Unmarshal(expect(t, a, models.EventUserLeft), &left)
	if left.UserID != 2 {
		t.Fatalf("expected user 2 to leave, got %+v", left)
	}
	var online models.OnlineUsers
	json.Unmarshal(expect(t, a, models.EventUsersOnline), &online)
	if len(online.Users) != 1 || online.Users[0].UserID != 1 {
		t.Fatalf("presence after drop = %+v", online.Users)
	}
}

func TestPushNotificationReachesUser(t *testing.T) {
	hub, srv := startHub(t, 1)
	conn := dial(t, srv, 1)
	waitFor(t, func() bool { return len(hub.ConnectedUsers()) == 1 })

	hub.PushNotification(models.Notification{
		ID:      11,
		UserID:  1,
		Payload: models.TaskAssignedPayload{ListID: 2, TaskID: 3},
	})
	var n models.Notification
	if err := json.Unmarshal(expect(t, conn, models.EventNotification), &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.ID != 11 || n.Payload.Type() != models.TypeTaskAssigned {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestBridgeDeliversAcrossInstances(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()

	hubA, _ := startHub(t, 1)
	hubB, srvB := startHub(t, 1)

	rcA := redis.NewClient(&redis.Options{Addr: m.Addr()})
	rcB := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rcA.Close()
	defer rcB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridgeA := NewBridge(rcA, "", hubA, nil)
	bridgeB := NewBridge(rcB, "", hubB, nil)
	hubA.SetPublisher(bridgeA)
	hubB.SetPublisher(bridgeB)
	go bridgeA.Run(ctx)
	go bridgeB.Run(ctx)
	for _, b := range []*Bridge{bridgeA, bridgeB} {
		select {
		case <-b.Ready():
		case <-time.After(2 * time.Second):
			t.Fatal("bridge not ready")
		}
	}

	conn := dial(t, srvB, 1)
	waitFor(t, func() bool { return len(hubB.ConnectedUsers()) == 1 })

	hubA.SendToUser(1, models.EventStatistics, models.RoomStatistics{ListID: 8, TotalMessage: 4})
	var stats models.RoomStatistics
	json.Unmarshal(expect(t, conn, models.EventStatistics), &stats)
	if stats.ListID != 8 || stats.TotalMessage != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
