package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	maxContentLength = 2000

	handlerTimeout = 5 * time.Second
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readPump pumps frames from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.log.WithError(err).WithField("client", c.ID).Warn("websocket read error")
			}
			break
		}
		c.touch()

		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var frame inboundFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				c.Hub.log.WithError(err).WithField("client", c.ID).Debug("malformed frame")
				c.sendError("", "Formato de mensaje inválido")
				continue
			}
			c.handleFrame(frame)
		}
	}
}

// writePump pumps frames from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server disconnect"))
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			c.writeFrame(w, frame)

			// Add queued frames to the current websocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				c.writeFrame(w, queued)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeFrame(w interface{ Write([]byte) (int, error) }, frame Frame) {
	frame.Time = time.Now().Unix()
	b, err := json.Marshal(frame)
	if err != nil {
		c.Hub.log.WithError(err).WithField("event", frame.Event).Error("failed to marshal frame")
		return
	}
	w.Write(b)
}

func (c *Client) touch() {
	c.mutex.Lock()
	c.lastActivity = time.Now()
	c.mutex.Unlock()
}

func (c *Client) inRoom(listID int) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.rooms[listID]
}

func (c *Client) sendError(event, message string) {
	c.replyDirect(Frame{Event: models.EventError, Data: models.SocketError{Event: event, Message: message}})
}

// replyDirect writes to this connection's queue without going through the
// hub, so other connections of the same user do not see it.
func (c *Client) replyDirect(frame Frame) {
	c.Hub.mutex.RLock()
	defer c.Hub.mutex.RUnlock()
	if !c.Hub.clients[c.User.UserID][c] {
		return
	}
	select {
	case c.Send <- frame:
	default:
	}
}

// handleFrame processes one event from the client
func (c *Client) handleFrame(frame inboundFrame) {
	var req models.RoomRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			c.sendError(frame.Event, "Datos inválidos")
			return
		}
	}
	log := c.Hub.log.WithFields(logrus.Fields{"client": c.ID, "user": c.User.UserID, "event": frame.Event, "list": req.ListID})
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch frame.Event {
	case models.EventJoinList:
		c.handleJoin(ctx, log, req.ListID)

	case models.EventLeaveList:
		if c.Hub.Leave(c, req.ListID) {
			c.Hub.announceLeave(req.ListID, c.User)
		}
		log.Debug("left room")

	case models.EventMessageSend:
		if !c.requireRoom(frame.Event, req.ListID) {
			return
		}
		content := strings.TrimSpace(req.Content)
		if content == "" || len(content) > maxContentLength {
			c.sendError(frame.Event, "El mensaje debe tener entre 1 y 2000 caracteres")
			return
		}
		msg, err := c.Hub.chat.SaveMessage(ctx, req.ListID, c.User.UserID, content)
		if err != nil {
			log.WithError(err).Error("failed to save message")
			c.sendError(frame.Event, "No se pudo enviar el mensaje")
			return
		}
		c.Hub.BroadcastToRoom(req.ListID, models.EventMessageNew, msg, 0)
		if c.Hub.notifier != nil {
			present := make([]int, 0)
			for _, u := range c.Hub.OnlineUsers(req.ListID) {
				present = append(present, u.UserID)
			}
			c.Hub.notifier.NotifyMessage(ctx, msg, present)
		}

	case models.EventMessageEdit:
		content := strings.TrimSpace(req.Content)
		if content == "" || len(content) > maxContentLength {
			c.sendError(frame.Event, "El mensaje debe tener entre 1 y 2000 caracteres")
			return
		}
		msg, err := c.Hub.chat.EditMessage(ctx, req.MessageID, c.User.UserID, content)
		if err != nil {
			c.chatError(log, frame.Event, err)
			return
		}
		c.Hub.BroadcastToRoom(msg.ListID, models.EventMessageEdited, models.MessageEdited{
			MessageID: msg.ID,
			Content:   msg.Content,
			Edited:    true,
			EditedAt:  derefTime(msg.EditedAt),
		}, 0)

	case models.EventMessageDelete:
		listID, err := c.Hub.chat.DeleteMessage(ctx, req.MessageID, c.User.UserID)
		if err != nil {
			c.chatError(log, frame.Event, err)
			return
		}
		c.Hub.BroadcastToRoom(listID, models.EventMessageDeleted, models.MessageDeleted{MessageID: req.MessageID, UserID: c.User.UserID}, 0)

	case models.EventMessageMarkRead:
		listID, err := c.Hub.chat.MarkMessageRead(ctx, req.MessageID, c.User.UserID)
		if err != nil {
			c.chatError(log, frame.Event, err)
			return
		}
		c.Hub.BroadcastToRoom(listID, models.EventMessageRead, models.MessageRead{
			MessageID: req.MessageID,
			UserID:    c.User.UserID,
			Email:     c.User.Email,
		}, 0)

	case models.EventReadAll:
		if !c.requireRoom(frame.Event, req.ListID) {
			return
		}
		n, err := c.Hub.chat.MarkAllMessagesRead(ctx, req.ListID, c.User.UserID)
		if err != nil {
			c.chatError(log, frame.Event, err)
			return
		}
		log.WithField("count", n).Debug("marked all messages read")

	case models.EventTypingStart:
		if c.inRoom(req.ListID) {
			c.Hub.BroadcastToRoom(req.ListID, models.EventTypingUser, models.TypingUser{
				UserID: c.User.UserID,
				Email:  c.User.Email,
				Name:   c.User.Name,
			}, c.User.UserID)
		}

	case models.EventTypingStop:
		if c.inRoom(req.ListID) {
			c.Hub.BroadcastToRoom(req.ListID, models.EventTypingStop, models.TypingUser{UserID: c.User.UserID}, c.User.UserID)
		}

	case models.EventGetOnlineUsers:
		if !c.requireRoom(frame.Event, req.ListID) {
			return
		}
		c.replyDirect(Frame{Event: models.EventUsersOnline, Data: models.OnlineUsers{ListID: req.ListID, Users: c.Hub.OnlineUsers(req.ListID)}})

	case models.EventGetStatistics:
		if !c.requireRoom(frame.Event, req.ListID) {
			return
		}
		total, err := c.Hub.chat.CountMessages(ctx, req.ListID)
		if err != nil {
			c.chatError(log, frame.Event, err)
			return
		}
		c.replyDirect(Frame{Event: models.EventStatistics, Data: models.RoomStatistics{
			ListID:       req.ListID,
			TotalMessage: total,
			OnlineCount:  len(c.Hub.OnlineUsers(req.ListID)),
		}})

	default:
		log.Debug("unknown client event")
		c.sendError(frame.Event, "Evento desconocido")
	}
}

func (c *Client) handleJoin(ctx context.Context, log logrus.FieldLogger, listID int) {
	if listID <= 0 {
		c.sendError(models.EventJoinList, "idLista requerido")
		return
	}
	ok, err := c.Hub.auth.CanJoin(ctx, listID, c.User.UserID)
	if err != nil {
		log.WithError(err).Error("room authorization failed")
		c.sendError(models.EventJoinList, "No se pudo verificar el acceso a la lista")
		return
	}
	if !ok {
		c.sendError(models.EventJoinList, "No tienes acceso a esta lista")
		return
	}

	ack, newcomer := c.Hub.Join(c, listID)
	c.replyDirect(Frame{Event: models.EventJoinSuccess, Data: ack})
	if newcomer {
		c.Hub.BroadcastToRoom(listID, models.EventUserJoined, models.OnlineUser{
			UserID:       c.User.UserID,
			Email:        c.User.Email,
			Name:         c.User.Name,
			LastActivity: time.Now(),
			Connections:  1,
		}, c.User.UserID)
	}
	c.Hub.BroadcastToRoom(listID, models.EventUsersOnline, models.OnlineUsers{ListID: listID, Users: c.Hub.OnlineUsers(listID)}, 0)
	log.WithField("online", ack.OnlineCount).Info("joined room")
}

func (c *Client) requireRoom(event string, listID int) bool {
	if listID <= 0 || !c.inRoom(listID) {
		c.sendError(event, "Debes unirte a la lista primero")
		return false
	}
	return true
}

func (c *Client) chatError(log logrus.FieldLogger, event string, err error) {
	if errors.Is(err, ErrNotAuthor) {
		c.sendError(event, "Solo el autor puede modificar este mensaje")
		return
	}
	log.WithError(err).Error("chat operation failed")
	c.sendError(event, "No se pudo completar la operación")
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Now()
	}
	return *t
}
