package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskeer/internal/auth"
	"taskeer/internal/websocket"
)

type WebSocketHandler struct {
	hub   *websocket.Hub
	rooms websocket.RoomAuthorizer
}

func NewWebSocketHandler(hub *websocket.Hub, rooms websocket.RoomAuthorizer) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, rooms: rooms}
}

// HandleWebSocket upgrades HTTP connection to WebSocket
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	email, name := auth.GetIdentity(c)
	h.hub.ServeWS(c, websocket.Identity{UserID: userID, Email: email, Name: name})
}

// GetOnlineUsers returns who is present in a list room.
func (h *WebSocketHandler) GetOnlineUsers(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}
	allowed, err := h.rooms.CanJoin(c.Request.Context(), listID, userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	if !allowed {
		fail(c, http.StatusForbidden, "No tienes acceso a esta lista")
		return
	}

	users := h.hub.OnlineUsers(listID)
	ok(c, http.StatusOK, gin.H{"usuariosOnline": users, "total": len(users)})
}
