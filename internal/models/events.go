package models

// Socket event names on the /chat namespace.
const (
	EventJoinList        = "join:list"
	EventLeaveList       = "leave:list"
	EventMessageSend     = "message:send"
	EventMessageEdit     = "message:edit"
	EventMessageDelete   = "message:delete"
	EventMessageMarkRead = "message:read"
	EventReadAll         = "messages:read_all"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventGetOnlineUsers  = "get:online_users"
	EventGetStatistics   = "get:statistics"

	EventJoinSuccess    = "join:success"
	EventUsersOnline    = "users:online"
	EventUserJoined     = "user:joined"
	EventUserLeft       = "user:left"
	EventMessageNew     = "message:new"
	EventMessageEdited  = "message:edited"
	EventMessageDeleted = "message:deleted"
	EventMessageRead    = "message:read"
	EventTypingUser     = "typing:user"
	EventNotification   = "notification:new"
	EventStatistics     = "statistics"
	EventError          = "error"
)

// RoomRequest is the body of every list-scoped client event.
type RoomRequest struct {
	ListID    int    `json:"idLista"`
	MessageID int    `json:"idMensaje,omitempty"`
	Content   string `json:"contenido,omitempty"`
}

type OnlineUsers struct {
	ListID int          `json:"idLista,omitempty"`
	Users  []OnlineUser `json:"usuarios"`
}
