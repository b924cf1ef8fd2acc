package models

import "time"

type ChatMessage struct {
	ID         int        `json:"idMensaje" db:"id"`
	ListID     int        `json:"idLista" db:"list_id"`
	UserID     int        `json:"idUsuario" db:"user_id"`
	Content    string     `json:"contenido" db:"content"`
	Edited     bool       `json:"editado" db:"edited"`
	Deleted    bool       `json:"eliminado" db:"deleted"`
	CreatedAt  time.Time  `json:"fechaCreacion" db:"created_at"`
	EditedAt   *time.Time `json:"fechaEdicion,omitempty" db:"edited_at"`
	UserName   string     `json:"nombreUsuario,omitempty" db:"user_name"`
	UserEmail  string     `json:"emailUsuario,omitempty" db:"user_email"`
	TotalReads int        `json:"totalLecturas,omitempty" db:"total_reads"`
}

// OnlineUser is the presence of one user in a list room.
type OnlineUser struct {
	UserID       int       `json:"idUsuario"`
	Email        string    `json:"email"`
	Name         string    `json:"nombre,omitempty"`
	LastActivity time.Time `json:"ultimaActividad"`
	Connections  int       `json:"conexionesActivas"`
}

type JoinAck struct {
	ListID      int    `json:"idLista"`
	Room        string `json:"room"`
	OnlineCount int    `json:"usuariosOnline"`
}

type MessageEdited struct {
	MessageID int       `json:"idMensaje"`
	Content   string    `json:"contenido"`
	Edited    bool      `json:"editado"`
	EditedAt  time.Time `json:"fechaEdicion"`
}

type MessageDeleted struct {
	MessageID int `json:"idMensaje"`
	UserID    int `json:"idUsuario"`
}

type MessageRead struct {
	MessageID int    `json:"idMensaje"`
	UserID    int    `json:"idUsuario"`
	Email     string `json:"email"`
}

type TypingUser struct {
	UserID int    `json:"idUsuario"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"nombre,omitempty"`
}

type RoomStatistics struct {
	ListID       int `json:"idLista"`
	TotalMessage int `json:"totalMensajes"`
	OnlineCount  int `json:"usuariosOnline"`
}

// SocketError is the payload of the "error" event.
type SocketError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
