package live

import "taskeer/internal/models"

// Event is one decoded inbound socket event or a connection status change.
// The set of implementations is closed to this package.
type Event interface {
	eventName() string
}

// Connected is published after every successful (re)connect.
type Connected struct{}

// Disconnected is published when an established connection ends.
type Disconnected struct {
	ServerClosed bool
	Err          error
}

// ConnectError is terminal: the socket gave up after MaxAttempts.
type ConnectError struct {
	Attempts int
	Message  string
}

type JoinSuccess struct{ Ack models.JoinAck }

type UsersOnline struct{ Users models.OnlineUsers }

type UserJoined struct{ User models.OnlineUser }

type UserLeft struct{ User models.OnlineUser }

type MessageNew struct{ Message models.ChatMessage }

type MessageEdited struct{ Edit models.MessageEdited }

type MessageDeleted struct{ Delete models.MessageDeleted }

type MessageRead struct{ Read models.MessageRead }

type TypingStarted struct{ User models.TypingUser }

type TypingStopped struct{ User models.TypingUser }

// NotificationPushed carries a notification delivered over the socket.
type NotificationPushed struct{ Notification models.Notification }

type Statistics struct{ Stats models.RoomStatistics }

// ServerError is an "error" event sent by the server.
type ServerError struct{ Err models.SocketError }

func (Connected) eventName() string          { return "connect" }
func (Disconnected) eventName() string       { return "disconnect" }
func (ConnectError) eventName() string       { return "connect_error" }
func (JoinSuccess) eventName() string        { return models.EventJoinSuccess }
func (UsersOnline) eventName() string        { return models.EventUsersOnline }
func (UserJoined) eventName() string         { return models.EventUserJoined }
func (UserLeft) eventName() string           { return models.EventUserLeft }
func (MessageNew) eventName() string         { return models.EventMessageNew }
func (MessageEdited) eventName() string      { return models.EventMessageEdited }
func (MessageDeleted) eventName() string     { return models.EventMessageDeleted }
func (MessageRead) eventName() string        { return models.EventMessageRead }
func (TypingStarted) eventName() string      { return models.EventTypingUser }
func (TypingStopped) eventName() string      { return models.EventTypingStop }
func (NotificationPushed) eventName() string { return models.EventNotification }
func (Statistics) eventName() string         { return models.EventStatistics }
func (ServerError) eventName() string        { return models.EventError }

// Name returns the wire name of an event.
func Name(e Event) string { return e.eventName() }
