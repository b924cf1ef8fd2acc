package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType is the wire value of Notification.tipo.
type NotificationType string

const (
	TypeInvitation    NotificationType = "invitacion_lista"
	TypeTaskAssigned  NotificationType = "tarea_asignada"
	TypeRoleChanged   NotificationType = "cambio_rol_lista"
	TypeMessage       NotificationType = "mensaje_chat"
	TypeAccessRevoked NotificationType = "acceso_revocado"
	TypeOther         NotificationType = "otro"
)

// Payload is the closed set of notification bodies. Handlers implement
// PayloadVisitor so a new payload kind breaks every visitor at compile time.
type Payload interface {
	Accept(v PayloadVisitor, n *Notification)
	Type() NotificationType
}

type PayloadVisitor interface {
	VisitInvitation(n *Notification, p InvitationPayload)
	VisitTaskAssigned(n *Notification, p TaskAssignedPayload)
	VisitRoleChanged(n *Notification, p RoleChangedPayload)
	VisitMessage(n *Notification, p MessagePayload)
	VisitAccessRevoked(n *Notification, p AccessRevokedPayload)
	VisitOther(n *Notification, p OtherPayload)
}

type InvitationPayload struct {
	Token     string `json:"token"`
	ListID    int    `json:"idLista"`
	ListName  string `json:"nombreLista,omitempty"`
	Role      Role   `json:"rol"`
	InvitedBy string `json:"invitadoPor,omitempty"`
}

type TaskAssignedPayload struct {
	ListID   int    `json:"idLista"`
	TaskID   int    `json:"idTarea"`
	TaskName string `json:"nombreTarea,omitempty"`
}

type RoleChangedPayload struct {
	ListID   int    `json:"idLista"`
	ListName string `json:"nombreLista,omitempty"`
	OldRole  Role   `json:"rolAnterior"`
	NewRole  Role   `json:"rolNuevo"`
}

type MessagePayload struct {
	ListID    int    `json:"idLista"`
	MessageID int    `json:"idMensaje"`
	From      string `json:"remitente,omitempty"`
}

type AccessRevokedPayload struct {
	ListID    int    `json:"idLista"`
	ListName  string `json:"nombreLista,omitempty"`
	RevokedBy int    `json:"revocadoPor"`
}

// OtherPayload carries any tipo this client does not model, verbatim.
type OtherPayload struct {
	RawType NotificationType
	Data    json.RawMessage
}

func (p InvitationPayload) Accept(v PayloadVisitor, n *Notification)    { v.VisitInvitation(n, p) }
func (p TaskAssignedPayload) Accept(v PayloadVisitor, n *Notification)  { v.VisitTaskAssigned(n, p) }
func (p RoleChangedPayload) Accept(v PayloadVisitor, n *Notification)   { v.VisitRoleChanged(n, p) }
func (p MessagePayload) Accept(v PayloadVisitor, n *Notification)       { v.VisitMessage(n, p) }
func (p AccessRevokedPayload) Accept(v PayloadVisitor, n *Notification) { v.VisitAccessRevoked(n, p) }
func (p OtherPayload) Accept(v PayloadVisitor, n *Notification)         { v.VisitOther(n, p) }

func (InvitationPayload) Type() NotificationType    { return TypeInvitation }
func (TaskAssignedPayload) Type() NotificationType  { return TypeTaskAssigned }
func (RoleChangedPayload) Type() NotificationType   { return TypeRoleChanged }
func (MessagePayload) Type() NotificationType       { return TypeMessage }
func (AccessRevokedPayload) Type() NotificationType { return TypeAccessRevoked }
func (p OtherPayload) Type() NotificationType       { return p.RawType }

type Notification struct {
	ID        int
	UserID    int
	Title     string
	Message   string
	Payload   Payload
	Read      bool
	CreatedAt time.Time
}

// wireNotification is the JSON shape exchanged with the backend.
type wireNotification struct {
	ID        int              `json:"idNotificacion"`
	UserID    int              `json:"idUsuario"`
	Type      NotificationType `json:"tipo"`
	Title     string           `json:"titulo"`
	Message   string           `json:"mensaje"`
	Data      json.RawMessage  `json:"datos,omitempty"`
	Read      flexBool         `json:"leida"`
	CreatedAt time.Time        `json:"fechaCreacion"`
}

func (n Notification) MarshalJSON() ([]byte, error) {
	t, data, err := EncodePayload(n.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireNotification{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      t,
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		Read:      flexBool(n.Read),
		CreatedAt: n.CreatedAt,
	})
}

// EncodePayload is the inverse of DecodePayload.
func EncodePayload(p Payload) (NotificationType, json.RawMessage, error) {
	if p == nil {
		return TypeOther, nil, nil
	}
	if other, ok := p.(OtherPayload); ok {
		if other.RawType == "" {
			return TypeOther, other.Data, nil
		}
		return other.RawType, other.Data, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	return p.Type(), data, nil
}

func (n *Notification) UnmarshalJSON(b []byte) error {
	var w wireNotification
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	payload, err := DecodePayload(w.Type, w.Data)
	if err != nil {
		return fmt.Errorf("notification %d: %w", w.ID, err)
	}
	*n = Notification{
		ID:        w.ID,
		UserID:    w.UserID,
		Title:     w.Title,
		Message:   w.Message,
		Payload:   payload,
		Read:      bool(w.Read),
		CreatedAt: w.CreatedAt,
	}
	return nil
}

// DecodePayload turns a tipo/datos pair into a typed payload. Unknown types
// decode as OtherPayload; "otro" carrying revocadoPor is an access revocation.
func DecodePayload(t NotificationType, data json.RawMessage) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = json.RawMessage("{}")
	}
	switch t {
	case TypeInvitation:
		return decodeAs[InvitationPayload](data)
	case TypeTaskAssigned:
		return decodeAs[TaskAssignedPayload](data)
	case TypeRoleChanged:
		return decodeAs[RoleChangedPayload](data)
	case TypeMessage:
		return decodeAs[MessagePayload](data)
	case TypeAccessRevoked:
		return decodeAs[AccessRevokedPayload](data)
	case TypeOther:
		var probe struct {
			RevokedBy *int `json:"revocadoPor"`
		}
		if json.Unmarshal(data, &probe) == nil && probe.RevokedBy != nil {
			return decodeAs[AccessRevokedPayload](data)
		}
	}
	return OtherPayload{RawType: t, Data: data}, nil
}

func decodeAs[T Payload](data json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// flexBool accepts true/false as well as 0/1.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
	case "false", "0", `"0"`, `"false"`, "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", b)
	}
	return nil
}

// NotificationList is the GET /api/notificaciones response.
type NotificationList struct {
	Notifications []Notification `json:"notificaciones"`
	Unread        int            `json:"cantidadNoLeidas"`
}
