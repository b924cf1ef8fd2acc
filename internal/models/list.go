package models

import (
	"errors"
	"time"
)

var ErrShareKeyInvariant = errors.New("share key must be set if and only if the list is shareable")

type List struct {
	ID          int       `json:"idLista" db:"id"`
	Name        string    `json:"nombre" db:"name"`
	OwnerID     int       `json:"idUsuario" db:"owner_id"`
	Shareable   bool      `json:"compartible" db:"shareable"`
	ShareKey    *string   `json:"claveCompartir,omitempty" db:"share_key"`
	CategoryID  *int      `json:"idCategoria,omitempty" db:"category_id"`
	Color       string    `json:"color,omitempty" db:"color"`
	Icon        string    `json:"icono,omitempty" db:"icon"`
	Important   bool      `json:"importante" db:"important"`
	CreatedAt   time.Time `json:"fechaCreacion" db:"created_at"`
	UpdatedAt   time.Time `json:"fechaActualizacion" db:"updated_at"`
	Tasks       []Task    `json:"tareas,omitempty"`
	MyRole      Role      `json:"miRol,omitempty"`
	OwnerName   string    `json:"nombrePropietario,omitempty"`
	MemberCount int       `json:"totalUsuarios,omitempty"`
}

func (l *List) Validate() error {
	hasKey := l.ShareKey != nil && *l.ShareKey != ""
	if hasKey != l.Shareable {
		return ErrShareKeyInvariant
	}
	return nil
}

// Membership grants a non-owner user a role on a list.
type Membership struct {
	ListID   int       `json:"idLista" db:"list_id"`
	UserID   int       `json:"idUsuario" db:"user_id"`
	Role     Role      `json:"rol" db:"role"`
	Email    string    `json:"email" db:"email"`
	Name     string    `json:"nombre" db:"name"`
	JoinedAt time.Time `json:"fechaAgregado" db:"joined_at"`
}

// PermissionInfo is the sharing summary of a list as seen by the caller.
type PermissionInfo struct {
	List    List         `json:"lista"`
	Owner   User         `json:"propietario"`
	Members []Membership `json:"usuarios"`
	MyRole  Role         `json:"miRol"`
	IsOwner bool         `json:"esPropietario"`
}

// ShareKeyResult is returned when a list is made shareable or its key regenerated.
type ShareKeyResult struct {
	Key  string `json:"clave"`
	URL  string `json:"url"`
	List struct {
		ID       int    `json:"idLista"`
		ShareKey string `json:"claveCompartir"`
	} `json:"lista"`
}

type CreateListRequest struct {
	Name       string `json:"nombre" validate:"required,min=1,max=255"`
	CategoryID *int   `json:"idCategoria"`
	Color      string `json:"color" validate:"omitempty,max=20"`
	Icon       string `json:"icono" validate:"omitempty,max=50"`
	Important  bool   `json:"importante"`
}

type UpdateListRequest struct {
	Name       *string `json:"nombre,omitempty" validate:"omitempty,min=1,max=255"`
	CategoryID *int    `json:"idCategoria,omitempty"`
	Color      *string `json:"color,omitempty" validate:"omitempty,max=20"`
	Icon       *string `json:"icono,omitempty" validate:"omitempty,max=50"`
	Important  *bool   `json:"importante,omitempty"`
}

type JoinByKeyRequest struct {
	Key string `json:"clave" validate:"required"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"rol" validate:"required,oneof=admin editor colaborador lector"`
}

type ChangeRoleRequest struct {
	Role Role `json:"rol" validate:"required,oneof=admin editor colaborador lector"`
}
