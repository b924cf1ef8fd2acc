package models

import (
	"errors"
	"fmt"
	"time"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

var ErrInvitationClosed = errors.New("invitation already answered")

type Invitation struct {
	Token     string           `json:"token" db:"token"`
	ListID    int              `json:"idLista" db:"list_id"`
	ListName  string           `json:"nombreLista,omitempty" db:"list_name"`
	Email     string           `json:"email" db:"email"`
	Role      Role             `json:"rol" db:"role"`
	Status    InvitationStatus `json:"estado" db:"status"`
	InvitedBy int              `json:"invitadoPor" db:"invited_by"`
	CreatedAt time.Time        `json:"fechaCreacion" db:"created_at"`
}

// Transition moves a pending invitation to accepted or rejected. Answered
// invitations never reopen.
func (i *Invitation) Transition(to InvitationStatus) error {
	if i.Status != InvitationPending {
		return fmt.Errorf("%w: %s", ErrInvitationClosed, i.Status)
	}
	switch to {
	case InvitationAccepted, InvitationRejected:
		i.Status = to
		return nil
	}
	return fmt.Errorf("invalid invitation transition %s -> %s", i.Status, to)
}
