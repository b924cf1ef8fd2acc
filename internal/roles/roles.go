// Package roles decides what a user may do on a list.
package roles

import (
	"errors"

	"taskeer/internal/models"
)

var ErrNoAccess = errors.New("no access to list")

func CanEditTasks(r models.Role) bool {
	switch r {
	case models.RoleOwner, models.RoleAdmin, models.RoleEditor, models.RoleColaborador:
		return true
	}
	return false
}

func CanDeleteTasks(r models.Role) bool {
	switch r {
	case models.RoleOwner, models.RoleAdmin, models.RoleEditor:
		return true
	}
	return false
}

func CanAssignTasks(r models.Role) bool {
	return r == models.RoleOwner || r == models.RoleAdmin
}

func CanShare(r models.Role) bool {
	return r == models.RoleOwner || r == models.RoleAdmin
}

func CanManageMembers(r models.Role) bool {
	return CanShare(r)
}

// CanCreateTasks covers task creation, which needs editor or above.
func CanCreateTasks(r models.Role) bool {
	return r.Rank() >= models.RoleEditor.Rank()
}

// Access is the effective permission of one user on one list.
type Access struct {
	ListID  int
	UserID  int
	IsOwner bool
	Role    models.Role
}

func (a Access) CanEditTasks() bool     { return CanEditTasks(a.Role) }
func (a Access) CanDeleteTasks() bool   { return CanDeleteTasks(a.Role) }
func (a Access) CanAssignTasks() bool   { return CanAssignTasks(a.Role) }
func (a Access) CanShare() bool         { return CanShare(a.Role) }
func (a Access) CanManageMembers() bool { return CanManageMembers(a.Role) }

// ResolveRole compares userID against the list owner and otherwise looks the
// user up among the memberships.
func ResolveRole(list models.List, members []models.Membership, userID int) (Access, error) {
	access := Access{ListID: list.ID, UserID: userID}
	if userID != 0 && list.OwnerID == userID {
		access.IsOwner = true
		access.Role = models.RoleOwner
		return access, nil
	}
	for _, m := range members {
		if m.UserID == userID && m.Role.Assignable() {
			access.Role = m.Role
			return access, nil
		}
	}
	return Access{}, ErrNoAccess
}
