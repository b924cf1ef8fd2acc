package models

import (
	"encoding/json"
	"fmt"
)

// Role is a permission tier on a list. RoleOwner is implicit: it is derived
// from List.OwnerID and never stored on a membership row.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleAdmin       Role = "admin"
	RoleEditor      Role = "editor"
	RoleColaborador Role = "colaborador"
	RoleLector      Role = "lector"
)

// AllRoles lists every role, highest tier first.
var AllRoles = []Role{RoleOwner, RoleAdmin, RoleEditor, RoleColaborador, RoleLector}

// MemberRoles are the roles that can be granted through a membership.
var MemberRoles = []Role{RoleAdmin, RoleEditor, RoleColaborador, RoleLector}

func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Assignable reports whether the role can be held by a membership row.
func (r Role) Assignable() bool {
	return r != RoleOwner && r.Valid()
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Rank orders roles: owner=5 down to lector=1, unknown=0.
func (r Role) Rank() int {
	for i, role := range AllRoles {
		if role == r {
			return len(AllRoles) - i
		}
	}
	return 0
}

func (r Role) String() string { return string(r) }

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*r = ""
		return nil
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
