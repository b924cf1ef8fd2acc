// Package sharing drives share keys, invitations and list memberships from
// the client side.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
	"taskeer/internal/optimistic"
)

var (
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrInvalidRole   = errors.New("role cannot be assigned")
	ErrUnknownMember = errors.New("user is not a member of the list")
	ErrEmptyKey      = errors.New("share key is empty")
)

// API is the sharing part of the REST client.
type API interface {
	MakeShareable(ctx context.Context, listID int) (*models.ShareKeyResult, error)
	JoinByKey(ctx context.Context, key string) (*models.List, error)
	Members(ctx context.Context, listID int) ([]models.Membership, error)
	Invite(ctx context.Context, listID int, req models.InviteRequest) (*models.Invitation, error)
	ChangeRole(ctx context.Context, listID, userID int, role models.Role) error
	RemoveMember(ctx context.Context, listID, userID int) error
	Leave(ctx context.Context, listID int) error
	Unshare(ctx context.Context, listID int) error
	SharedLists(ctx context.Context) ([]models.List, error)
	PendingInvitations(ctx context.Context) ([]models.Invitation, error)
	AcceptInvitation(ctx context.Context, token string) error
	RejectInvitation(ctx context.Context, token string) error
}

type Workflow struct {
	api      API
	engine   *optimistic.Engine
	validate *validator.Validate
	log      logrus.FieldLogger

	mu          sync.Mutex
	keys        map[int]string
	members     map[int][]models.Membership
	invitations map[string]models.Invitation
}

func New(api API, engine *optimistic.Engine, log logrus.FieldLogger) *Workflow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Workflow{
		api:         api,
		engine:      engine,
		validate:    validator.New(),
		log:         log.WithField("component", "sharing"),
		keys:        make(map[int]string),
		members:     make(map[int][]models.Membership),
		invitations: make(map[string]models.Invitation),
	}
}

// MakeShareable enables sharing for a list, or regenerates its key. The
// cached key is always replaced by the one the server returned.
func (w *Workflow) MakeShareable(ctx context.Context, listID int) (*models.ShareKeyResult, error) {
	res, err := w.api.MakeShareable(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("make list %d shareable: %w", listID, err)
	}
	key := res.Key
	if key == "" {
		key = res.List.ShareKey
	}
	w.mu.Lock()
	if key == "" {
		delete(w.keys, listID)
	} else {
		w.keys[listID] = key
	}
	w.mu.Unlock()
	return res, nil
}

// CachedKey returns the last key the server issued for a list.
func (w *Workflow) CachedKey(listID int) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k, ok := w.keys[listID]
	return k, ok
}

func (w *Workflow) Join(ctx context.Context, key string) (*models.List, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	list, err := w.api.JoinByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("join list by key: %w", err)
	}
	return list, nil
}

// Invite checks the address and role locally before sending the invitation.
func (w *Workflow) Invite(ctx context.Context, listID int, email string, role models.Role) (*models.Invitation, error) {
	email = strings.TrimSpace(email)
	if err := w.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if !role.Assignable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	inv, err := w.api.Invite(ctx, listID, models.InviteRequest{Email: email, Role: role})
	if err != nil {
		return nil, fmt.Errorf("invite %s to list %d: %w", email, listID, err)
	}
	return inv, nil
}

// Members fetches the membership rows of a list and caches them.
func (w *Workflow) Members(ctx context.Context, listID int) ([]models.Membership, error) {
	rows, err := w.api.Members(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list %d members: %w", listID, err)
	}
	w.mu.Lock()
	w.members[listID] = slices.Clone(rows)
	w.mu.Unlock()
	return rows, nil
}

// CachedMembers returns the rows as currently known locally, optimistic
// changes included.
func (w *Workflow) CachedMembers(listID int) []models.Membership {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.members[listID])
}

func (w *Workflow) reloadMembers(listID int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := w.Members(ctx, listID)
		return err
	}
}

func (w *Workflow) memberIndexLocked(listID, userID int) int {
	return slices.IndexFunc(w.members[listID], func(m models.Membership) bool { return m.UserID == userID })
}

func memberKey(listID, userID int) string {
	return fmt.Sprintf("member:%d:%d", listID, userID)
}

// ChangeRole updates a member's role optimistically.
func (w *Workflow) ChangeRole(ctx context.Context, listID, userID int, role models.Role) error {
	return w.engine.Run(ctx, optimistic.Mutation{
		Name: "member.role",
		Key:  memberKey(listID, userID),
		Validate: func() error {
			if !role.Assignable() {
				return fmt.Errorf("%w: %q", ErrInvalidRole, role)
			}
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.memberIndexLocked(listID, userID) < 0 {
				return ErrUnknownMember
			}
			return nil
		},
		Apply: func() func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			i := w.memberIndexLocked(listID, userID)
			if i < 0 {
				return nil
			}
			prev := w.members[listID][i].Role
			w.members[listID][i].Role = role
			return func() {
				w.mu.Lock()
				defer w.mu.Unlock()
				if j := w.memberIndexLocked(listID, userID); j >= 0 {
					w.members[listID][j].Role = prev
				}
			}
		},
		Send:          func(ctx context.Context) error { return w.api.ChangeRole(ctx, listID, userID, role) },
		Reload:        w.reloadMembers(listID),
		Scope:         fmt.Sprintf("members:%d", listID),
		RoleAffecting: true,
	})
}

// Revoke removes a member optimistically. The server notifies the revoked
// user; nothing here navigates.
func (w *Workflow) Revoke(ctx context.Context, listID, userID int) error {
	return w.engine.Run(ctx, optimistic.Mutation{
		Name: "member.revoke",
		Key:  memberKey(listID, userID),
		Validate: func() error {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.memberIndexLocked(listID, userID) < 0 {
				return ErrUnknownMember
			}
			return nil
		},
		Apply: func() func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			i := w.memberIndexLocked(listID, userID)
			if i < 0 {
				return nil
			}
			row := w.members[listID][i]
			w.members[listID] = slices.Delete(w.members[listID], i, i+1)
			return func() {
				w.mu.Lock()
				defer w.mu.Unlock()
				rows := w.members[listID]
				w.members[listID] = slices.Insert(rows, min(i, len(rows)), row)
			}
		},
		Send:          func(ctx context.Context) error { return w.api.RemoveMember(ctx, listID, userID) },
		Reload:        w.reloadMembers(listID),
		Scope:         fmt.Sprintf("members:%d", listID),
		RoleAffecting: true,
	})
}

func (w *Workflow) Leave(ctx context.Context, listID int) error {
	if err := w.api.Leave(ctx, listID); err != nil {
		return fmt.Errorf("leave list %d: %w", listID, err)
	}
	w.forget(listID)
	return nil
}

// Unshare turns sharing off for a list; the server drops its key and members.
func (w *Workflow) Unshare(ctx context.Context, listID int) error {
	if err := w.api.Unshare(ctx, listID); err != nil {
		return fmt.Errorf("unshare list %d: %w", listID, err)
	}
	w.forget(listID)
	return nil
}

func (w *Workflow) forget(listID int) {
	w.mu.Lock()
	delete(w.keys, listID)
	delete(w.members, listID)
	w.mu.Unlock()
}

func (w *Workflow) SharedLists(ctx context.Context) ([]models.List, error) {
	lists, err := w.api.SharedLists(ctx)
	if err != nil {
		return nil, fmt.Errorf("shared lists: %w", err)
	}
	return lists, nil
}

// PendingInvitations fetches the invitations addressed to the current user.
func (w *Workflow) PendingInvitations(ctx context.Context) ([]models.Invitation, error) {
	invs, err := w.api.PendingInvitations(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending invitations: %w", err)
	}
	w.mu.Lock()
	for _, inv := range invs {
		if inv.Status == "" {
			inv.Status = models.InvitationPending
		}
		if known, ok := w.invitations[inv.Token]; ok && known.Status != models.InvitationPending {
			continue
		}
		w.invitations[inv.Token] = inv
	}
	w.mu.Unlock()
	return invs, nil
}

func (w *Workflow) AcceptInvitation(ctx context.Context, token string) error {
	return w.answer(ctx, token, models.InvitationAccepted, w.api.AcceptInvitation)
}

func (w *Workflow) RejectInvitation(ctx context.Context, token string) error {
	return w.answer(ctx, token, models.InvitationRejected, w.api.RejectInvitation)
}

func (w *Workflow) answer(ctx context.Context, token string, to models.InvitationStatus, send func(context.Context, string) error) error {
	w.mu.Lock()
	inv, known := w.invitations[token]
	w.mu.Unlock()
	if known {
		// check the transition before going to the network
		probe := inv
		if err := probe.Transition(to); err != nil {
			return err
		}
	}

	if err := send(ctx, token); err != nil {
		return fmt.Errorf("%s invitation: %w", to, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	inv, known = w.invitations[token]
	if !known {
		inv = models.Invitation{Token: token, Status: models.InvitationPending}
	}
	if err := inv.Transition(to); err != nil {
		return err
	}
	w.invitations[token] = inv
	return nil
}

// Invitation returns the locally known state of an invitation.
func (w *Workflow) Invitation(token string) (models.Invitation, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inv, ok := w.invitations[token]
	return inv, ok
}
