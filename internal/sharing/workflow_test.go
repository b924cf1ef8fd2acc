package sharing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"taskeer/internal/models"
	"taskeer/internal/optimistic"
)

type apiErr struct{ status int }

func (e apiErr) Error() string   { return http.StatusText(e.status) }
func (e apiErr) HTTPStatus() int { return e.status }

type fakeAPI struct {
	keys      []string
	members   []models.Membership
	invited   []models.InviteRequest
	roleErr   error
	removeErr error
	answered  []string
	calls     int
}

func (f *fakeAPI) MakeShareable(ctx context.Context, listID int) (*models.ShareKeyResult, error) {
	f.calls++
	k := f.keys[0]
	f.keys = f.keys[1:]
	res := &models.ShareKeyResult{Key: k}
	res.List.ID, res.List.ShareKey = listID, k
	return res, nil
}

func (f *fakeAPI) JoinByKey(ctx context.Context, key string) (*models.List, error) {
	f.calls++
	if key != "ABC123" {
		return nil, apiErr{http.StatusNotFound}
	}
	return &models.List{ID: 1, Name: "Casa"}, nil
}

func (f *fakeAPI) Members(ctx context.Context, listID int) ([]models.Membership, error) {
	f.calls++
	out := make([]models.Membership, len(f.members))
	copy(out, f.members)
	return out, nil
}

func (f *fakeAPI) Invite(ctx context.Context, listID int, req models.InviteRequest) (*models.Invitation, error) {
	f.calls++
	f.invited = append(f.invited, req)
	return &models.Invitation{Token: "tok", ListID: listID, Email: req.Email, Role: req.Role, Status: models.InvitationPending}, nil
}

func (f *fakeAPI) ChangeRole(ctx context.Context, listID, userID int, role models.Role) error {
	f.calls++
	return f.roleErr
}

func (f *fakeAPI) RemoveMember(ctx context.Context, listID, userID int) error {
	f.calls++
	return f.removeErr
}

func (f *fakeAPI) Leave(ctx context.Context, listID int) error   { f.calls++; return nil }
func (f *fakeAPI) Unshare(ctx context.Context, listID int) error { f.calls++; return nil }
func (f *fakeAPI) SharedLists(ctx context.Context) ([]models.List, error) {
	f.calls++
	return nil, nil
}

func (f *fakeAPI) PendingInvitations(ctx context.Context) ([]models.Invitation, error) {
	f.calls++
	return []models.Invitation{{Token: "t1", ListID: 2, Role: models.RoleEditor, Status: models.InvitationPending}}, nil
}

func (f *fakeAPI) AcceptInvitation(ctx context.Context, token string) error {
	f.calls++
	f.answered = append(f.answered, "accept:"+token)
	return nil
}

func (f *fakeAPI) RejectInvitation(ctx context.Context, token string) error {
	f.calls++
	f.answered = append(f.answered, "reject:"+token)
	return nil
}

func newWorkflow(api *fakeAPI, opts ...optimistic.Option) *Workflow {
	return New(api, optimistic.NewEngine(nil, nil, opts...), nil)
}

func threeMembers() []models.Membership {
	return []models.Membership{
		{ListID: 1, UserID: 2, Role: models.RoleAdmin},
		{ListID: 1, UserID: 3, Role: models.RoleLector},
		{ListID: 1, UserID: 4, Role: models.RoleEditor},
	}
}

func TestRegeneratedKeyReplacesCachedKey(t *testing.T) {
	api := &fakeAPI{keys: []string{"OLD111", "NEW222"}}
	w := newWorkflow(api)
	ctx := context.Background()

	w.MakeShareable(ctx, 1)
	if k, _ := w.CachedKey(1); k != "OLD111" {
		t.Fatalf("cached %q", k)
	}
	res, err := w.MakeShareable(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if k, _ := w.CachedKey(1); k != "NEW222" || res.Key != "NEW222" {
		t.Fatalf("stale key kept: %q", k)
	}
}

func TestInviteValidatesBeforeNetwork(t *testing.T) {
	tests := []struct {
		name  string
		email string
		role  models.Role
		want  error
	}{
		{"bad email", "no-es-correo", models.RoleEditor, ErrInvalidEmail},
		{"empty email", "", models.RoleEditor, ErrInvalidEmail},
		{"owner role", "ana@example.com", models.RoleOwner, ErrInvalidRole},
		{"unknown role", "ana@example.com", models.Role("jefe"), ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			w := newWorkflow(api)
			_, err := w.Invite(context.Background(), 1, tt.email, tt.role)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if api.calls != 0 {
				t.Fatal("invalid invite reached the network")
			}
		})
	}

	api := &fakeAPI{}
	w := newWorkflow(api)
	if _, err := w.Invite(context.Background(), 1, " ana@example.com ", models.RoleColaborador); err != nil {
		t.Fatal(err)
	}
	if len(api.invited) != 1 || api.invited[0].Email != "ana@example.com" {
		t.Fatalf("unexpected invite %+v", api.invited)
	}
}

func TestJoinRejectsEmptyKey(t *testing.T) {
	api := &fakeAPI{}
	w := newWorkflow(api)
	if _, err := w.Join(context.Background(), "  "); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("got %v", err)
	}
	if _, err := w.Join(context.Background(), "STALE1"); err == nil {
		t.Fatal("stale key should fail")
	}
	list, err := w.Join(context.Background(), "ABC123")
	if err != nil || list.ID != 1 {
		t.Fatalf("join: %v %+v", err, list)
	}
}

func TestChangeRoleRecheckAndRevert(t *testing.T) {
	api := &fakeAPI{members: threeMembers()}
	rechecks := 0
	w := newWorkflow(api, optimistic.WithRoleRecheck(func(context.Context) { rechecks++ }))
	ctx := context.Background()
	w.Members(ctx, 1)

	if err := w.ChangeRole(ctx, 1, 3, models.RoleEditor); err != nil {
		t.Fatal(err)
	}
	if got := w.CachedMembers(1)[1].Role; got != models.RoleEditor {
		t.Fatalf("role = %s", got)
	}
	if rechecks != 1 {
		t.Fatalf("rechecks = %d", rechecks)
	}

	api.roleErr = apiErr{http.StatusForbidden}
	err := w.ChangeRole(ctx, 1, 3, models.RoleAdmin)
	if optimistic.KindOf(err) != optimistic.KindForbidden {
		t.Fatalf("expected forbidden failure, got %v", err)
	}
	if got := w.CachedMembers(1)[1].Role; got != models.RoleEditor {
		t.Fatalf("role not reverted: %s", got)
	}
	if rechecks != 1 {
		t.Fatal("failed change must not recheck")
	}
}

func TestChangeRoleValidation(t *testing.T) {
	api := &fakeAPI{members: threeMembers()}
	w := newWorkflow(api)
	ctx := context.Background()
	w.Members(ctx, 1)
	before := api.calls

	if err := w.ChangeRole(ctx, 1, 3, models.RoleOwner); optimistic.KindOf(err) != optimistic.KindValidation {
		t.Fatalf("owner role: %v", err)
	}
	if err := w.ChangeRole(ctx, 1, 99, models.RoleEditor); !errors.Is(err, ErrUnknownMember) {
		t.Fatalf("unknown member: %v", err)
	}
	if api.calls != before {
		t.Fatal("validation failures must not reach the network")
	}
}

func TestRevokeRestoresRowPosition(t *testing.T) {
	api := &fakeAPI{members: threeMembers(), removeErr: apiErr{http.StatusInternalServerError}}
	w := newWorkflow(api)
	ctx := context.Background()
	w.Members(ctx, 1)

	if err := w.Revoke(ctx, 1, 3); err == nil {
		t.Fatal("expected failure")
	}
	rows := w.CachedMembers(1)
	if len(rows) != 3 || rows[1].UserID != 3 {
		t.Fatalf("row not restored in place: %+v", rows)
	}

	api.removeErr = nil
	if err := w.Revoke(ctx, 1, 3); err != nil {
		t.Fatal(err)
	}
	if rows := w.CachedMembers(1); len(rows) != 2 {
		t.Fatalf("row not removed: %+v", rows)
	}
}

func TestInvitationAnswerIsTerminal(t *testing.T) {
	api := &fakeAPI{}
	w := newWorkflow(api)
	ctx := context.Background()
	w.PendingInvitations(ctx)

	if err := w.AcceptInvitation(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if inv, _ := w.Invitation("t1"); inv.Status != models.InvitationAccepted {
		t.Fatalf("status = %s", inv.Status)
	}
	if err := w.RejectInvitation(ctx, "t1"); !errors.Is(err, models.ErrInvitationClosed) {
		t.Fatalf("expected ErrInvitationClosed, got %v", err)
	}
	if len(api.answered) != 1 {
		t.Fatalf("closed invitation reached the network: %v", api.answered)
	}

	// a later poll must not reopen it
	w.PendingInvitations(ctx)
	if inv, _ := w.Invitation("t1"); inv.Status != models.InvitationAccepted {
		t.Fatal("invitation reopened by refresh")
	}
}

func TestUnshareForgetsKeyAndMembers(t *testing.T) {
	api := &fakeAPI{keys: []string{"K1"}, members: threeMembers()}
	w := newWorkflow(api)
	ctx := context.Background()
	w.MakeShareable(ctx, 1)
	w.Members(ctx, 1)

	if err := w.Unshare(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.CachedKey(1); ok || len(w.CachedMembers(1)) != 0 {
		t.Fatal("unshare should drop cached state")
	}
}
