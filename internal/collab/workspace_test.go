package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskeer/internal/models"
	"taskeer/internal/restclient"
	"taskeer/internal/session"
)

// fakeBackend serves the endpoints a workspace touches for list 4.
type fakeBackend struct {
	mu        sync.Mutex
	role      models.Role
	taskLoads atomic.Int32
}

func (f *fakeBackend) setRole(r models.Role) {
	f.mu.Lock()
	f.role = r
	f.mu.Unlock()
}

func (f *fakeBackend) handler() http.Handler {
	ok := func(w http.ResponseWriter, data any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/compartir/lista/4/info", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		role := f.role
		f.mu.Unlock()
		if role == "" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Sin acceso"})
			return
		}
		ok(w, models.PermissionInfo{
			List:   models.List{ID: 4, Name: "Casa", OwnerID: 1},
			Owner:  models.User{ID: 1},
			MyRole: role,
		})
	})
	mux.HandleFunc("GET /api/listas/4", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Sin acceso"})
	})
	mux.HandleFunc("GET /api/listas/4/tareas", func(w http.ResponseWriter, r *http.Request) {
		f.taskLoads.Add(1)
		ok(w, models.List{ID: 4, Name: "Casa", OwnerID: 1, Tasks: []models.Task{
			{ID: 10, Name: "Pan", State: models.StatePending},
		}})
	})
	mux.HandleFunc("GET /api/compartir/lista/4/usuarios", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []models.Membership{{ListID: 4, UserID: 2, Role: models.RoleLector}})
	})
	mux.HandleFunc("GET /api/compartir/invitaciones/pendientes", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []models.Invitation{})
	})
	return mux
}

func newWorkspace(t *testing.T, backend *fakeBackend, navigate func(string)) *Workspace {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	sess := session.New()
	sess.Login("tok", models.User{ID: 2, Email: "bea@example.com"})
	return New(Options{
		API:        restclient.New(srv.URL, sess, nil),
		Session:    sess,
		GraceDelay: 10 * time.Millisecond,
		Navigate:   navigate,
	})
}

func TestRoleChangeUpdatesAccessWithoutReload(t *testing.T) {
	backend := &fakeBackend{role: models.RoleLector}
	w := newWorkspace(t, backend, nil)

	b, err := w.OpenList(context.Background(), 4)
	if err != nil {
		t.Fatalf("open list: %v", err)
	}
	if b.Access().CanEditTasks() {
		t.Fatal("lector must not edit")
	}
	loads := backend.taskLoads.Load()

	backend.setRole(models.RoleEditor)
	w.Dispatcher().Process([]models.Notification{{
		ID:      1,
		UserID:  2,
		Payload: models.RoleChangedPayload{ListID: 4, OldRole: models.RoleLector, NewRole: models.RoleEditor},
	}}, false)

	if got := b.Access().Role; got != models.RoleEditor {
		t.Fatalf("role = %s, want editor", got)
	}
	if !b.Access().CanEditTasks() {
		t.Fatal("editor should edit")
	}
	if backend.taskLoads.Load() != loads {
		t.Fatal("role change must not reload the task collection")
	}
}

func TestTaskAssignedReloadsOpenBoard(t *testing.T) {
	backend := &fakeBackend{role: models.RoleEditor}
	w := newWorkspace(t, backend, nil)
	w.OpenList(context.Background(), 4)
	loads := backend.taskLoads.Load()

	w.Dispatcher().Process([]models.Notification{{
		ID:      2,
		Payload: models.TaskAssignedPayload{ListID: 4, TaskID: 10},
	}}, false)
	if backend.taskLoads.Load() != loads+1 {
		t.Fatal("expected one reload")
	}

	w.Dispatcher().Process([]models.Notification{{
		ID:      3,
		Payload: models.TaskAssignedPayload{ListID: 99, TaskID: 1},
	}}, false)
	if backend.taskLoads.Load() != loads+1 {
		t.Fatal("other lists must not reload the open board")
	}
}

func TestRevokedAccessClosesOpenList(t *testing.T) {
	backend := &fakeBackend{role: models.RoleEditor}
	navigated := make(chan string, 1)
	w := newWorkspace(t, backend, func(path string) { navigated <- path })
	w.OpenList(context.Background(), 4)

	backend.setRole("")
	w.Dispatcher().Process([]models.Notification{{
		ID:      5,
		Payload: models.AccessRevokedPayload{ListID: 4, RevokedBy: 1},
	}}, false)

	select {
	case path := <-navigated:
		if path != "/app/mi-dia" {
			t.Fatalf("navigated to %s", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation after revoke")
	}
	if w.Board() != nil || w.CurrentList() != 0 {
		t.Fatal("board should be closed")
	}
}

func TestOpenListDenied(t *testing.T) {
	w := newWorkspace(t, &fakeBackend{}, nil)
	if _, err := w.OpenList(context.Background(), 4); err == nil {
		t.Fatal("expected access error")
	}
	if w.Board() != nil {
		t.Fatal("no board on denial")
	}
}

func TestChatOpenTracksPanel(t *testing.T) {
	w := newWorkspace(t, &fakeBackend{role: models.RoleEditor}, nil)
	w.Dispatcher().Process([]models.Notification{{ID: 7, Payload: models.MessagePayload{ListID: 4}}}, false)
	if w.Dispatcher().ChatUnread(4) != 1 {
		t.Fatal("closed chat should count unread")
	}

	w.OpenChat(4)
	if !w.ChatOpen(4) || w.ChatOpen(5) {
		t.Fatal("chat panel state wrong")
	}
	if w.Dispatcher().ChatUnread(4) != 0 {
		t.Fatal("opening chat resets the counter")
	}
	w.CloseChat()
	if w.ChatOpen(4) {
		t.Fatal("chat should be closed")
	}
}
