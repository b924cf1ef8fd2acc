// Package board is the client-side model of one list's tasks, split into
// lanes, with optimistic state transitions.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
	"taskeer/internal/optimistic"
	"taskeer/internal/pubsub"
	"taskeer/internal/roles"
)

var (
	ErrForbidden   = errors.New("not allowed by current role")
	ErrUnknownTask = errors.New("task not on this board")
	ErrBadLane     = errors.New("not a status lane")
	ErrBadIndex    = errors.New("index out of range")
	ErrNotMember   = errors.New("assignee is not a member of the list")
)

// TaskAPI is the backend surface the board mutates through.
type TaskAPI interface {
	ListTasks(ctx context.Context, listID int) (*models.List, error)
	ChangeState(ctx context.Context, taskID int, state models.TaskState) error
	SetMyDay(ctx context.Context, taskID int, myDay bool) error
	Assign(ctx context.Context, taskID, userID int) error
	Unassign(ctx context.Context, taskID int) error
	DeleteTask(ctx context.Context, taskID int) error
}

type Board struct {
	listID int
	api    TaskAPI
	engine *optimistic.Engine
	log    logrus.FieldLogger
	now    func() time.Time

	mu       sync.RWMutex
	list     models.List
	tasks    []models.Task
	lanes    map[Lane][]int
	access   roles.Access
	assignee map[int]bool

	changes *pubsub.Topic[struct{}]
}

func New(listID int, access roles.Access, api TaskAPI, engine *optimistic.Engine, log logrus.FieldLogger) *Board {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Board{
		listID:  listID,
		api:     api,
		engine:  engine,
		log:     log.WithField("list", listID),
		now:     time.Now,
		access:  access,
		changes: pubsub.NewTopic[struct{}](4),
	}
	b.lanes = redistribute(nil, b.now())
	return b
}

func (b *Board) ListID() int { return b.listID }

// scope names the task collection in the engine's reload bookkeeping.
func (b *Board) scope() string { return fmt.Sprintf("board:%d", b.listID) }

// Updates signals after every change of the lanes.
func (b *Board) Updates() (<-chan struct{}, func()) {
	return b.changes.Subscribe()
}

// Load replaces the canonical task list and redistributes.
func (b *Board) Load(list models.List) {
	b.mu.Lock()
	b.list = list
	b.tasks = append([]models.Task(nil), list.Tasks...)
	b.list.Tasks = nil
	b.redistributeLocked()
	b.mu.Unlock()
	b.changes.Publish(struct{}{})
}

// Redistribute rederives every lane from the canonical order, e.g. when the
// day rolls over and overdue membership changes.
func (b *Board) Redistribute() {
	b.mu.Lock()
	b.redistributeLocked()
	b.mu.Unlock()
	b.changes.Publish(struct{}{})
}

// Reload fetches the task collection from the server.
func (b *Board) Reload(ctx context.Context) error {
	return b.engine.Reload(ctx, b.scope(), b.fetch)
}

func (b *Board) fetch(ctx context.Context) error {
	list, err := b.api.ListTasks(ctx, b.listID)
	if err != nil {
		return fmt.Errorf("loading tasks of list %d: %w", b.listID, err)
	}
	b.Load(*list)
	b.log.WithField("tasks", len(list.Tasks)).Debug("board reloaded")
	return nil
}

// SetAccess swaps the capability set in place, e.g. after a role change.
func (b *Board) SetAccess(a roles.Access) {
	b.mu.Lock()
	b.access = a
	b.mu.Unlock()
	b.changes.Publish(struct{}{})
}

func (b *Board) Access() roles.Access {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.access
}

// SetMembers records who may be assigned tasks: the owner plus members.
func (b *Board) SetMembers(ownerID int, members []models.Membership) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assignee = map[int]bool{ownerID: true}
	for _, m := range members {
		b.assignee[m.UserID] = true
	}
}

func (b *Board) List() models.List {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.list
}

// Tasks returns the canonical order.
func (b *Board) Tasks() []models.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Task(nil), b.tasks...)
}

// Lane returns the tasks of a lane in display order.
func (b *Board) Lane(l Lane) []models.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.lanes[l]
	out := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		if i := b.indexLocked(id); i >= 0 {
			out = append(out, b.tasks[i])
		}
	}
	return out
}

func (b *Board) Task(id int) (models.Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.indexLocked(id); i >= 0 {
		return b.tasks[i], true
	}
	return models.Task{}, false
}

// LaneOf returns the status lane a task sits in.
func (b *Board) LaneOf(id int) (Lane, bool) {
	t, ok := b.Task(id)
	if !ok {
		return "", false
	}
	return laneForState(t.State), true
}

func (b *Board) indexLocked(id int) int {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) redistributeLocked() {
	b.lanes = redistribute(b.tasks, b.now())
}

func taskKey(id int) string { return fmt.Sprintf("task:%d", id) }
