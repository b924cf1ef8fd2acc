package board

import (
	"context"
	"slices"

	"taskeer/internal/models"
	"taskeer/internal/optimistic"
)

// Reorder moves a task inside one lane. It is a local permutation of the
// lane's slots in the canonical order and never reaches the server.
func (b *Board) Reorder(l Lane, from, to int) error {
	b.mu.Lock()
	ids := b.lanes[l]
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		b.mu.Unlock()
		return ErrBadIndex
	}
	if from == to {
		b.mu.Unlock()
		return nil
	}
	slots := make([]int, len(ids))
	members := make([]models.Task, len(ids))
	for i, id := range ids {
		slots[i] = b.indexLocked(id)
		members[i] = b.tasks[slots[i]]
	}
	moved := members[from]
	members = slices.Delete(members, from, from+1)
	members = slices.Insert(members, to, moved)
	for i, slot := range slots {
		b.tasks[slot] = members[i]
	}
	b.redistributeLocked()
	b.mu.Unlock()
	b.changes.Publish(struct{}{})
	return nil
}

// Move drags a task to index within a status lane. Within the same lane it
// is a Reorder; across lanes it changes the task state optimistically.
func (b *Board) Move(ctx context.Context, taskID int, to Lane, index int) error {
	state, ok := to.State()
	if !ok {
		return ErrBadLane
	}
	b.mu.RLock()
	access := b.access
	pos := b.indexLocked(taskID)
	var current models.TaskState
	if pos >= 0 {
		current = b.tasks[pos].State
	}
	b.mu.RUnlock()

	if pos < 0 {
		return ErrUnknownTask
	}
	if !access.CanEditTasks() {
		return ErrForbidden
	}
	if current == state {
		lane := b.Lane(to)
		from := slices.IndexFunc(lane, func(t models.Task) bool { return t.ID == taskID })
		if index >= len(lane) {
			index = len(lane) - 1
		}
		if index < 0 {
			index = 0
		}
		return b.Reorder(to, from, index)
	}

	return b.engine.Run(ctx, optimistic.Mutation{
		Name:   "task.state",
		Key:    taskKey(taskID),
		Apply:  func() func() { return b.applyMove(taskID, state, index) },
		Send:   func(ctx context.Context) error { return b.api.ChangeState(ctx, taskID, state) },
		Reload: b.fetch,
		Scope:  b.scope(),
	})
}

func (b *Board) applyMove(taskID int, state models.TaskState, index int) func() {
	b.mu.Lock()
	pos := b.indexLocked(taskID)
	if pos < 0 {
		b.mu.Unlock()
		return nil
	}
	task := b.tasks[pos]
	prevState := task.State
	b.tasks = slices.Delete(b.tasks, pos, pos+1)
	task.State = state

	dest := laneForState(state)
	var slots []int
	for i := range b.tasks {
		if laneForState(b.tasks[i].State) == dest {
			slots = append(slots, i)
		}
	}
	insertAt := min(pos, len(b.tasks))
	switch {
	case len(slots) == 0:
	case index <= 0:
		insertAt = slots[0]
	case index < len(slots):
		insertAt = slots[index]
	default:
		insertAt = slots[len(slots)-1] + 1
	}
	b.tasks = slices.Insert(b.tasks, insertAt, task)
	b.redistributeLocked()
	b.mu.Unlock()
	b.changes.Publish(struct{}{})

	return func() { b.restorePosition(taskID, prevState, pos) }
}

// restorePosition puts a task back at its canonical slot with its old state.
func (b *Board) restorePosition(taskID int, state models.TaskState, pos int) {
	b.mu.Lock()
	cur := b.indexLocked(taskID)
	if cur < 0 {
		b.mu.Unlock()
		return
	}
	task := b.tasks[cur]
	task.State = state
	b.tasks = slices.Delete(b.tasks, cur, cur+1)
	b.tasks = slices.Insert(b.tasks, min(pos, len(b.tasks)), task)
	b.redistributeLocked()
	b.mu.Unlock()
	b.changes.Publish(struct{}{})
}

// edit applies change to one task and returns the func that undoes it.
func (b *Board) edit(taskID int, change func(t *models.Task) (undo func(t *models.Task))) func() {
	b.mu.Lock()
	i := b.indexLocked(taskID)
	if i < 0 {
		b.mu.Unlock()
		return nil
	}
	undo := change(&b.tasks[i])
	b.redistributeLocked()
	b.mu.Unlock()
	b.changes.Publish(struct{}{})

	return func() {
		b.mu.Lock()
		if j := b.indexLocked(taskID); j >= 0 {
			undo(&b.tasks[j])
			b.redistributeLocked()
		}
		b.mu.Unlock()
		b.changes.Publish(struct{}{})
	}
}

func (b *Board) gate(taskID int, allowed func() bool) (models.Task, error) {
	t, ok := b.Task(taskID)
	if !ok {
		return t, ErrUnknownTask
	}
	if !allowed() {
		return t, ErrForbidden
	}
	return t, nil
}

func (b *Board) ToggleMyDay(ctx context.Context, taskID int) error {
	t, err := b.gate(taskID, func() bool { return b.Access().CanEditTasks() })
	if err != nil {
		return err
	}
	want := !t.MyDay
	return b.engine.Run(ctx, optimistic.Mutation{
		Name: "task.my-day",
		Key:  taskKey(taskID),
		Apply: func() func() {
			return b.edit(taskID, func(t *models.Task) func(*models.Task) {
				prev := t.MyDay
				t.MyDay = want
				return func(t *models.Task) { t.MyDay = prev }
			})
		},
		Send:   func(ctx context.Context) error { return b.api.SetMyDay(ctx, taskID, want) },
		Reload: b.fetch,
		Scope:  b.scope(),
	})
}

func (b *Board) Assign(ctx context.Context, taskID, userID int) error {
	if _, err := b.gate(taskID, func() bool { return b.Access().CanAssignTasks() }); err != nil {
		return err
	}
	return b.engine.Run(ctx, optimistic.Mutation{
		Name: "task.assign",
		Key:  taskKey(taskID),
		Validate: func() error {
			b.mu.RLock()
			defer b.mu.RUnlock()
			if b.assignee != nil && !b.assignee[userID] {
				return ErrNotMember
			}
			return nil
		},
		Apply: func() func() {
			return b.edit(taskID, func(t *models.Task) func(*models.Task) {
				prev := t.AssigneeID
				uid := userID
				t.AssigneeID = &uid
				return func(t *models.Task) { t.AssigneeID = prev }
			})
		},
		Send:   func(ctx context.Context) error { return b.api.Assign(ctx, taskID, userID) },
		Reload: b.fetch,
		Scope:  b.scope(),
	})
}

func (b *Board) Unassign(ctx context.Context, taskID int) error {
	if _, err := b.gate(taskID, func() bool { return b.Access().CanAssignTasks() }); err != nil {
		return err
	}
	return b.engine.Run(ctx, optimistic.Mutation{
		Name: "task.unassign",
		Key:  taskKey(taskID),
		Apply: func() func() {
			return b.edit(taskID, func(t *models.Task) func(*models.Task) {
				prev := t.AssigneeID
				t.AssigneeID = nil
				return func(t *models.Task) { t.AssigneeID = prev }
			})
		},
		Send:   func(ctx context.Context) error { return b.api.Unassign(ctx, taskID) },
		Reload: b.fetch,
		Scope:  b.scope(),
	})
}

// Delete removes the task locally first; a rejected delete puts it back in
// the same slot.
func (b *Board) Delete(ctx context.Context, taskID int) error {
	if _, err := b.gate(taskID, func() bool { return b.Access().CanDeleteTasks() }); err != nil {
		return err
	}
	return b.engine.Run(ctx, optimistic.Mutation{
		Name: "task.delete",
		Key:  taskKey(taskID),
		Apply: func() func() {
			b.mu.Lock()
			pos := b.indexLocked(taskID)
			if pos < 0 {
				b.mu.Unlock()
				return nil
			}
			removed := b.tasks[pos]
			b.tasks = slices.Delete(b.tasks, pos, pos+1)
			b.redistributeLocked()
			b.mu.Unlock()
			b.changes.Publish(struct{}{})

			return func() {
				b.mu.Lock()
				if b.indexLocked(taskID) < 0 {
					b.tasks = slices.Insert(b.tasks, min(pos, len(b.tasks)), removed)
					b.redistributeLocked()
				}
				b.mu.Unlock()
				b.changes.Publish(struct{}{})
			}
		},
		Send:   func(ctx context.Context) error { return b.api.DeleteTask(ctx, taskID) },
		Reload: b.fetch,
		Scope:  b.scope(),
	})
}
