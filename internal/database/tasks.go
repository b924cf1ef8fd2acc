package database

import (
	"context"
	"encoding/json"
	"fmt"

	"taskeer/internal/models"
)

const taskColumns = `id, list_id, creator_id, name, description, state, priority, due_date,
	my_day, assignee_id, important, steps, repetition, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var state, priority string
	var steps, repetition []byte
	err := row.Scan(&t.ID, &t.ListID, &t.CreatorID, &t.Name, &t.Description, &state, &priority, &t.DueDate,
		&t.MyDay, &t.AssigneeID, &t.Important, &steps, &repetition, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.State = models.TaskState(state)
	t.Priority = models.Priority(priority)
	t.Steps = []string{}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &t.Steps); err != nil {
			return nil, fmt.Errorf("decoding steps of task %d: %w", t.ID, err)
		}
	}
	if len(repetition) > 0 && string(repetition) != "null" {
		t.Repetition = &models.Repetition{}
		if err := json.Unmarshal(repetition, t.Repetition); err != nil {
			return nil, fmt.Errorf("decoding repetition of task %d: %w", t.ID, err)
		}
	}
	return &t, nil
}

// jsonArg renders v for a JSONB parameter; nil stays NULL.
func jsonArg(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func (db *DB) TasksForList(ctx context.Context, listID int) ([]models.Task, error) {
	rows, err := db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE list_id = $1 ORDER BY created_at, id`, listID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (db *DB) GetTask(ctx context.Context, taskID int) (*models.Task, error) {
	return scanTask(db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
}

func (db *DB) CreateTask(ctx context.Context, creatorID int, req models.CreateTaskRequest) (*models.Task, error) {
	if req.State == "" {
		req.State = models.StatePending
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if req.Steps == nil {
		req.Steps = []string{}
	}
	steps, err := jsonArg(req.Steps)
	if err != nil {
		return nil, err
	}
	var rep *string
	if req.Repetition != nil {
		if rep, err = jsonArg(req.Repetition); err != nil {
			return nil, err
		}
	}
	return scanTask(db.QueryRow(ctx,
		`INSERT INTO tasks (list_id, creator_id, name, description, state, priority, due_date, my_day, important, steps, repetition)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb)
		 RETURNING `+taskColumns,
		req.ListID, creatorID, req.Name, req.Description, string(req.State), string(req.Priority),
		req.DueDate, req.MyDay, req.Important, steps, rep))
}

func (db *DB) UpdateTask(ctx context.Context, taskID int, req models.UpdateTaskRequest) (*models.Task, error) {
	var steps, rep *string
	var err error
	if req.Steps != nil {
		if steps, err = jsonArg(req.Steps); err != nil {
			return nil, err
		}
	}
	if req.Repetition != nil {
		if rep, err = jsonArg(req.Repetition); err != nil {
			return nil, err
		}
	}
	var priority *string
	if req.Priority != nil {
		p := string(*req.Priority)
		priority = &p
	}
	return scanTask(db.QueryRow(ctx,
		`UPDATE tasks SET
		 name = COALESCE($2, name),
		 description = COALESCE($3, description),
		 priority = COALESCE($4, priority),
		 due_date = COALESCE($5, due_date),
		 important = COALESCE($6, important),
		 steps = COALESCE($7::jsonb, steps),
		 repetition = COALESCE($8::jsonb, repetition),
		 updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		taskID, req.Name, req.Description, priority, req.DueDate, req.Important, steps, rep))
}

func (db *DB) DeleteTask(ctx context.Context, taskID int) error {
	tag, err := db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	return affected(tag)
}

func (db *DB) SetTaskState(ctx context.Context, taskID int, state models.TaskState) error {
	tag, err := db.Exec(ctx,
		`UPDATE tasks SET state = $2, updated_at = NOW() WHERE id = $1`, taskID, string(state))
	if err != nil {
		return err
	}
	return affected(tag)
}

func (db *DB) SetMyDay(ctx context.Context, taskID int, myDay bool) error {
	tag, err := db.Exec(ctx,
		`UPDATE tasks SET my_day = $2, updated_at = NOW() WHERE id = $1`, taskID, myDay)
	if err != nil {
		return err
	}
	return affected(tag)
}

// SetAssignee assigns the task; nil clears the assignment.
func (db *DB) SetAssignee(ctx context.Context, taskID int, userID *int) error {
	tag, err := db.Exec(ctx,
		`UPDATE tasks SET assignee_id = $2, updated_at = NOW() WHERE id = $1`, taskID, userID)
	if err != nil {
		return err
	}
	return affected(tag)
}
