package restclient

import (
	"context"
	"fmt"

	"taskeer/internal/models"
)

func (c *Client) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	var task models.Task
	if err := c.post(ctx, "/api/tareas", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, taskID int, req models.UpdateTaskRequest) (*models.Task, error) {
	var task models.Task
	if err := c.put(ctx, fmt.Sprintf("/api/tareas/%d", taskID), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID int) error {
	return c.delete(ctx, fmt.Sprintf("/api/tareas/%d", taskID), nil)
}

func (c *Client) ChangeState(ctx context.Context, taskID int, state models.TaskState) error {
	return c.patch(ctx, fmt.Sprintf("/api/tareas/%d/estado", taskID), models.ChangeStateRequest{State: state}, nil)
}

func (c *Client) SetMyDay(ctx context.Context, taskID int, myDay bool) error {
	return c.patch(ctx, fmt.Sprintf("/api/tareas/%d/mi-dia", taskID), models.MyDayRequest{MyDay: myDay}, nil)
}

func (c *Client) Assign(ctx context.Context, taskID, userID int) error {
	return c.post(ctx, fmt.Sprintf("/api/tareas/%d/asignar", taskID), models.AssignRequest{AssigneeID: userID}, nil)
}

func (c *Client) Unassign(ctx context.Context, taskID int) error {
	return c.delete(ctx, fmt.Sprintf("/api/tareas/%d/asignar", taskID), nil)
}
