package restclient

import (
	"context"
	"fmt"

	"taskeer/internal/models"
)

func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.post(ctx, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.get(ctx, "/api/usuarios/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Lists(ctx context.Context) ([]models.List, error) {
	var lists []models.List
	if err := c.get(ctx, "/api/listas", &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

func (c *Client) GetList(ctx context.Context, listID int) (*models.List, error) {
	var list models.List
	if err := c.get(ctx, fmt.Sprintf("/api/listas/%d", listID), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CreateList(ctx context.Context, req models.CreateListRequest) (*models.List, error) {
	var list models.List
	if err := c.post(ctx, "/api/listas", req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListTasks returns the list with its tasks embedded.
func (c *Client) ListTasks(ctx context.Context, listID int) (*models.List, error) {
	var list models.List
	if err := c.get(ctx, fmt.Sprintf("/api/listas/%d/tareas", listID), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// MakeShareable marks the list shareable and returns a freshly issued key.
// Each call replaces the previous key.
func (c *Client) MakeShareable(ctx context.Context, listID int) (*models.ShareKeyResult, error) {
	var res models.ShareKeyResult
	if err := c.put(ctx, fmt.Sprintf("/api/listas/%d/compartir", listID), struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
