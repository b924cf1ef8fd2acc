package restclient

import (
	"context"
	"fmt"

	"taskeer/internal/models"
)

func (c *Client) Notifications(ctx context.Context) (*models.NotificationList, error) {
	var list models.NotificationList
	if err := c.get(ctx, "/api/notificaciones", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	return c.put(ctx, fmt.Sprintf("/api/notificaciones/%d/leer", id), struct{}{}, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.put(ctx, "/api/notificaciones/leer-todas", struct{}{}, nil)
}

func (c *Client) AcceptNotification(ctx context.Context, id int) error {
	return c.post(ctx, fmt.Sprintf("/api/notificaciones/%d/aceptar", id), struct{}{}, nil)
}

func (c *Client) RejectNotification(ctx context.Context, id int) error {
	return c.post(ctx, fmt.Sprintf("/api/notificaciones/%d/rechazar", id), struct{}{}, nil)
}
