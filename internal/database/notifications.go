package database

import (
	"context"
	"fmt"

	"taskeer/internal/models"
)

// CreateNotification stores n and fills in its id and creation time.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	typ, data, err := models.EncodePayload(n.Payload)
	if err != nil {
		return fmt.Errorf("encoding notification payload: %w", err)
	}
	var raw *string
	if len(data) > 0 {
		s := string(data)
		raw = &s
	}
	return db.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, message, data)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 RETURNING id, created_at`,
		n.UserID, string(typ), n.Title, n.Message, raw).Scan(&n.ID, &n.CreatedAt)
}

func scanNotification(row interface{ Scan(...any) error }) (*models.Notification, error) {
	var n models.Notification
	var typ string
	var data []byte
	if err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &data, &n.Read, &n.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	payload, err := models.DecodePayload(models.NotificationType(typ), data)
	if err != nil {
		return nil, fmt.Errorf("decoding notification %d: %w", n.ID, err)
	}
	n.Payload = payload
	return &n, nil
}

const notificationColumns = `id, user_id, type, title, message, data, read, created_at`

// Notifications returns the user's newest notifications and the unread total.
func (db *DB) Notifications(ctx context.Context, userID, limit int) ([]models.Notification, int, error) {
	rows, err := db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var unread int
	err = db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&unread)
	return list, unread, err
}

func (db *DB) Notification(ctx context.Context, id, userID int) (*models.Notification, error) {
	return scanNotification(db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND user_id = $2`, id, userID))
}

func (db *DB) MarkNotificationRead(ctx context.Context, id, userID int) error {
	tag, err := db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return affected(tag)
}

func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID int) (int64, error) {
	tag, err := db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
