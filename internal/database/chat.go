package database

import (
	"context"
	"fmt"

	"taskeer/internal/models"
	"taskeer/internal/websocket"
)

const messageColumns = `m.id, m.list_id, m.user_id, m.content, m.edited, m.deleted, m.created_at, m.edited_at,
	u.name, u.email`

func scanMessage(row interface{ Scan(...any) error }) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := row.Scan(&msg.ID, &msg.ListID, &msg.UserID, &msg.Content, &msg.Edited, &msg.Deleted,
		&msg.CreatedAt, &msg.EditedAt, &msg.UserName, &msg.UserEmail)
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (db *DB) SaveMessage(ctx context.Context, listID, userID int, content string) (*models.ChatMessage, error) {
	var id int
	err := db.QueryRow(ctx,
		`INSERT INTO chat_messages (list_id, user_id, content) VALUES ($1, $2, $3) RETURNING id`,
		listID, userID, content).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return db.message(ctx, id)
}

func (db *DB) message(ctx context.Context, id int) (*models.ChatMessage, error) {
	return scanMessage(db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages m JOIN users u ON u.id = m.user_id WHERE m.id = $1`, id))
}

// author returns the author of a live message.
func (db *DB) author(ctx context.Context, messageID int) (int, error) {
	var author int
	err := db.QueryRow(ctx,
		`SELECT user_id FROM chat_messages WHERE id = $1 AND NOT deleted`, messageID).Scan(&author)
	return author, notFound(err)
}

func (db *DB) EditMessage(ctx context.Context, messageID, userID int, content string) (*models.ChatMessage, error) {
	author, err := db.author(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if author != userID {
		return nil, websocket.ErrNotAuthor
	}
	_, err = db.Exec(ctx,
		`UPDATE chat_messages SET content = $2, edited = TRUE, edited_at = NOW() WHERE id = $1`,
		messageID, content)
	if err != nil {
		return nil, err
	}
	return db.message(ctx, messageID)
}

// DeleteMessage soft-deletes the message and returns its list.
func (db *DB) DeleteMessage(ctx context.Context, messageID, userID int) (int, error) {
	author, err := db.author(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if author != userID {
		return 0, websocket.ErrNotAuthor
	}
	var listID int
	err = db.QueryRow(ctx,
		`UPDATE chat_messages SET deleted = TRUE, content = '' WHERE id = $1 RETURNING list_id`,
		messageID).Scan(&listID)
	return listID, notFound(err)
}

func (db *DB) MarkMessageRead(ctx context.Context, messageID, userID int) (int, error) {
	var listID int
	err := db.QueryRow(ctx, `SELECT list_id FROM chat_messages WHERE id = $1`, messageID).Scan(&listID)
	if err != nil {
		return 0, notFound(err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		messageID, userID)
	return listID, err
}

// MarkAllMessagesRead marks every other author's message in the list as read
// and returns how many were newly marked.
func (db *DB) MarkAllMessagesRead(ctx context.Context, listID, userID int) (int, error) {
	tag, err := db.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 SELECT id, $2 FROM chat_messages
		 WHERE list_id = $1 AND user_id <> $2 AND NOT deleted
		 ON CONFLICT DO NOTHING`,
		listID, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (db *DB) CountMessages(ctx context.Context, listID int) (int, error) {
	var n int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE list_id = $1 AND NOT deleted`, listID).Scan(&n)
	return n, err
}

var (
	_ websocket.ChatStore      = (*DB)(nil)
	_ websocket.RoomAuthorizer = (*DB)(nil)
)
