package database

import (
	"context"
	"fmt"
)

type tableDef struct {
	name string
	ddl  string
}

// tables are created in order; later tables reference earlier ones.
var tables = []tableDef{
	{"users", `
		CREATE TABLE users (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"lists", `
		CREATE TABLE lists (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			shareable BOOLEAN NOT NULL DEFAULT FALSE,
			share_key VARCHAR(64) UNIQUE,
			category_id INTEGER,
			color VARCHAR(20) NOT NULL DEFAULT '',
			icon VARCHAR(50) NOT NULL DEFAULT '',
			important BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((shareable AND share_key IS NOT NULL) OR (NOT shareable AND share_key IS NULL))
		);

		CREATE INDEX idx_lists_owner_id ON lists(owner_id);
	`},
	{"list_members", `
		CREATE TABLE list_members (
			list_id INTEGER NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL CHECK (role IN ('admin', 'editor', 'colaborador', 'lector')),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (list_id, user_id)
		);

		CREATE INDEX idx_list_members_user_id ON list_members(user_id);
	`},
	{"tasks", `
		CREATE TABLE tasks (
			id SERIAL PRIMARY KEY,
			list_id INTEGER REFERENCES lists(id) ON DELETE CASCADE,
			creator_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			state CHAR(1) NOT NULL DEFAULT 'P' CHECK (state IN ('P', 'N', 'C')),
			priority CHAR(1) NOT NULL DEFAULT 'N' CHECK (priority IN ('A', 'N', 'B')),
			due_date TIMESTAMPTZ,
			my_day BOOLEAN NOT NULL DEFAULT FALSE,
			assignee_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
			important BOOLEAN NOT NULL DEFAULT FALSE,
			steps JSONB NOT NULL DEFAULT '[]',
			repetition JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX idx_tasks_list_id ON tasks(list_id);
		CREATE INDEX idx_tasks_assignee_id ON tasks(assignee_id);
	`},
	{"invitations", `
		CREATE TABLE invitations (
			token VARCHAR(64) PRIMARY KEY,
			list_id INTEGER NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			email VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL CHECK (role IN ('admin', 'editor', 'colaborador', 'lector')),
			status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
			invited_by INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX idx_invitations_email ON invitations(email);
		CREATE INDEX idx_invitations_status ON invitations(status);
	`},
	{"notifications", `
		CREATE TABLE notifications (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(40) NOT NULL,
			title VARCHAR(255) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			data JSONB,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX idx_notifications_user_id ON notifications(user_id);
		CREATE INDEX idx_notifications_unread ON notifications(user_id) WHERE NOT read;
	`},
	{"chat_messages", `
		CREATE TABLE chat_messages (
			id SERIAL PRIMARY KEY,
			list_id INTEGER NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			edited_at TIMESTAMPTZ
		);

		CREATE INDEX idx_chat_messages_list_id ON chat_messages(list_id, created_at);
	`},
	{"message_reads", `
		CREATE TABLE message_reads (
			message_id INTEGER NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, user_id)
		);
	`},
}

// Migrate creates every missing table.
func Migrate(ctx context.Context, db *DB) error {
	for _, t := range tables {
		var exists bool
		err := db.QueryRow(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", t.name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check %s table: %w", t.name, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}
