// Package localstate keeps client state that must survive a restart in a
// local SQLite file.
package localstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed store for processed notification ids and client
// preferences.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (or creates) the database at path, enables WAL mode and applies
// pending migrations. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// one connection, so ":memory:" stays a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Seen reports whether a notification id was already processed.
func (s *Store) Seen(ctx context.Context, id int) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM processed_notifications WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("checking notification %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) MarkSeen(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO processed_notifications (id, processed_at) VALUES (?, ?)",
		id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("recording notification %d: %w", id, err)
	}
	return nil
}

// Prune forgets ids processed before the cutoff, except those in keep, and
// returns how many were removed. Pass the ids still unread on the server as
// keep so a later snapshot does not alert for them again.
func (s *Store) Prune(ctx context.Context, before time.Time, keep []int) (int64, error) {
	query, args := "DELETE FROM processed_notifications WHERE processed_at < ?", []any{before.UTC()}
	if len(keep) > 0 {
		q, inArgs, err := sqlx.In(" AND id NOT IN (?)", keep)
		if err != nil {
			return 0, fmt.Errorf("building prune query: %w", err)
		}
		query += q
		args = append(args, inArgs...)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("pruning processed notifications: %w", err)
	}
	return res.RowsAffected()
}

// Preference returns a stored value, or "" when unset.
func (s *Store) Preference(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, "SELECT value FROM preferences WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading preference %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("saving preference %s: %w", key, err)
	}
	return nil
}
