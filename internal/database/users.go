package database

import (
	"context"

	"taskeer/internal/models"
)

const userColumns = `id, name, email, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	u, err := scanUser(db.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash)
		 VALUES ($1, LOWER($2), $3)
		 RETURNING `+userColumns,
		name, email, passwordHash))
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	return u, err
}

// UserByEmail includes the password hash.
func (db *DB) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email))
}

func (db *DB) UserByID(ctx context.Context, id int) (*models.User, error) {
	u, err := scanUser(db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	u.PasswordHash = nil
	return u, nil
}
