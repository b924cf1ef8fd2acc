package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskeer/internal/models"
)

const invitationColumns = `i.token, i.list_id, l.name, i.email, i.role, i.status, i.invited_by, i.created_at`

func scanInvitation(row interface{ Scan(...any) error }) (*models.Invitation, error) {
	var inv models.Invitation
	var role, status string
	err := row.Scan(&inv.Token, &inv.ListID, &inv.ListName, &inv.Email, &role, &status, &inv.InvitedBy, &inv.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	inv.Role = models.Role(role)
	inv.Status = models.InvitationStatus(status)
	return &inv, nil
}

// CreateInvitation stores a pending invitation under a fresh token.
func (db *DB) CreateInvitation(ctx context.Context, listID int, email string, role models.Role, invitedBy int) (*models.Invitation, error) {
	token := uuid.NewString()
	_, err := db.Exec(ctx,
		`INSERT INTO invitations (token, list_id, email, role, invited_by) VALUES ($1, $2, LOWER($3), $4, $5)`,
		token, listID, email, string(role), invitedBy)
	if err != nil {
		return nil, fmt.Errorf("inserting invitation: %w", err)
	}
	return db.Invitation(ctx, token)
}

func (db *DB) Invitation(ctx context.Context, token string) (*models.Invitation, error) {
	return scanInvitation(db.QueryRow(ctx,
		`SELECT `+invitationColumns+`
		 FROM invitations i JOIN lists l ON l.id = i.list_id
		 WHERE i.token = $1`, token))
}

func (db *DB) PendingInvitations(ctx context.Context, email string) ([]models.Invitation, error) {
	rows, err := db.Query(ctx,
		`SELECT `+invitationColumns+`
		 FROM invitations i JOIN lists l ON l.id = i.list_id
		 WHERE i.email = LOWER($1) AND i.status = 'pending'
		 ORDER BY i.created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("querying invitations: %w", err)
	}
	defer rows.Close()

	invs := []models.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

// AnswerInvitation moves a pending invitation to its final status. Accepting
// also adds userID as a member with the invited role. Answered invitations
// return models.ErrInvitationClosed.
func (db *DB) AnswerInvitation(ctx context.Context, token string, userID int, to models.InvitationStatus) (*models.Invitation, error) {
	var inv *models.Invitation
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		var err error
		inv, err = scanInvitation(tx.QueryRow(ctx,
			`SELECT `+invitationColumns+`
			 FROM invitations i JOIN lists l ON l.id = i.list_id
			 WHERE i.token = $1
			 FOR UPDATE OF i`, token))
		if err != nil {
			return err
		}
		if err := inv.Transition(to); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE invitations SET status = $2 WHERE token = $1`, token, string(to)); err != nil {
			return err
		}
		if to != models.InvitationAccepted {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO list_members (list_id, user_id, role) VALUES ($1, $2, $3)
			 ON CONFLICT (list_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
			inv.ListID, userID, string(inv.Role))
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}
