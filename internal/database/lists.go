package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskeer/internal/models"
	"taskeer/internal/roles"
)

const listColumns = `l.id, l.name, l.owner_id, l.shareable, l.share_key, l.category_id,
	l.color, l.icon, l.important, l.created_at, l.updated_at`

func scanList(row interface{ Scan(...any) error }, extra ...any) (*models.List, error) {
	var l models.List
	dest := append([]any{&l.ID, &l.Name, &l.OwnerID, &l.Shareable, &l.ShareKey, &l.CategoryID,
		&l.Color, &l.Icon, &l.Important, &l.CreatedAt, &l.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// ListsForUser returns the lists the user owns or belongs to, with the
// caller's role filled in.
func (db *DB) ListsForUser(ctx context.Context, userID int) ([]models.List, error) {
	rows, err := db.Query(ctx,
		`SELECT `+listColumns+`,
		 CASE WHEN l.owner_id = $1 THEN 'owner' ELSE m.role END AS my_role,
		 (SELECT COUNT(*) FROM list_members lm WHERE lm.list_id = l.id) AS member_count
		 FROM lists l
		 LEFT JOIN list_members m ON m.list_id = l.id AND m.user_id = $1
		 WHERE l.owner_id = $1 OR m.user_id IS NOT NULL
		 ORDER BY l.updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying lists: %w", err)
	}
	defer rows.Close()

	lists := []models.List{}
	for rows.Next() {
		var role string
		var count int
		l, err := scanList(rows, &role, &count)
		if err != nil {
			return nil, fmt.Errorf("scanning list: %w", err)
		}
		l.MyRole = models.Role(role)
		l.MemberCount = count
		lists = append(lists, *l)
	}
	return lists, rows.Err()
}

func (db *DB) CreateList(ctx context.Context, ownerID int, req models.CreateListRequest) (*models.List, error) {
	l, err := scanList(db.QueryRow(ctx,
		`INSERT INTO lists AS l (name, owner_id, category_id, color, icon, important)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+listColumns,
		req.Name, ownerID, req.CategoryID, req.Color, req.Icon, req.Important))
	if err != nil {
		return nil, err
	}
	l.MyRole = models.RoleOwner
	return l, nil
}

func (db *DB) GetList(ctx context.Context, listID int) (*models.List, error) {
	return scanList(db.QueryRow(ctx, `SELECT `+listColumns+` FROM lists l WHERE l.id = $1`, listID))
}

func (db *DB) UpdateList(ctx context.Context, listID int, req models.UpdateListRequest) (*models.List, error) {
	return scanList(db.QueryRow(ctx,
		`UPDATE lists AS l SET
		 name = COALESCE($2, name),
		 category_id = COALESCE($3, category_id),
		 color = COALESCE($4, color),
		 icon = COALESCE($5, icon),
		 important = COALESCE($6, important),
		 updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+listColumns,
		listID, req.Name, req.CategoryID, req.Color, req.Icon, req.Important))
}

func (db *DB) DeleteList(ctx context.Context, listID int) error {
	tag, err := db.Exec(ctx, `DELETE FROM lists WHERE id = $1`, listID)
	if err != nil {
		return err
	}
	return affected(tag)
}

// Access resolves the user's role on a list. It returns ErrNotFound for a
// missing list and roles.ErrNoAccess for a list the user cannot see.
func (db *DB) Access(ctx context.Context, listID, userID int) (roles.Access, error) {
	list, err := db.GetList(ctx, listID)
	if err != nil {
		return roles.Access{}, err
	}
	members, err := db.Members(ctx, listID)
	if err != nil {
		return roles.Access{}, err
	}
	return roles.ResolveRole(*list, members, userID)
}

// CanJoin authorises a chat room join: owners and members only.
func (db *DB) CanJoin(ctx context.Context, listID, userID int) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lists WHERE id = $1 AND owner_id = $2)
		 OR EXISTS (SELECT 1 FROM list_members WHERE list_id = $1 AND user_id = $2)`,
		listID, userID).Scan(&ok)
	return ok, err
}

// SetShareKey marks the list shareable under key, replacing any previous key.
func (db *DB) SetShareKey(ctx context.Context, listID int, key string) (*models.List, error) {
	l, err := scanList(db.QueryRow(ctx,
		`UPDATE lists AS l SET shareable = TRUE, share_key = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+listColumns,
		listID, key))
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	return l, err
}

func (db *DB) ListByShareKey(ctx context.Context, key string) (*models.List, error) {
	return scanList(db.QueryRow(ctx,
		`SELECT `+listColumns+` FROM lists l WHERE l.share_key = $1 AND l.shareable`, key))
}

// Unshare clears the share key and removes every member, returning the
// removed user ids.
func (db *DB) Unshare(ctx context.Context, listID int) ([]int, error) {
	var removed []int
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE lists SET shareable = FALSE, share_key = NULL, updated_at = NOW() WHERE id = $1`, listID)
		if err != nil {
			return err
		}
		if err := affected(tag); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `DELETE FROM list_members WHERE list_id = $1 RETURNING user_id`, listID)
		if err != nil {
			return err
		}
		removed, err = pgx.CollectRows(rows, pgx.RowTo[int])
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE invitations SET status = 'rejected' WHERE list_id = $1 AND status = 'pending'`, listID)
		return err
	})
	return removed, err
}

// SharedLists returns the lists the user belongs to without owning them,
// plus owned lists that have members or a share key.
func (db *DB) SharedLists(ctx context.Context, userID int) ([]models.List, error) {
	rows, err := db.Query(ctx,
		`SELECT `+listColumns+`,
		 CASE WHEN l.owner_id = $1 THEN 'owner' ELSE m.role END AS my_role,
		 o.name AS owner_name,
		 (SELECT COUNT(*) FROM list_members lm WHERE lm.list_id = l.id) AS member_count
		 FROM lists l
		 JOIN users o ON o.id = l.owner_id
		 LEFT JOIN list_members m ON m.list_id = l.id AND m.user_id = $1
		 WHERE m.user_id IS NOT NULL
		 OR (l.owner_id = $1 AND (l.shareable OR EXISTS (SELECT 1 FROM list_members x WHERE x.list_id = l.id)))
		 ORDER BY l.updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying shared lists: %w", err)
	}
	defer rows.Close()

	lists := []models.List{}
	for rows.Next() {
		var role, owner string
		var count int
		l, err := scanList(rows, &role, &owner, &count)
		if err != nil {
			return nil, fmt.Errorf("scanning list: %w", err)
		}
		l.MyRole = models.Role(role)
		l.OwnerName = owner
		l.MemberCount = count
		lists = append(lists, *l)
	}
	return lists, rows.Err()
}

func (db *DB) Members(ctx context.Context, listID int) ([]models.Membership, error) {
	rows, err := db.Query(ctx,
		`SELECT m.list_id, m.user_id, m.role, u.email, u.name, m.joined_at
		 FROM list_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.list_id = $1
		 ORDER BY m.joined_at`,
		listID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	members := []models.Membership{}
	for rows.Next() {
		var m models.Membership
		var role string
		if err := rows.Scan(&m.ListID, &m.UserID, &role, &m.Email, &m.Name, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		m.Role = models.Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember inserts a membership. An existing membership keeps its role and
// ErrConflict is returned.
func (db *DB) AddMember(ctx context.Context, listID, userID int, role models.Role) error {
	tag, err := db.Exec(ctx,
		`INSERT INTO list_members (list_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (list_id, user_id) DO NOTHING`,
		listID, userID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetMemberRole changes a member's role and returns the previous one.
func (db *DB) SetMemberRole(ctx context.Context, listID, userID int, role models.Role) (models.Role, error) {
	var old string
	err := db.QueryRow(ctx,
		`UPDATE list_members m SET role = $3
		 FROM (SELECT role FROM list_members WHERE list_id = $1 AND user_id = $2 FOR UPDATE) prev
		 WHERE m.list_id = $1 AND m.user_id = $2
		 RETURNING prev.role`,
		listID, userID, string(role)).Scan(&old)
	if err != nil {
		return "", notFound(err)
	}
	return models.Role(old), nil
}

func (db *DB) RemoveMember(ctx context.Context, listID, userID int) error {
	tag, err := db.Exec(ctx, `DELETE FROM list_members WHERE list_id = $1 AND user_id = $2`, listID, userID)
	if err != nil {
		return err
	}
	return affected(tag)
}
