package restclient

import (
	"context"
	"fmt"

	"taskeer/internal/models"
)

func (c *Client) PermissionInfo(ctx context.Context, listID int) (*models.PermissionInfo, error) {
	var info models.PermissionInfo
	if err := c.get(ctx, fmt.Sprintf("/api/compartir/lista/%d/info", listID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) JoinByKey(ctx context.Context, key string) (*models.List, error) {
	var resp struct {
		List models.List `json:"lista"`
	}
	if err := c.post(ctx, "/api/compartir/lista/unirse", models.JoinByKeyRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return &resp.List, nil
}

func (c *Client) Members(ctx context.Context, listID int) ([]models.Membership, error) {
	var members []models.Membership
	if err := c.get(ctx, fmt.Sprintf("/api/compartir/lista/%d/usuarios", listID), &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) Invite(ctx context.Context, listID int, req models.InviteRequest) (*models.Invitation, error) {
	var resp struct {
		Invitation models.Invitation `json:"invitacion"`
	}
	if err := c.post(ctx, fmt.Sprintf("/api/compartir/lista/%d/invitar", listID), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Invitation, nil
}

func (c *Client) ChangeRole(ctx context.Context, listID, userID int, role models.Role) error {
	path := fmt.Sprintf("/api/compartir/lista/%d/usuario/%d/rol", listID, userID)
	return c.put(ctx, path, models.ChangeRoleRequest{Role: role}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, listID, userID int) error {
	return c.delete(ctx, fmt.Sprintf("/api/compartir/lista/%d/usuario/%d", listID, userID), nil)
}

func (c *Client) Leave(ctx context.Context, listID int) error {
	return c.post(ctx, fmt.Sprintf("/api/compartir/lista/%d/salir", listID), struct{}{}, nil)
}

func (c *Client) Unshare(ctx context.Context, listID int) error {
	return c.post(ctx, fmt.Sprintf("/api/compartir/lista/%d/descompartir", listID), struct{}{}, nil)
}

func (c *Client) SharedLists(ctx context.Context) ([]models.List, error) {
	var lists []models.List
	if err := c.get(ctx, "/api/compartir/mis-listas-compartidas", &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

func (c *Client) PendingInvitations(ctx context.Context) ([]models.Invitation, error) {
	var invs []models.Invitation
	if err := c.get(ctx, "/api/compartir/invitaciones/pendientes", &invs); err != nil {
		return nil, err
	}
	return invs, nil
}

func (c *Client) AcceptInvitation(ctx context.Context, token string) error {
	return c.post(ctx, fmt.Sprintf("/api/compartir/invitaciones/%s/aceptar", token), struct{}{}, nil)
}

func (c *Client) RejectInvitation(ctx context.Context, token string) error {
	return c.post(ctx, fmt.Sprintf("/api/compartir/invitaciones/%s/rechazar", token), struct{}{}, nil)
}
