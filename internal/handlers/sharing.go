package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"taskeer/internal/auth"
	"taskeer/internal/database"
	"taskeer/internal/models"
	"taskeer/internal/roles"
)

// KeyJoinRole is granted to users who redeem a share key.
const KeyJoinRole = models.RoleColaborador

type InvitationStore interface {
	Invitation(ctx context.Context, token string) (*models.Invitation, error)
	AnswerInvitation(ctx context.Context, token string, userID int, to models.InvitationStatus) (*models.Invitation, error)
}

type SharingStore interface {
	AccessStore
	InvitationStore
	GetList(ctx context.Context, listID int) (*models.List, error)
	ListByShareKey(ctx context.Context, key string) (*models.List, error)
	Members(ctx context.Context, listID int) ([]models.Membership, error)
	AddMember(ctx context.Context, listID, userID int, role models.Role) error
	SetMemberRole(ctx context.Context, listID, userID int, role models.Role) (models.Role, error)
	RemoveMember(ctx context.Context, listID, userID int) error
	Unshare(ctx context.Context, listID int) ([]int, error)
	SharedLists(ctx context.Context, userID int) ([]models.List, error)
	UserByID(ctx context.Context, id int) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateInvitation(ctx context.Context, listID int, email string, role models.Role, invitedBy int) (*models.Invitation, error)
	PendingInvitations(ctx context.Context, email string) ([]models.Invitation, error)
}

type SharingHandler struct {
	store     SharingStore
	notifier  Sender
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewSharingHandler(store SharingStore, notifier Sender, log logrus.FieldLogger) *SharingHandler {
	return &SharingHandler{
		store:     store,
		notifier:  notifier,
		validator: validator.New(),
		log:       log,
	}
}

// JoinByKey redeems a share key for membership.
func (h *SharingHandler) JoinByKey(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.JoinByKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, "La clave es obligatoria")
		return
	}

	ctx := c.Request.Context()
	list, err := h.store.ListByShareKey(ctx, req.Key)
	if err != nil {
		storeError(c, h.log, err, "Clave de compartir inválida o expirada")
		return
	}
	if list.OwnerID == userID {
		fail(c, http.StatusBadRequest, "Ya eres el propietario de esta lista")
		return
	}

	err = h.store.AddMember(ctx, list.ID, userID, KeyJoinRole)
	if err != nil && !errors.Is(err, database.ErrConflict) {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}

	access, err := h.store.Access(ctx, list.ID, userID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}
	list.MyRole = access.Role

	h.log.WithFields(logrus.Fields{"list": list.ID, "user": userID}).Info("joined list by key")
	ok(c, http.StatusOK, gin.H{"lista": list})
}

func (h *SharingHandler) PermissionInfo(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	access, allowed := requireAccess(c, h.log, h.store, listID, userID, nil)
	if !allowed {
		return
	}

	ctx := c.Request.Context()
	list, err := h.store.GetList(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}
	owner, err := h.store.UserByID(ctx, list.OwnerID)
	if err != nil {
		storeError(c, h.log, err, "Propietario no encontrado")
		return
	}
	members, err := h.store.Members(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}
	list.MyRole = access.Role

	ok(c, http.StatusOK, models.PermissionInfo{
		List:    *list,
		Owner:   *owner,
		Members: members,
		MyRole:  access.Role,
		IsOwner: access.IsOwner,
	})
}

func (h *SharingHandler) Members(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	if _, allowed := requireAccess(c, h.log, h.store, listID, userID, nil); !allowed {
		return
	}

	members, err := h.store.Members(c.Request.Context(), listID)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusOK, members)
}

// memberTarget loads the manager's access and the member named by :uid.
// Only the owner may act on admins.
func (h *SharingHandler) memberTarget(c *gin.Context, userID int) (*models.List, models.Membership, roles.Access, bool) {
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return nil, models.Membership{}, roles.Access{}, false
	}
	targetID, valid := paramID(c, "uid", "ID de usuario")
	if !valid {
		return nil, models.Membership{}, roles.Access{}, false
	}

	access, allowed := requireAccess(c, h.log, h.store, listID, userID, roles.CanManageMembers)
	if !allowed {
		return nil, models.Membership{}, roles.Access{}, false
	}
	if targetID == userID {
		fail(c, http.StatusBadRequest, "No puedes modificar tu propio acceso")
		return nil, models.Membership{}, roles.Access{}, false
	}

	ctx := c.Request.Context()
	list, err := h.store.GetList(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return nil, models.Membership{}, roles.Access{}, false
	}
	if targetID == list.OwnerID {
		fail(c, http.StatusForbidden, "No se puede modificar al propietario")
		return nil, models.Membership{}, roles.Access{}, false
	}

	members, err := h.store.Members(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "")
		return nil, models.Membership{}, roles.Access{}, false
	}
	for _, m := range members {
		if m.UserID != targetID {
			continue
		}
		if !access.IsOwner && m.Role == models.RoleAdmin {
			fail(c, http.StatusForbidden, "Solo el propietario puede modificar a un administrador")
			return nil, models.Membership{}, roles.Access{}, false
		}
		return list, m, access, true
	}
	fail(c, http.StatusNotFound, "El usuario no es miembro de la lista")
	return nil, models.Membership{}, roles.Access{}, false
}

func (h *SharingHandler) ChangeRole(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Rol inválido")
		return
	}
	if err := h.validator.Struct(req); err != nil || !req.Role.Assignable() {
		fail(c, http.StatusBadRequest, "Rol inválido")
		return
	}

	list, member, access, found := h.memberTarget(c, userID)
	if !found {
		return
	}
	if !access.IsOwner && req.Role == models.RoleAdmin {
		fail(c, http.StatusForbidden, "Solo el propietario puede nombrar administradores")
		return
	}

	ctx := c.Request.Context()
	old, err := h.store.SetMemberRole(ctx, list.ID, member.UserID, req.Role)
	if err != nil {
		storeError(c, h.log, err, "El usuario no es miembro de la lista")
		return
	}

	if old != req.Role {
		h.notifier.Notify(ctx, member.UserID, "Tu rol cambió",
			fmt.Sprintf("Tu rol en %s cambió de %s a %s", list.Name, old, req.Role),
			models.RoleChangedPayload{ListID: list.ID, ListName: list.Name, OldRole: old, NewRole: req.Role})
	}

	h.log.WithFields(logrus.Fields{"list": list.ID, "member": member.UserID, "from": old, "to": req.Role}).Info("member role changed")
	ok(c, http.StatusOK, gin.H{"idUsuario": member.UserID, "rol": req.Role, "rolAnterior": old})
}

func (h *SharingHandler) RemoveMember(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	list, member, _, found := h.memberTarget(c, userID)
	if !found {
		return
	}

	ctx := c.Request.Context()
	if err := h.store.RemoveMember(ctx, list.ID, member.UserID); err != nil {
		storeError(c, h.log, err, "El usuario no es miembro de la lista")
		return
	}
	h.revoked(ctx, list, member.UserID, userID)

	ok(c, http.StatusOK, gin.H{"idUsuario": member.UserID})
}

// revoked tells a removed user and drops them from the live room.
func (h *SharingHandler) revoked(ctx context.Context, list *models.List, userID, by int) {
	h.notifier.Notify(ctx, userID, "Acceso revocado",
		"Ya no tienes acceso a la lista "+list.Name,
		models.AccessRevokedPayload{ListID: list.ID, ListName: list.Name, RevokedBy: by})
	h.notifier.Evict(list.ID, userID)
	h.log.WithFields(logrus.Fields{"list": list.ID, "member": userID, "by": by}).Info("access revoked")
}

func (h *SharingHandler) Invite(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	var req models.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, "Email o rol inválido")
		return
	}

	access, allowed := requireAccess(c, h.log, h.store, listID, userID, roles.CanShare)
	if !allowed {
		return
	}
	if !access.IsOwner && req.Role == models.RoleAdmin {
		fail(c, http.StatusForbidden, "Solo el propietario puede invitar administradores")
		return
	}

	ctx := c.Request.Context()
	list, err := h.store.GetList(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}

	invitee, err := h.store.UserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		storeError(c, h.log, err, "")
		return
	}
	if invitee != nil {
		if _, err := h.store.Access(ctx, listID, invitee.ID); err == nil {
			fail(c, http.StatusConflict, "El usuario ya tiene acceso a esta lista")
			return
		}
	}

	inv, err := h.store.CreateInvitation(ctx, listID, req.Email, req.Role, userID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}

	if invitee != nil {
		email, name := auth.GetIdentity(c)
		from := name
		if from == "" {
			from = email
		}
		h.notifier.Notify(ctx, invitee.ID, "Invitación a una lista",
			fmt.Sprintf("%s te invitó a %s como %s", from, list.Name, req.Role),
			models.InvitationPayload{Token: inv.Token, ListID: listID, ListName: list.Name, Role: req.Role, InvitedBy: from})
	}

	h.log.WithFields(logrus.Fields{"list": listID, "role": req.Role, "registered": invitee != nil}).Info("invitation created")
	ok(c, http.StatusCreated, gin.H{"invitacion": inv})
}

func (h *SharingHandler) Leave(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	access, allowed := requireAccess(c, h.log, h.store, listID, userID, nil)
	if !allowed {
		return
	}
	if access.IsOwner {
		fail(c, http.StatusBadRequest, "El propietario no puede salir de su lista")
		return
	}

	if err := h.store.RemoveMember(c.Request.Context(), listID, userID); err != nil {
		storeError(c, h.log, err, "No eres miembro de esta lista")
		return
	}
	h.notifier.Evict(listID, userID)

	ok(c, http.StatusOK, gin.H{"idLista": listID})
}

// Unshare revokes every member and invalidates the share key.
func (h *SharingHandler) Unshare(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	if _, allowed := requireAccess(c, h.log, h.store, listID, userID, isOwner); !allowed {
		return
	}

	ctx := c.Request.Context()
	list, err := h.store.GetList(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}
	removed, err := h.store.Unshare(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}
	for _, uid := range removed {
		h.revoked(ctx, list, uid, userID)
	}

	ok(c, http.StatusOK, gin.H{"idLista": listID, "usuariosRemovidos": len(removed)})
}

func (h *SharingHandler) SharedLists(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	lists, err := h.store.SharedLists(c.Request.Context(), userID)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusOK, lists)
}

func (h *SharingHandler) PendingInvitations(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	email, err := callerEmail(c, h.store, userID)
	if err != nil {
		storeError(c, h.log, err, "Usuario no encontrado")
		return
	}

	invs, err := h.store.PendingInvitations(c.Request.Context(), email)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusOK, invs)
}

func (h *SharingHandler) AcceptInvitation(c *gin.Context) {
	h.answer(c, models.InvitationAccepted)
}

func (h *SharingHandler) RejectInvitation(c *gin.Context) {
	h.answer(c, models.InvitationRejected)
}

func (h *SharingHandler) answer(c *gin.Context, to models.InvitationStatus) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	email, err := callerEmail(c, h.store, userID)
	if err != nil {
		storeError(c, h.log, err, "Usuario no encontrado")
		return
	}

	inv, answered := answerInvitation(c, h.log, h.store, c.Param("token"), userID, email, to)
	if !answered {
		return
	}
	ok(c, http.StatusOK, gin.H{"invitacion": inv})
}

// answerInvitation checks the invitation belongs to email and moves it to
// its final status. On failure the response is written.
func answerInvitation(c *gin.Context, log logrus.FieldLogger, store InvitationStore, token string, userID int, email string, to models.InvitationStatus) (*models.Invitation, bool) {
	ctx := c.Request.Context()
	inv, err := store.Invitation(ctx, token)
	if err != nil {
		storeError(c, log, err, "Invitación no encontrada")
		return nil, false
	}
	if !strings.EqualFold(inv.Email, email) {
		fail(c, http.StatusForbidden, "Esta invitación no es para ti")
		return nil, false
	}

	inv, err = store.AnswerInvitation(ctx, token, userID, to)
	if errors.Is(err, models.ErrInvitationClosed) {
		fail(c, http.StatusConflict, "La invitación ya fue respondida")
		return nil, false
	}
	if err != nil {
		storeError(c, log, err, "Invitación no encontrada")
		return nil, false
	}

	log.WithFields(logrus.Fields{"list": inv.ListID, "user": userID, "status": to}).Info("invitation answered")
	return inv, true
}

type userLookup interface {
	UserByID(ctx context.Context, id int) (*models.User, error)
}

// callerEmail prefers the email carried by the token.
func callerEmail(c *gin.Context, users userLookup, userID int) (string, error) {
	if email, _ := auth.GetIdentity(c); email != "" {
		return email, nil
	}
	u, err := users.UserByID(c.Request.Context(), userID)
	if err != nil {
		return "", fmt.Errorf("user %d: %w", userID, err)
	}
	return u.Email, nil
}
