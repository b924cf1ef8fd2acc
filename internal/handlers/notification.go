package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
)

type NotificationStore interface {
	InvitationStore
	userLookup
	Notifications(ctx context.Context, userID, limit int) ([]models.Notification, int, error)
	Notification(ctx context.Context, id, userID int) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int) error
	MarkAllNotificationsRead(ctx context.Context, userID int) (int64, error)
}

type NotificationHandler struct {
	store NotificationStore
	log   logrus.FieldLogger
}

func NewNotificationHandler(store NotificationStore, log logrus.FieldLogger) *NotificationHandler {
	return &NotificationHandler{store: store, log: log}
}

// GetNotifications returns the newest notifications and the unread total.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limite", "50"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 50
	}

	list, unread, err := h.store.Notifications(c.Request.Context(), userID, limit)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusOK, models.NotificationList{Notifications: list, Unread: unread})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	id, valid := paramID(c, "id", "ID de notificación")
	if !valid {
		return
	}

	if err := h.store.MarkNotificationRead(c.Request.Context(), id, userID); err != nil {
		storeError(c, h.log, err, "Notificación no encontrada")
		return
	}

	ok(c, http.StatusOK, gin.H{"idNotificacion": id, "leida": true})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	n, err := h.store.MarkAllNotificationsRead(c.Request.Context(), userID)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusOK, gin.H{"actualizadas": n})
}

func (h *NotificationHandler) Accept(c *gin.Context) {
	h.answer(c, models.InvitationAccepted)
}

func (h *NotificationHandler) Reject(c *gin.Context) {
	h.answer(c, models.InvitationRejected)
}

// answer resolves the invitation behind an invitation notification and marks
// the notification read.
func (h *NotificationHandler) answer(c *gin.Context, to models.InvitationStatus) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	id, valid := paramID(c, "id", "ID de notificación")
	if !valid {
		return
	}

	ctx := c.Request.Context()
	n, err := h.store.Notification(ctx, id, userID)
	if err != nil {
		storeError(c, h.log, err, "Notificación no encontrada")
		return
	}
	payload, isInvitation := n.Payload.(models.InvitationPayload)
	if !isInvitation || payload.Token == "" {
		fail(c, http.StatusBadRequest, "La notificación no es una invitación")
		return
	}

	email, err := callerEmail(c, h.store, userID)
	if err != nil {
		storeError(c, h.log, err, "Usuario no encontrado")
		return
	}
	inv, answered := answerInvitation(c, h.log, h.store, payload.Token, userID, email, to)
	if !answered {
		return
	}

	if err := h.store.MarkNotificationRead(ctx, id, userID); err != nil {
		h.log.WithError(err).WithField("notification", id).Warn("failed to mark answered invitation read")
	}

	ok(c, http.StatusOK, gin.H{"invitacion": inv})
}
