package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskeer/internal/alert"
	"taskeer/internal/models"
)

// visit handles one notification.
type visit struct {
	ctx context.Context
	d   *Dispatcher
}

var _ models.PayloadVisitor = (*visit)(nil)

func source(n *models.Notification) string {
	return fmt.Sprintf("notification:%d", n.ID)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (v *visit) VisitRoleChanged(n *models.Notification, p models.RoleChangedPayload) {
	v.d.host.RefreshPermissions(v.ctx, p.ListID)
	v.d.present(alert.Alert{
		Level:   alert.LevelInfo,
		Title:   orDefault(n.Title, "Tu rol ha cambiado"),
		Message: fmt.Sprintf("Tu rol en %s cambió de %s a %s", orDefault(p.ListName, "la lista"), p.OldRole, p.NewRole),
		Link:    listLink(p.ListID),
		Source:  source(n),
	})
}

func (v *visit) VisitInvitation(n *models.Notification, p models.InvitationPayload) {
	v.d.host.RefreshMemberships(v.ctx)
	v.d.present(alert.Alert{
		Level:   alert.LevelInfo,
		Title:   orDefault(n.Title, "Nueva invitación"),
		Message: orDefault(n.Message, fmt.Sprintf("Te invitaron a %s como %s", orDefault(p.ListName, "una lista"), p.Role)),
		Link:    "/app/notificaciones",
		Source:  source(n),
	})
}

func (v *visit) VisitTaskAssigned(n *models.Notification, p models.TaskAssignedPayload) {
	v.d.host.ReloadTasks(v.ctx, p.ListID)
	v.d.present(alert.Alert{
		Level:   alert.LevelInfo,
		Title:   orDefault(n.Title, "Tarea asignada"),
		Message: orDefault(n.Message, fmt.Sprintf("Se te asignó la tarea %s", orDefault(p.TaskName, fmt.Sprint(p.TaskID)))),
		Link:    listLink(p.ListID),
		Source:  source(n),
	})
}

func (v *visit) VisitMessage(n *models.Notification, p models.MessagePayload) {
	d := v.d
	if d.host.ChatOpen(p.ListID) {
		if err := d.api.MarkNotificationRead(v.ctx, n.ID); err != nil {
			d.log.WithError(err).WithField("notification", n.ID).Warn("failed to mark chat notification read")
		} else {
			d.setRead(n.ID)
		}
		if d.chat != nil {
			if err := d.chat.MarkAllRead(p.ListID); err != nil {
				d.log.WithError(err).WithField("list", p.ListID).Debug("could not emit read_all")
			}
		}
		return
	}

	d.mu.Lock()
	d.chatUnread[p.ListID]++
	d.mu.Unlock()
	d.present(alert.Alert{
		Level:   alert.LevelInfo,
		Title:   orDefault(n.Title, "Nuevo mensaje"),
		Message: orDefault(n.Message, fmt.Sprintf("%s escribió en el chat", orDefault(p.From, "Alguien"))),
		Link:    listLink(p.ListID) + "?chat=1",
		Source:  source(n),
	})
}

func (v *visit) VisitAccessRevoked(n *models.Notification, p models.AccessRevokedPayload) {
	d := v.d
	d.host.RefreshMemberships(v.ctx)
	d.present(alert.Alert{
		Level:   alert.LevelCritical,
		Title:   orDefault(n.Title, "Acceso revocado"),
		Message: orDefault(n.Message, fmt.Sprintf("Ya no tienes acceso a %s", orDefault(p.ListName, "la lista"))),
		Link:    HomePath,
		Source:  source(n),
	})
	if d.host.CurrentList() != p.ListID {
		return
	}
	d.log.WithFields(logrus.Fields{"list": p.ListID, "delay": d.grace}).Info("access revoked for open list, leaving")
	d.afterFunc(d.grace, func() {
		// the user may have navigated away already
		if d.host.CurrentList() == p.ListID {
			d.host.NavigateAway(HomePath)
		}
	})
}

func (v *visit) VisitOther(n *models.Notification, p models.OtherPayload) {
	v.d.present(alert.Alert{
		Level:   alert.LevelInfo,
		Title:   orDefault(n.Title, "Notificación"),
		Message: n.Message,
		Source:  source(n),
	})
}
