package handlers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
)

type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Pusher delivers to live sockets.
type Pusher interface {
	PushNotification(n models.Notification)
	Evict(listID, userID int)
}

type MemberDirectory interface {
	GetList(ctx context.Context, listID int) (*models.List, error)
	Members(ctx context.Context, listID int) ([]models.Membership, error)
}

// Sender is what handlers need from a Notifier.
type Sender interface {
	Notify(ctx context.Context, userID int, title, message string, payload models.Payload)
	Evict(listID, userID int)
}

// Notifier stores a notification and pushes it to the recipient's sockets.
type Notifier struct {
	store   NotificationWriter
	pusher  Pusher
	members MemberDirectory
	log     logrus.FieldLogger
}

func NewNotifier(store NotificationWriter, pusher Pusher, members MemberDirectory, log logrus.FieldLogger) *Notifier {
	return &Notifier{store: store, pusher: pusher, members: members, log: log}
}

func (n *Notifier) Notify(ctx context.Context, userID int, title, message string, payload models.Payload) {
	notification := models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Payload: payload,
	}
	if err := n.store.CreateNotification(ctx, &notification); err != nil {
		n.log.WithError(err).WithField("user", userID).Error("failed to store notification")
		return
	}
	if n.pusher != nil {
		n.pusher.PushNotification(notification)
	}
}

// Evict drops a revoked user from the list's live room.
func (n *Notifier) Evict(listID, userID int) {
	if n.pusher != nil {
		n.pusher.Evict(listID, userID)
	}
}

// NotifyMessage tells every owner or member who is not in the room about a
// new chat message.
func (n *Notifier) NotifyMessage(ctx context.Context, msg *models.ChatMessage, present []int) {
	list, err := n.members.GetList(ctx, msg.ListID)
	if err != nil {
		n.log.WithError(err).WithField("list", msg.ListID).Warn("chat notification skipped")
		return
	}
	members, err := n.members.Members(ctx, msg.ListID)
	if err != nil {
		n.log.WithError(err).WithField("list", msg.ListID).Warn("chat notification skipped")
		return
	}

	skip := map[int]bool{msg.UserID: true}
	for _, id := range present {
		skip[id] = true
	}
	recipients := []int{list.OwnerID}
	for _, m := range members {
		recipients = append(recipients, m.UserID)
	}

	from := msg.UserName
	if from == "" {
		from = msg.UserEmail
	}
	payload := models.MessagePayload{ListID: msg.ListID, MessageID: msg.ID, From: from}
	for _, uid := range recipients {
		if skip[uid] {
			continue
		}
		skip[uid] = true
		n.Notify(ctx, uid, "Nuevo mensaje en "+list.Name, fmt.Sprintf("%s: %s", from, preview(msg.Content)), payload)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 80 {
		return s
	}
	return string(r[:80]) + "…"
}
