package roles

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
	"taskeer/internal/session"
)

// Source is the backend surface the resolver reads from.
type Source interface {
	PermissionInfo(ctx context.Context, listID int) (*models.PermissionInfo, error)
	GetList(ctx context.Context, listID int) (*models.List, error)
}

type Resolver struct {
	src  Source
	sess *session.Session
	log  logrus.FieldLogger
}

func NewResolver(src Source, sess *session.Session, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{src: src, sess: sess, log: log}
}

// Resolve asks the sharing endpoint first. That endpoint 404s for lists that
// were never shared, so any failure falls back to fetching the list and
// comparing its owner before access is denied.
func (r *Resolver) Resolve(ctx context.Context, listID int) (Access, error) {
	userID := r.sess.UserID()
	log := r.log.WithFields(logrus.Fields{"list": listID, "user": userID})

	info, err := r.src.PermissionInfo(ctx, listID)
	if err == nil {
		access, rerr := fromInfo(info, listID, userID)
		if rerr == nil {
			log.WithFields(logrus.Fields{"tier": "info", "role": access.Role}).Debug("role resolved")
			return access, nil
		}
		log.WithError(rerr).Debug("permission info did not grant access, probing ownership")
	} else {
		log.WithError(err).Debug("permission info unavailable, probing ownership")
	}

	list, lerr := r.src.GetList(ctx, listID)
	if lerr != nil {
		log.WithError(lerr).Info("ownership probe failed")
		return Access{}, fmt.Errorf("%w: %w", ErrNoAccess, lerr)
	}
	if list.OwnerID == userID {
		log.WithField("tier", "owner-probe").Debug("role resolved")
		return Access{ListID: listID, UserID: userID, IsOwner: true, Role: models.RoleOwner}, nil
	}
	if list.MyRole.Assignable() {
		log.WithFields(logrus.Fields{"tier": "list", "role": list.MyRole}).Debug("role resolved")
		return Access{ListID: listID, UserID: userID, Role: list.MyRole}, nil
	}
	return Access{}, ErrNoAccess
}

func fromInfo(info *models.PermissionInfo, listID, userID int) (Access, error) {
	if info.IsOwner || (info.Owner.ID != 0 && info.Owner.ID == userID) {
		return Access{ListID: listID, UserID: userID, IsOwner: true, Role: models.RoleOwner}, nil
	}
	if info.MyRole.Assignable() {
		return Access{ListID: listID, UserID: userID, Role: info.MyRole}, nil
	}
	list := info.List
	list.ID = listID
	if info.Owner.ID != 0 {
		list.OwnerID = info.Owner.ID
	}
	return ResolveRole(list, info.Members, userID)
}
