package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
	"taskeer/internal/roles"
)

type AccessStore interface {
	Access(ctx context.Context, listID, userID int) (roles.Access, error)
}

// requireAccess resolves the caller's role on listID and checks it against
// allow. A nil allow accepts any role. On failure the response is written.
func requireAccess(c *gin.Context, log logrus.FieldLogger, store AccessStore, listID, userID int, allow func(models.Role) bool) (roles.Access, bool) {
	access, err := store.Access(c.Request.Context(), listID, userID)
	if err != nil {
		storeError(c, log, err, "Lista no encontrada")
		return roles.Access{}, false
	}
	if allow != nil && !allow(access.Role) {
		fail(c, http.StatusForbidden, "No tienes permisos para realizar esta acción")
		return access, false
	}
	return access, true
}
