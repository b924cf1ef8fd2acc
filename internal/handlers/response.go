package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taskeer/internal/auth"
	"taskeer/internal/database"
	"taskeer/internal/roles"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// currentUser answers 401 itself when the context has no user.
func currentUser(c *gin.Context) (int, bool) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "Usuario no autenticado")
	}
	return userID, exists
}

func paramID(c *gin.Context, name, label string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, label+" inválido")
		return 0, false
	}
	return id, true
}

// storeError maps persistence errors onto a response.
func storeError(c *gin.Context, log logrus.FieldLogger, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		fail(c, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, roles.ErrNoAccess):
		fail(c, http.StatusForbidden, "No tienes acceso a esta lista")
	case errors.Is(err, database.ErrConflict):
		fail(c, http.StatusConflict, "El recurso ya existe")
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("database error")
		fail(c, http.StatusInternalServerError, "Error interno del servidor")
	}
}
