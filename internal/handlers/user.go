package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type UserHandler struct {
	users UserStore
	log   logrus.FieldLogger
}

func NewUserHandler(users UserStore, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	user, err := h.users.UserByID(c.Request.Context(), userID)
	if err != nil {
		storeError(c, h.log, err, "Usuario no encontrado")
		return
	}

	ok(c, http.StatusOK, user)
}
