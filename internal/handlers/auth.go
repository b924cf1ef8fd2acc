package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"taskeer/internal/auth"
	"taskeer/internal/database"
	"taskeer/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id int) (*models.User, error)
}

type AuthHandler struct {
	users      UserStore
	jwtManager *auth.JWTManager
	validator  *validator.Validate
	log        logrus.FieldLogger
}

func NewAuthHandler(users UserStore, jwtManager *auth.JWTManager, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtManager: jwtManager,
		validator:  validator.New(),
		log:        log,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "No se pudo procesar la contraseña")
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Name, req.Email, hashedPassword)
	if errors.Is(err, database.ErrConflict) {
		fail(c, http.StatusConflict, "El usuario ya existe")
		return
	}
	if err != nil {
		storeError(c, h.log, err, "Usuario no encontrado")
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.UserByEmail(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		storeError(c, h.log, err, "")
		return
	}
	if user == nil || user.PasswordHash == nil || !auth.CheckPasswordHash(req.Password, *user.PasswordHash) {
		fail(c, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "No se pudo generar el token")
		return
	}

	user.PasswordHash = nil
	h.log.WithField("user", user.ID).Info("user authenticated")
	ok(c, status, models.LoginResponse{
		Token: token,
		User:  *user,
	})
}
