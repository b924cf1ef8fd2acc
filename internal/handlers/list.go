package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskeer/internal/database"
	"taskeer/internal/models"
	"taskeer/internal/roles"
)

type ListStore interface {
	AccessStore
	ListsForUser(ctx context.Context, userID int) ([]models.List, error)
	CreateList(ctx context.Context, ownerID int, req models.CreateListRequest) (*models.List, error)
	GetList(ctx context.Context, listID int) (*models.List, error)
	UpdateList(ctx context.Context, listID int, req models.UpdateListRequest) (*models.List, error)
	DeleteList(ctx context.Context, listID int) error
	SetShareKey(ctx context.Context, listID int, key string) (*models.List, error)
	TasksForList(ctx context.Context, listID int) ([]models.Task, error)
}

type ListHandler struct {
	store     ListStore
	validator *validator.Validate
	publicURL string
	log       logrus.FieldLogger
	newKey    func() string
}

func NewListHandler(store ListStore, publicURL string, log logrus.FieldLogger) *ListHandler {
	return &ListHandler{
		store:     store,
		validator: validator.New(),
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
		newKey:    newShareKey,
	}
}

// newShareKey is ten upper-case hex characters.
func newShareKey() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (h *ListHandler) GetLists(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	lists, err := h.store.ListsForUser(c.Request.Context(), userID)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusOK, lists)
}

func (h *ListHandler) CreateList(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.CreateListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.store.CreateList(c.Request.Context(), userID, req)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusCreated, list)
}

func (h *ListHandler) GetList(c *gin.Context) {
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

	list, err := h.store.GetList(c.Request.Context(), listID)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}
	list.MyRole = access.Role

	ok(c, http.StatusOK, list)
}

func (h *ListHandler) UpdateList(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	var req models.UpdateListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	access, allowed := requireAccess(c, h.log, h.store, listID, userID, roles.CanManageMembers)
	if !allowed {
		return
	}

	list, err := h.store.UpdateList(c.Request.Context(), listID, req)
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}
	list.MyRole = access.Role

	ok(c, http.StatusOK, list)
}

func (h *ListHandler) DeleteList(c *gin.Context) {
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

	if err := h.store.DeleteList(c.Request.Context(), listID); err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}

	ok(c, http.StatusOK, gin.H{"mensaje": "Lista eliminada"})
}

// ShareList makes the list shareable under a fresh key. A previous key stops
// working.
func (h *ListHandler) ShareList(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}
	listID, valid := paramID(c, "id", "ID de lista")
	if !valid {
		return
	}

	if _, allowed := requireAccess(c, h.log, h.store, listID, userID, roles.CanShare); !allowed {
		return
	}

	var (
		list *models.List
		err  error
	)
	for attempt := 0; attempt < 3; attempt++ {
		list, err = h.store.SetShareKey(c.Request.Context(), listID, h.newKey())
		if !errors.Is(err, database.ErrConflict) {
			break
		}
	}
	if err != nil {
		storeError(c, h.log, err, "Lista no encontrada")
		return
	}

	var res models.ShareKeyResult
	res.Key = *list.ShareKey
	res.URL = h.publicURL + "/compartir/" + res.Key
	res.List.ID = list.ID
	res.List.ShareKey = res.Key

	h.log.WithFields(logrus.Fields{"list": listID, "user": userID}).Info("share key issued")
	ok(c, http.StatusOK, res)
}

// GetTasks returns the list together with its tasks.
func (h *ListHandler) GetTasks(c *gin.Context) {
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
	tasks, err := h.store.TasksForList(ctx, listID)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}
	list.Tasks = tasks
	list.MyRole = access.Role

	ok(c, http.StatusOK, list)
}

func isOwner(r models.Role) bool { return r == models.RoleOwner }
