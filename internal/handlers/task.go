package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"taskeer/internal/models"
	"taskeer/internal/roles"
)

type TaskStore interface {
	AccessStore
	GetList(ctx context.Context, listID int) (*models.List, error)
	GetTask(ctx context.Context, taskID int) (*models.Task, error)
	CreateTask(ctx context.Context, creatorID int, req models.CreateTaskRequest) (*models.Task, error)
	UpdateTask(ctx context.Context, taskID int, req models.UpdateTaskRequest) (*models.Task, error)
	DeleteTask(ctx context.Context, taskID int) error
	SetTaskState(ctx context.Context, taskID int, state models.TaskState) error
	SetMyDay(ctx context.Context, taskID int, myDay bool) error
	SetAssignee(ctx context.Context, taskID int, userID *int) error
}

type TaskHandler struct {
	store     TaskStore
	notifier  Sender
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewTaskHandler(store TaskStore, notifier Sender, log logrus.FieldLogger) *TaskHandler {
	return &TaskHandler{
		store:     store,
		notifier:  notifier,
		validator: validator.New(),
		log:       log,
	}
}

// loadTask fetches the task in :id and checks the caller's role on its list.
// Tasks outside any list belong to their creator alone.
func (h *TaskHandler) loadTask(c *gin.Context, userID int, allow func(models.Role) bool) (*models.Task, bool) {
	taskID, valid := paramID(c, "id", "ID de tarea")
	if !valid {
		return nil, false
	}

	task, err := h.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return nil, false
	}

	if task.ListID == nil {
		if task.CreatorID != userID {
			fail(c, http.StatusNotFound, "Tarea no encontrada")
			return nil, false
		}
		return task, true
	}

	if _, allowed := requireAccess(c, h.log, h.store, *task.ListID, userID, allow); !allowed {
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if req.ListID != nil {
		if _, allowed := requireAccess(c, h.log, h.store, *req.ListID, userID, roles.CanCreateTasks); !allowed {
			return
		}
	}

	task, err := h.store.CreateTask(c.Request.Context(), userID, req)
	if err != nil {
		storeError(c, h.log, err, "")
		return
	}

	ok(c, http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	task, found := h.loadTask(c, userID, roles.CanEditTasks)
	if !found {
		return
	}

	updated, err := h.store.UpdateTask(c.Request.Context(), task.ID, req)
	if err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return
	}

	ok(c, http.StatusOK, updated)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	task, found := h.loadTask(c, userID, roles.CanDeleteTasks)
	if !found {
		return
	}

	if err := h.store.DeleteTask(c.Request.Context(), task.ID); err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return
	}

	ok(c, http.StatusOK, gin.H{"idTarea": task.ID})
}

func (h *TaskHandler) ChangeState(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.ChangeStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Estado inválido")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	task, found := h.loadTask(c, userID, roles.CanEditTasks)
	if !found {
		return
	}

	if err := h.store.SetTaskState(c.Request.Context(), task.ID, req.State); err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return
	}

	ok(c, http.StatusOK, gin.H{"idTarea": task.ID, "estado": req.State})
}

func (h *TaskHandler) SetMyDay(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.MyDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	task, found := h.loadTask(c, userID, roles.CanEditTasks)
	if !found {
		return
	}

	if err := h.store.SetMyDay(c.Request.Context(), task.ID, req.MyDay); err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return
	}

	ok(c, http.StatusOK, gin.H{"idTarea": task.ID, "miDia": req.MyDay})
}

// Assign gives the task to a member of its list and notifies them.
func (h *TaskHandler) Assign(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	var req models.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	task, found := h.loadTask(c, userID, roles.CanAssignTasks)
	if !found {
		return
	}
	if task.ListID == nil {
		fail(c, http.StatusBadRequest, "Solo se pueden asignar tareas de una lista")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.Access(ctx, *task.ListID, req.AssigneeID); err != nil {
		fail(c, http.StatusBadRequest, "El usuario no pertenece a la lista")
		return
	}

	if err := h.store.SetAssignee(ctx, task.ID, &req.AssigneeID); err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return
	}

	if req.AssigneeID != userID && h.notifier != nil {
		listName := ""
		if list, err := h.store.GetList(ctx, *task.ListID); err == nil {
			listName = list.Name
		}
		h.notifier.Notify(ctx, req.AssigneeID, "Nueva tarea asignada",
			"Se te asignó la tarea \""+task.Name+"\" en "+listName,
			models.TaskAssignedPayload{ListID: *task.ListID, TaskID: task.ID, TaskName: task.Name})
	}

	ok(c, http.StatusOK, gin.H{"idTarea": task.ID, "idUsuarioAsignado": req.AssigneeID})
}

func (h *TaskHandler) Unassign(c *gin.Context) {
	userID, exists := currentUser(c)
	if !exists {
		return
	}

	task, found := h.loadTask(c, userID, roles.CanAssignTasks)
	if !found {
		return
	}

	if err := h.store.SetAssignee(c.Request.Context(), task.ID, nil); err != nil {
		storeError(c, h.log, err, "Tarea no encontrada")
		return
	}

	ok(c, http.StatusOK, gin.H{"idTarea": task.ID, "idUsuarioAsignado": nil})
}
