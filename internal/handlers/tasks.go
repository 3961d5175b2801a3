package handlers

import (
	"errors"
	"net/http"
	"time"

	"task-planner/backend/internal/models"
	"task-planner/backend/internal/services"
	"task-planner/backend/internal/stream"
	"task-planner/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	hub         *stream.Hub
	queue       *worker.JobQueue
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService, hub *stream.Hub, queue *worker.JobQueue) *TaskHandler {
	return &TaskHandler{db: db, taskService: taskService, hub: hub, queue: queue}
}

// currentUserID pulls the authenticated identity set by the authz
// middleware. uuid.Nil means no signed-in user.
func currentUserID(c *gin.Context) uuid.UUID {
	raw, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil
	}
	str, ok := raw.(string)
	if !ok {
		return uuid.Nil
	}
	return uuid.FromStringOrNil(str)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var taskInput struct {
		Title       string          `json:"title" binding:"required"`
		Description string          `json:"description"`
		DueDate     *time.Time      `json:"due_date" binding:"required"`
		Priority    models.Priority `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&taskInput); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.CreateTask(h.db, userID, services.CreateTaskInput{
		Title:       taskInput.Title,
		Description: taskInput.Description,
		DueDate:     taskInput.DueDate,
		Priority:    taskInput.Priority,
	})
	if err != nil {
		handleTaskError(c, err)
		return
	}

	if h.queue != nil {
		h.queue.EnqueueAt(worker.QueueReminders, worker.JobTypeTaskReminder,
			map[string]interface{}{"task_id": task.ID.String()}, task.DueDate)
	}

	h.notify(userID)
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	tasks, err := h.taskService.GetTasksByUser(h.db, userID)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))
	task, err := h.taskService.GetTaskByID(h.db, id)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	if task.UserID != userID {
		handleTaskError(c, services.ErrPermissionDenied)
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))

	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.UpdateTask(h.db, userID, id, patch)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	h.notify(userID)
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))
	if err := h.taskService.DeleteTask(h.db, userID, id); err != nil {
		handleTaskError(c, err)
		return
	}

	h.notify(userID)
	c.JSON(http.StatusNoContent, nil)
}

func (h *TaskHandler) ToggleComplete(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))

	var input struct {
		Completed *bool `json:"completed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.ToggleComplete(h.db, userID, id, *input.Completed)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	h.notify(userID)
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) notify(userID uuid.UUID) {
	if h.hub != nil {
		h.hub.Notify(userID)
	}
}

func handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "user not authenticated",
		})
	case errors.Is(err, services.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing required task fields",
		})
	case errors.Is(err, services.ErrTaskNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "task not found",
		})
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "access denied",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to process task request",
		})
	}
}
