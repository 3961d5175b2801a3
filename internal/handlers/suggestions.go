package handlers

import (
	"net/http"

	"task-planner/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type SuggestionHandler struct {
	db                *gorm.DB
	taskService       services.TaskService
	suggestionService services.SuggestionService
}

func NewSuggestionHandler(db *gorm.DB, taskService services.TaskService, suggestionService services.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{
		db:                db,
		taskService:       taskService,
		suggestionService: suggestionService,
	}
}

// GetSuggestion computes a fresh focus recommendation from the
// caller's current tasks. The engine never fails: an unreachable model
// resolves through the local fallback rules.
func (h *SuggestionHandler) GetSuggestion(c *gin.Context) {
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

	suggestion := h.suggestionService.GetSuggestion(c.Request.Context(), tasks)

	c.JSON(http.StatusOK, suggestion)
}
