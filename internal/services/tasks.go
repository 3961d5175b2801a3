package services

import (
	"errors"
	"strings"
	"time"

	"task-planner/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type CreateTaskInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	DueDate     *time.Time      `json:"due_date"`
	Priority    models.Priority `json:"priority"`
}

type TaskService interface {
	CreateTask(db *gorm.DB, userID uuid.UUID, input CreateTaskInput) (models.Task, error)
	GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error)
	GetTasksByUser(db *gorm.DB, userID uuid.UUID) ([]models.Task, error)
	UpdateTask(db *gorm.DB, userID, id uuid.UUID, patch models.TaskPatch) (models.Task, error)
	DeleteTask(db *gorm.DB, userID, id uuid.UUID) error
	ToggleComplete(db *gorm.DB, userID, id uuid.UUID, completed bool) (models.Task, error)
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, userID uuid.UUID, input CreateTaskInput) (models.Task, error) {
	if userID == uuid.Nil {
		return models.Task{}, ErrUnauthenticated
	}
	if strings.TrimSpace(input.Title) == "" || input.DueDate == nil || !input.Priority.Valid() {
		return models.Task{}, ErrInvalidArgument
	}

	taskID, err := uuid.NewV4()
	if err != nil {
		return models.Task{}, err
	}

	now := time.Now()
	task := models.Task{
		ID:          taskID,
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     *input.DueDate,
		Priority:    input.Priority,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := db.Create(&task).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *TaskServiceImpl) GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error) {
	var task models.Task
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}
	return task, nil
}

// GetTasksByUser returns the owner's tasks ordered ascending by due
// date. Ties among equal due dates fall back to insertion order, which
// is stable but otherwise unspecified; callers must not rely on a
// particular order among same-due-date tasks.
func (s *TaskServiceImpl) GetTasksByUser(db *gorm.DB, userID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := db.Where("user_id = ?", userID).
		Order("due_date asc").
		Order("created_at asc").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, userID, id uuid.UUID, patch models.TaskPatch) (models.Task, error) {
	if userID == uuid.Nil {
		return models.Task{}, ErrUnauthenticated
	}

	task, err := s.GetTaskByID(db, id)
	if err != nil {
		return models.Task{}, err
	}
	if task.UserID != userID {
		return models.Task{}, ErrPermissionDenied
	}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return models.Task{}, ErrInvalidArgument
		}
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.DueDate != nil {
		task.DueDate = *patch.DueDate
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return models.Task{}, ErrInvalidArgument
		}
		task.Priority = *patch.Priority
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	task.UpdatedAt = time.Now()

	if err := db.Save(&task).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrUnauthenticated
	}

	task, err := s.GetTaskByID(db, id)
	if err != nil {
		return err
	}
	if task.UserID != userID {
		return ErrPermissionDenied
	}

	return db.Delete(&models.Task{}, "id = ?", id).Error
}

func (s *TaskServiceImpl) ToggleComplete(db *gorm.DB, userID, id uuid.UUID, completed bool) (models.Task, error) {
	return s.UpdateTask(db, userID, id, models.TaskPatch{Completed: &completed})
}
