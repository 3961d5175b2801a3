package services

import (
	"context"
	"fmt"
	"time"

	"task-planner/backend/internal/cache"
	"task-planner/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	taskCacheTTL    = 30 * time.Minute
	userTasksTTL    = 15 * time.Minute
	taskKeyFormat   = "task:%s"
	userTasksFormat = "user_tasks:%s"

	cacheOpTimeout = 3 * time.Second
)

// CachedTaskService wraps a TaskService with a Redis read-through
// cache. Reads serve the per-user ordered snapshot from cache when
// fresh; every write invalidates the owner's entries so the next
// snapshot reflects the store. Cache failures are ignored: the store
// stays the sole source of truth.
type CachedTaskService struct {
	taskService TaskService
	cache       *cache.RedisCache
}

func NewCachedTaskService(taskService TaskService, cacheInstance *cache.RedisCache) *CachedTaskService {
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
	}
}

func cacheCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cacheOpTimeout)
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf(taskKeyFormat, id.String())
}

func userTasksKey(userID uuid.UUID) string {
	return fmt.Sprintf(userTasksFormat, userID.String())
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, userID uuid.UUID, input CreateTaskInput) (models.Task, error) {
	task, err := s.taskService.CreateTask(db, userID, input)
	if err != nil {
		return task, err
	}

	ctx, cancel := cacheCtx()
	defer cancel()
	s.cache.Set(ctx, taskKey(task.ID), task, taskCacheTTL)
	s.cache.Delete(ctx, userTasksKey(userID))

	return task, nil
}

func (s *CachedTaskService) GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error) {
	ctx, cancel := cacheCtx()
	defer cancel()

	var cachedTask models.Task
	if err := s.cache.Get(ctx, taskKey(id), &cachedTask); err == nil {
		return cachedTask, nil
	}

	task, err := s.taskService.GetTaskByID(db, id)
	if err != nil {
		return task, err
	}

	s.cache.Set(ctx, taskKey(id), task, taskCacheTTL)

	return task, nil
}

func (s *CachedTaskService) GetTasksByUser(db *gorm.DB, userID uuid.UUID) ([]models.Task, error) {
	ctx, cancel := cacheCtx()
	defer cancel()

	var cachedTasks []models.Task
	if err := s.cache.Get(ctx, userTasksKey(userID), &cachedTasks); err == nil {
		return cachedTasks, nil
	}

	tasks, err := s.taskService.GetTasksByUser(db, userID)
	if err != nil {
		return tasks, err
	}

	s.cache.Set(ctx, userTasksKey(userID), tasks, userTasksTTL)

	return tasks, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, userID, id uuid.UUID, patch models.TaskPatch) (models.Task, error) {
	task, err := s.taskService.UpdateTask(db, userID, id, patch)
	if err != nil {
		return task, err
	}

	ctx, cancel := cacheCtx()
	defer cancel()
	s.cache.Delete(ctx, taskKey(id), userTasksKey(userID))

	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, userID, id uuid.UUID) error {
	if err := s.taskService.DeleteTask(db, userID, id); err != nil {
		return err
	}

	ctx, cancel := cacheCtx()
	defer cancel()
	s.cache.Delete(ctx, taskKey(id), userTasksKey(userID))

	return nil
}

func (s *CachedTaskService) ToggleComplete(db *gorm.DB, userID, id uuid.UUID, completed bool) (models.Task, error) {
	return s.UpdateTask(db, userID, id, models.TaskPatch{Completed: &completed})
}
