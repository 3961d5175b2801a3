package worker

import (
	"context"
	"errors"
	"time"

	"task-planner/backend/internal/models"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReminderHandler resolves task_reminder jobs: when the task still
// exists and is incomplete at its due time, an upcoming-deadline log
// entry stands in for the notification channel.
func ReminderHandler(db *gorm.DB, logger *zap.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		rawID, ok := job.Payload["task_id"].(string)
		if !ok {
			return errors.New("task_reminder job missing task_id")
		}

		taskID, err := uuid.FromString(rawID)
		if err != nil {
			return err
		}

		var task models.Task
		if err := db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Deleted before its due time; nothing to remind.
				return nil
			}
			return err
		}

		if task.Completed {
			return nil
		}

		logger.Info("task reminder due",
			zap.String("task_id", task.ID.String()),
			zap.String("user_id", task.UserID.String()),
			zap.String("title", task.Title),
			zap.Time("due_date", task.DueDate))
		return nil
	}
}

// TokenCleanupHandler resolves token_cleanup jobs by purging refresh
// tokens past their expiry.
func TokenCleanupHandler(db *gorm.DB, logger *zap.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		result := db.WithContext(ctx).
			Where("expires_at <= ?", time.Now()).
			Delete(&models.Token{})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected > 0 {
			logger.Info("expired refresh tokens purged",
				zap.Int64("count", result.RowsAffected))
		}
		return nil
	}
}
