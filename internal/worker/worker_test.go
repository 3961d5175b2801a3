package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"task-planner/backend/internal/database"
	"task-planner/backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestQueue(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func TestJobQueue_Enqueue(t *testing.T) {
	client, _ := setupTestQueue(t)
	queue := NewJobQueue(client)

	err := queue.Enqueue(QueueReminders, JobTypeTaskReminder, map[string]interface{}{
		"task_id": "abc",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	size, err := queue.GetQueueSize(QueueReminders)
	if err != nil {
		t.Fatalf("GetQueueSize failed: %v", err)
	}
	if size != 1 {
		t.Errorf("Expected queue size 1, got %d", size)
	}
}

func TestJobQueue_EnqueueAtFutureWaitsOnScheduledSet(t *testing.T) {
	client, _ := setupTestQueue(t)
	queue := NewJobQueue(client)

	processAt := time.Now().Add(time.Hour)
	err := queue.EnqueueAt(QueueReminders, JobTypeTaskReminder, map[string]interface{}{
		"task_id": "abc",
	}, processAt)
	if err != nil {
		t.Fatalf("EnqueueAt failed: %v", err)
	}

	size, err := queue.GetQueueSize(QueueReminders)
	if err != nil {
		t.Fatalf("GetQueueSize failed: %v", err)
	}
	if size != 0 {
		t.Errorf("Expected empty work queue for a future job, got %d entries", size)
	}

	scheduled, err := queue.GetScheduledSize()
	if err != nil {
		t.Fatalf("GetScheduledSize failed: %v", err)
	}
	if scheduled != 1 {
		t.Errorf("Expected 1 scheduled job, got %d", scheduled)
	}

	ctx := context.Background()
	entries, err := client.ZRangeWithScores(ctx, scheduledQueue, 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRangeWithScores failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 scheduled job, got %d", len(entries))
	}
	if int64(entries[0].Score) != processAt.Unix() {
		t.Errorf("Expected score %d, got %f", processAt.Unix(), entries[0].Score)
	}

	var job Job
	if err := json.Unmarshal([]byte(entries[0].Member.(string)), &job); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if job.Type != JobTypeTaskReminder {
		t.Errorf("Expected type %s, got %s", JobTypeTaskReminder, job.Type)
	}
	if job.Queue != QueueReminders {
		t.Errorf("Expected origin queue %s, got %s", QueueReminders, job.Queue)
	}
	if job.MaxTries != 3 {
		t.Errorf("Expected MaxTries 3, got %d", job.MaxTries)
	}
}

func TestWorker_ParksNotYetDueJobOffTheQueue(t *testing.T) {
	client, _ := setupTestQueue(t)

	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Queues:      []string{QueueReminders},
		Logger:      zap.NewNop(),
	})

	job := Job{
		ID:        "1",
		Type:      JobTypeTaskReminder,
		MaxTries:  3,
		ProcessAt: time.Now().Add(time.Hour),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	ctx := context.Background()
	if err := client.RPush(ctx, QueueReminders, raw).Err(); err != nil {
		t.Fatalf("RPush failed: %v", err)
	}

	if err := w.processNextJob(); err != nil {
		t.Fatalf("processNextJob failed: %v", err)
	}

	size, err := client.LLen(ctx, QueueReminders).Result()
	if err != nil {
		t.Fatalf("LLen failed: %v", err)
	}
	if size != 0 {
		t.Errorf("Expected future job off the work queue, got %d entries", size)
	}

	scheduled, err := client.ZCard(ctx, scheduledQueue).Result()
	if err != nil {
		t.Fatalf("ZCard failed: %v", err)
	}
	if scheduled != 1 {
		t.Errorf("Expected 1 scheduled job, got %d", scheduled)
	}
}

func TestWorker_PromotesDueScheduledJobs(t *testing.T) {
	client, _ := setupTestQueue(t)

	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Queues:      []string{QueueReminders, QueueMaintenance},
		Logger:      zap.NewNop(),
	})

	due := Job{
		ID:        "1",
		Type:      JobTypeTokenCleanup,
		Queue:     QueueMaintenance,
		MaxTries:  3,
		ProcessAt: time.Now().Add(-time.Minute),
	}
	future := Job{
		ID:        "2",
		Type:      JobTypeTaskReminder,
		Queue:     QueueReminders,
		MaxTries:  3,
		ProcessAt: time.Now().Add(time.Hour),
	}

	ctx := context.Background()
	for _, job := range []Job{due, future} {
		raw, err := json.Marshal(job)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		err = client.ZAdd(ctx, scheduledQueue, redis.Z{
			Score:  float64(job.ProcessAt.Unix()),
			Member: raw,
		}).Err()
		if err != nil {
			t.Fatalf("ZAdd failed: %v", err)
		}
	}

	if err := w.promoteDueJobs(); err != nil {
		t.Fatalf("promoteDueJobs failed: %v", err)
	}

	raw, err := client.LIndex(ctx, QueueMaintenance, 0).Result()
	if err != nil {
		t.Fatalf("Expected due job on its origin queue: %v", err)
	}
	var promoted Job
	if err := json.Unmarshal([]byte(raw), &promoted); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if promoted.ID != due.ID {
		t.Errorf("Expected job %s promoted, got %s", due.ID, promoted.ID)
	}

	scheduled, err := client.ZCard(ctx, scheduledQueue).Result()
	if err != nil {
		t.Fatalf("ZCard failed: %v", err)
	}
	if scheduled != 1 {
		t.Errorf("Expected the future job to stay scheduled, got %d entries", scheduled)
	}

	reminders, err := client.LLen(ctx, QueueReminders).Result()
	if err != nil {
		t.Fatalf("LLen failed: %v", err)
	}
	if reminders != 0 {
		t.Errorf("Expected no premature promotion, got %d entries", reminders)
	}
}

func TestJobQueue_EnqueueEvery(t *testing.T) {
	client, _ := setupTestQueue(t)
	queue := NewJobQueue(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.EnqueueEvery(ctx, 10*time.Millisecond, QueueMaintenance, JobTypeTokenCleanup, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		size, err := queue.GetQueueSize(QueueMaintenance)
		if err != nil {
			t.Fatalf("GetQueueSize failed: %v", err)
		}
		if size >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for a recurring job")
		}
		time.Sleep(5 * time.Millisecond)
	}

	raw, err := client.LIndex(context.Background(), QueueMaintenance, 0).Result()
	if err != nil {
		t.Fatalf("LIndex failed: %v", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if job.Type != JobTypeTokenCleanup {
		t.Errorf("Expected type %s, got %s", JobTypeTokenCleanup, job.Type)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	client, _ := setupTestQueue(t)
	queue := NewJobQueue(client)

	done := make(chan *Job, 1)

	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Queues:      []string{QueueReminders},
		Logger:      zap.NewNop(),
	})
	w.RegisterHandler(JobTypeTaskReminder, func(ctx context.Context, job *Job) error {
		done <- job
		return nil
	})
	w.Start(1)
	defer w.Stop()

	err := queue.Enqueue(QueueReminders, JobTypeTaskReminder, map[string]interface{}{
		"task_id": "abc",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case job := <-done:
		if job.Payload["task_id"] != "abc" {
			t.Errorf("Unexpected payload: %v", job.Payload)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for job to be processed")
	}
}

func TestWorker_UnknownJobTypeGoesNowhere(t *testing.T) {
	client, _ := setupTestQueue(t)

	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Queues:      []string{QueueReminders},
		Logger:      zap.NewNop(),
	})

	job := &Job{ID: "1", Type: "unknown_type", MaxTries: 3}
	if err := w.executeJob(job); err == nil {
		t.Error("Expected error for unregistered job type")
	}
}

func TestWorker_FailedJobMovesToDeadQueue(t *testing.T) {
	client, _ := setupTestQueue(t)

	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Queues:      []string{QueueReminders},
		Logger:      zap.NewNop(),
	})
	w.RegisterHandler(JobTypeTaskReminder, func(ctx context.Context, job *Job) error {
		return context.DeadlineExceeded
	})

	job := &Job{ID: "1", Type: JobTypeTaskReminder, Attempts: 2, MaxTries: 3}
	if err := w.executeJob(job); err != nil {
		t.Fatalf("executeJob failed: %v", err)
	}

	size, err := client.LLen(context.Background(), "dead_queue").Result()
	if err != nil {
		t.Fatalf("LLen failed: %v", err)
	}
	if size != 1 {
		t.Errorf("Expected 1 dead job, got %d", size)
	}
}

func TestWorker_FailedJobRetriesWithDelay(t *testing.T) {
	client, _ := setupTestQueue(t)

	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Queues:      []string{QueueReminders},
		Logger:      zap.NewNop(),
	})
	w.RegisterHandler(JobTypeTaskReminder, func(ctx context.Context, job *Job) error {
		return context.DeadlineExceeded
	})

	job := &Job{ID: "1", Type: JobTypeTaskReminder, Queue: QueueReminders, Attempts: 0, MaxTries: 3}
	if err := w.executeJob(job); err != nil {
		t.Fatalf("executeJob failed: %v", err)
	}

	ctx := context.Background()
	entries, err := client.ZRange(ctx, scheduledQueue, 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRange failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected retry on the scheduled set, got %d entries", len(entries))
	}

	var retried Job
	if err := json.Unmarshal([]byte(entries[0]), &retried); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if retried.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", retried.Attempts)
	}
	if retried.Queue != QueueReminders {
		t.Errorf("Expected retry to keep its origin queue, got %q", retried.Queue)
	}
	if !retried.ProcessAt.After(time.Now()) {
		t.Error("Expected retry to be scheduled in the future")
	}

	size, err := client.LLen(ctx, QueueReminders).Result()
	if err != nil {
		t.Fatalf("LLen failed: %v", err)
	}
	if size != 0 {
		t.Errorf("Expected origin queue drained until the delay elapses, got %d entries", size)
	}
}

func TestReminderHandler_SkipsCompletedTask(t *testing.T) {
	db := setupTestDB(t)

	task := models.Task{
		ID:        uuid.Must(uuid.NewV4()),
		UserID:    uuid.Must(uuid.NewV4()),
		Title:     "Submit expenses",
		DueDate:   time.Now(),
		Priority:  models.PriorityLow,
		Completed: true,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	handler := ReminderHandler(db, zap.NewNop())
	job := &Job{Type: JobTypeTaskReminder, Payload: map[string]interface{}{
		"task_id": task.ID.String(),
	}}

	if err := handler(context.Background(), job); err != nil {
		t.Errorf("Expected completed task to be skipped, got %v", err)
	}
}

func TestReminderHandler_SkipsDeletedTask(t *testing.T) {
	db := setupTestDB(t)

	handler := ReminderHandler(db, zap.NewNop())
	job := &Job{Type: JobTypeTaskReminder, Payload: map[string]interface{}{
		"task_id": uuid.Must(uuid.NewV4()).String(),
	}}

	if err := handler(context.Background(), job); err != nil {
		t.Errorf("Expected missing task to be skipped, got %v", err)
	}
}

func TestReminderHandler_RejectsMalformedPayload(t *testing.T) {
	db := setupTestDB(t)

	handler := ReminderHandler(db, zap.NewNop())

	job := &Job{Type: JobTypeTaskReminder, Payload: map[string]interface{}{}}
	if err := handler(context.Background(), job); err == nil {
		t.Error("Expected error for missing task_id")
	}

	job = &Job{Type: JobTypeTaskReminder, Payload: map[string]interface{}{
		"task_id": "not-a-uuid",
	}}
	if err := handler(context.Background(), job); err == nil {
		t.Error("Expected error for malformed task_id")
	}
}

func TestTokenCleanupHandler_PurgesExpiredOnly(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.Must(uuid.NewV4())

	expired := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserId:       userID,
		RefreshToken: uuid.Must(uuid.NewV4()),
		ExpiresAt:    time.Now().Add(-time.Hour),
	}
	valid := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserId:       userID,
		RefreshToken: uuid.Must(uuid.NewV4()),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := db.Create(&expired).Error; err != nil {
		t.Fatalf("failed to create token: %v", err)
	}
	if err := db.Create(&valid).Error; err != nil {
		t.Fatalf("failed to create token: %v", err)
	}

	handler := TokenCleanupHandler(db, zap.NewNop())
	if err := handler(context.Background(), &Job{Type: JobTypeTokenCleanup}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	var remaining []models.Token
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("failed to list tokens: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("Expected 1 remaining token, got %d", len(remaining))
	}
	if remaining[0].ID != valid.ID {
		t.Error("Expected the unexpired token to survive")
	}
}
