package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobType string

const (
	JobTypeTaskReminder JobType = "task_reminder"
	JobTypeTokenCleanup JobType = "token_cleanup"
)

const (
	QueueReminders   = "reminders"
	QueueMaintenance = "maintenance"
)

// scheduledQueue is a sorted set of serialized jobs scored by their
// ProcessAt time. Jobs wait here instead of circulating on the work
// queues, so a future reminder costs one promotion poll per interval
// rather than a hot pop/requeue loop.
const scheduledQueue = "scheduled_jobs"

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	logger       *zap.Logger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Queues       []string
	PollInterval time.Duration
	Logger       *zap.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	w.logger.Info("starting worker", zap.Int("concurrency", concurrency))

	w.wg.Add(1)
	go w.schedulerLoop()

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(); err != nil {
				w.logger.Error("error processing job", zap.Error(err))
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) schedulerLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.promoteDueJobs(); err != nil && w.ctx.Err() == nil {
				w.logger.Error("error promoting scheduled jobs", zap.Error(err))
			}
		}
	}
}

// promoteDueJobs moves every job whose ProcessAt has passed from the
// scheduled set back onto its origin queue.
func (w *Worker) promoteDueJobs() error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	entries, err := w.client.ZRangeByScore(w.ctx, scheduledQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	for _, raw := range entries {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Unreadable entry; drop it rather than promote it forever.
			w.client.ZRem(w.ctx, scheduledQueue, raw)
			w.logger.Error("dropping malformed scheduled job", zap.Error(err))
			continue
		}

		queue := job.Queue
		if queue == "" && len(w.queues) > 0 {
			queue = w.queues[0]
		}

		if err := w.client.RPush(w.ctx, queue, raw).Err(); err != nil {
			return fmt.Errorf("failed to promote job %s: %w", job.ID, err)
		}
		w.client.ZRem(w.ctx, scheduledQueue, raw)
	}

	return nil
}

func (w *Worker) processNextJob() error {
	result, err := w.client.BLPop(w.ctx, 5*time.Second, w.queues...).Result()
	if err != nil {
		if err == redis.Nil || w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	jobData := result[1]

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.Queue = queue

	if time.Now().Before(job.ProcessAt) {
		return w.scheduleJob(&job)
	}

	return w.executeJob(&job)
}

func (w *Worker) executeJob(job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	err := handler(ctx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			w.logger.Warn("job failed, retrying",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempts),
				zap.Int("max_tries", job.MaxTries),
				zap.Error(err))
			return w.retryJob(job)
		}

		w.logger.Error("job failed permanently",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		return w.moveToDeadQueue(job, err)
	}

	w.logger.Debug("job completed",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)))
	return nil
}

// retryJob parks the failed job on the scheduled set with an
// exponential delay; the scheduler returns it to its origin queue when
// the delay elapses.
func (w *Worker) retryJob(job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Minute
	job.ProcessAt = time.Now().Add(delay)

	return w.scheduleJob(job)
}

func (w *Worker) scheduleJob(job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.ZAdd(w.ctx, scheduledQueue, redis.Z{
		Score:  float64(job.ProcessAt.Unix()),
		Member: jobData,
	}).Err()
}

func (w *Worker) moveToDeadQueue(job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(w.ctx, "dead_queue", deadJobData).Err()
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(queue string, jobType JobType, payload map[string]interface{}) error {
	return q.EnqueueAt(queue, jobType, payload, time.Now())
}

// EnqueueAt queues the job for execution at processAt. Future jobs
// wait on the scheduled set until due; past and immediate jobs go
// straight onto the work queue.
func (q *JobQueue) EnqueueAt(queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) error {
	job := &Job{
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		Type:      jobType,
		Queue:     queue,
		Payload:   payload,
		Attempts:  0,
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if processAt.After(time.Now()) {
		return q.client.ZAdd(ctx, scheduledQueue, redis.Z{
			Score:  float64(processAt.Unix()),
			Member: jobData,
		}).Err()
	}

	return q.client.RPush(ctx, queue, jobData).Err()
}

// EnqueueEvery enqueues the job on a fixed interval until the context
// is cancelled. Used for recurring maintenance such as refresh-token
// cleanup.
func (q *JobQueue) EnqueueEvery(ctx context.Context, interval time.Duration, queue string, jobType JobType, payload map[string]interface{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Enqueue(queue, jobType, payload)
			}
		}
	}()
}

func (q *JobQueue) GetQueueSize(queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

func (q *JobQueue) GetScheduledSize() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return q.client.ZCard(ctx, scheduledQueue).Result()
}
