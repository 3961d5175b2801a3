package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-planner/backend/internal/ai"
	"task-planner/backend/internal/cache"
	"task-planner/backend/internal/config"
	"task-planner/backend/internal/database"
	"task-planner/backend/internal/handlers"
	"task-planner/backend/internal/middleware"
	"task-planner/backend/internal/models"
	"task-planner/backend/internal/monitoring"
	"task-planner/backend/internal/services"
	"task-planner/backend/internal/stream"
	"task-planner/backend/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	redisCache := cache.NewRedisCache(&cache.CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisCache.Close()

	taskService := services.NewCachedTaskService(services.NewTaskService(), redisCache)
	authService := services.NewAuthService(cfg.Auth)
	registerService := services.NewRegisterService(cfg.Auth.BCryptCost)

	completionClient := ai.NewClient(ai.ClientConfig{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.RequestTimeout,
	})
	suggestionService := services.NewSuggestionService(completionClient, cfg.OpenAI.RequestTimeout)

	hub := stream.NewHub(func(userID uuid.UUID) ([]models.Task, error) {
		return taskService.GetTasksByUser(db, userID)
	}, cfg.Stream.SendBuffer, logger)
	defer hub.Close()

	jobQueue := worker.NewJobQueue(redisCache.Client())

	jobs := worker.NewWorker(worker.WorkerConfig{
		RedisClient:  redisCache.Client(),
		Queues:       cfg.Worker.Queues,
		PollInterval: cfg.Worker.PollInterval,
		Logger:       logger,
	})
	jobs.RegisterHandler(worker.JobTypeTaskReminder, worker.ReminderHandler(db, logger))
	jobs.RegisterHandler(worker.JobTypeTokenCleanup, worker.TokenCleanupHandler(db, logger))
	jobs.Start(cfg.Worker.Concurrency)
	defer jobs.Stop()

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	jobQueue.EnqueueEvery(cleanupCtx, cfg.Worker.TokenCleanupInterval, worker.QueueMaintenance, worker.JobTypeTokenCleanup, nil)

	monitoring.RegisterHealthCheck("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	monitoring.RegisterHealthCheck("redis", func(ctx context.Context) error {
		return redisCache.Health(ctx)
	})

	router := setupRouter(cfg, logger, db, taskService, authService, registerService, suggestionService, hub, jobQueue)

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	taskService services.TaskService,
	authService services.AuthService,
	registerService services.RegisterService,
	suggestionService services.SuggestionService,
	hub *stream.Hub,
	jobQueue *worker.JobQueue,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithLogger(logger))
	router.Use(monitoring.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.BurstSize,
			cfg.RateLimit.CleanupInterval,
		)
		router.Use(limiter.Middleware())
	}

	router.GET("/healthz", monitoring.HealthHandler)
	router.GET("/metrics", monitoring.MetricsHandler)

	authHandler := handlers.NewAuthHandler(db, authService)
	registerHandler := handlers.NewRegisterHandler(db, registerService, authService)
	refreshHandler := handlers.NewRefreshHandler(db, authService)
	logoutHandler := handlers.NewLogoutHandler(db, authService)
	taskHandler := handlers.NewTaskHandler(db, taskService, hub, jobQueue)
	suggestionHandler := handlers.NewSuggestionHandler(db, taskService, suggestionService)
	streamHandler := handlers.NewStreamHandler(hub, cfg.Stream.WriteTimeout, cfg.Stream.PingInterval, logger)
	userHandler := handlers.NewUserHandler(db)

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", registerHandler.Register)
		auth.POST("/token", authHandler.Token)
		auth.POST("/google", authHandler.GoogleToken)
		auth.POST("/refresh", refreshHandler.Refresh)
		auth.POST("/logout", logoutHandler.Logout)
	}

	api := router.Group("/api", middleware.AuthzMiddleware(cfg.Auth.JWTSecret))
	{
		api.GET("/me", userHandler.Me)

		api.GET("/tasks", taskHandler.GetTasks)
		api.POST("/tasks", taskHandler.CreateTask)
		api.GET("/tasks/:id", taskHandler.GetTaskByID)
		api.PATCH("/tasks/:id", taskHandler.UpdateTask)
		api.DELETE("/tasks/:id", taskHandler.DeleteTask)
		api.PATCH("/tasks/:id/complete", taskHandler.ToggleComplete)
		api.GET("/tasks/stream", streamHandler.Stream)

		api.POST("/suggestions", suggestionHandler.GetSuggestion)
	}

	return router
}
