package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"taskboard/backend/internal/cache"
	"taskboard/backend/internal/channel"
	"taskboard/backend/internal/config"
	"taskboard/backend/internal/database"
	"taskboard/backend/internal/handlers"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/monitoring"
	"taskboard/backend/internal/repositories"
	"taskboard/backend/internal/services"
)

// Application holds all application dependencies and state
type Application struct {
	Config  *config.Config
	DB      *database.Store
	Cache   cache.Cache
	Redis   *redis.Client
	Channel *channel.Manager
	Router  *gin.Engine
	Server  *http.Server

	// Services
	TaskService     services.TaskService
	ActivityService services.ActivityService

	cacheMetrics *cache.CacheMetrics
	boardID      uuid.UUID
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize application: %v", err)
	}

	app.setupRoutes()
	app.startServer()
}

func initializeApplication(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
	}

	log.Println("🚀 Initializing Task Board Sync Backend...")
	log.Printf("📋 Environment: %s", cfg.Server.Environment)

	boardID, err := uuid.FromString(cfg.Board.DefaultBoardID)
	if err != nil {
		return nil, fmt.Errorf("invalid BOARD_ID: %w", err)
	}
	app.boardID = boardID

	store, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	app.DB = store

	migrationConfig := &repositories.MigrationConfig{
		SourceURL: "file://migrations",
		DBName:    cfg.Database.Name,
		ReadyWait: 10 * time.Second,
	}
	if err := repositories.RunMigrations(store.DB, migrationConfig); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (the event channel requires it): %w", err)
	}
	app.Redis = redisClient
	log.Println("✅ Redis connected")

	app.Channel = channel.NewManager(
		channel.NewRedisTransport(redisClient),
		channel.WithDebounce(cfg.Board.SubscribeDebounce),
	)
	log.Printf("✅ Event channel manager initialized (debounce %s)", cfg.Board.SubscribeDebounce)

	app.Cache = cache.NewRedisCacheFromClient(redisClient)
	log.Println("✅ Redis read cache initialized")

	cached := services.NewCachedTaskService(services.NewTaskService(), app.Cache)
	app.TaskService = cached
	app.cacheMetrics = cached.Metrics()
	app.ActivityService = services.NewActivityService()
	log.Println("✅ All services initialized")

	monitoring.RegisterHealthCheck("database", func(ctx context.Context) error {
		return app.DB.Health()
	})
	monitoring.RegisterHealthCheck("redis", func(ctx context.Context) error {
		return app.Redis.Ping(ctx).Err()
	})
	monitoring.RegisterHealthCheck("cache", func(ctx context.Context) error {
		return app.Cache.Health()
	})

	return app, nil
}

func (app *Application) setupRoutes() {
	r := gin.New()

	// Global middleware stack (order matters!)
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(monitoring.MetricsMiddleware())
	r.Use(middleware.RecoveryWithLog())
	r.Use(middleware.SecureHeader())

	// Rate limiting
	rateLimit := rate.Limit(float64(app.Config.RateLimit.RequestsPerMin) / 60.0)
	r.Use(middleware.RateLimiter(rateLimit, app.Config.RateLimit.BurstSize))

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://host.docker.internal"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Origin-Seq"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health and monitoring endpoints (no identity required)
	r.GET("/health", monitoring.HealthHandler())
	r.GET("/ready", monitoring.ReadinessHandler())
	r.GET("/live", monitoring.LivenessHandler())
	r.GET("/metrics", monitoring.MetricsHandler())

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Identity(middleware.IdentityConfig{
		Secret:   app.Config.Server.JWTSecret,
		Required: app.Config.IsProduction(),
	}))

	publisher := channel.NewPublisher(app.Redis)
	taskHandler := handlers.NewTaskHandler(app.DB.DB, app.TaskService, app.ActivityService, publisher, app.boardID, app.Config.Board.CommitTimeout)
	taskRoutes := v1.Group("/tasks")
	{
		taskRoutes.POST("", taskHandler.CreateTask)
		taskRoutes.GET("", taskHandler.GetTasks)
		taskRoutes.GET("/:id", taskHandler.GetTaskByID)
		taskRoutes.PUT("/:id", taskHandler.UpdateTask)
		taskRoutes.DELETE("/:id", taskHandler.DeleteTask)
		taskRoutes.POST("/:id/move", taskHandler.MoveTask)
		taskRoutes.POST("/:id/assign", taskHandler.ReassignTask)
		taskRoutes.POST("/:id/merge", taskHandler.MergeTasks)
	}

	activityHandler := handlers.NewActivityHandler(app.DB.DB, app.ActivityService, app.Config.Board.ActivityPageSize, app.Config.Board.WatermarkDir)
	v1.GET("/activity", activityHandler.GetActivity)
	v1.POST("/notifications/read", activityHandler.MarkAllRead)

	// The SSE feed shares Redis counters across replicas so one board
	// cannot monopolize event streams.
	eventsHandler := handlers.NewEventsHandler(app.Channel)
	streamLimiter := middleware.NewDistributedRateLimiter(app.Redis)
	streamLimit := streamLimiter.CreateMiddleware("board_events", &middleware.RateLimit{
		Rate:    30,
		Window:  time.Minute,
		KeyFunc: middleware.BoardKeyFunc,
	})
	v1.GET("/boards/:id/events", streamLimit, eventsHandler.StreamBoard)
	v1.GET("/activity/events", eventsHandler.StreamActivity)

	cacheHandler := handlers.NewCacheHandler(app.Cache, app.cacheMetrics)
	cacheRoutes := v1.Group("/cache")
	{
		cacheRoutes.GET("/stats", cacheHandler.GetCacheStats)
		cacheRoutes.GET("/health", cacheHandler.GetCacheHealth)
		cacheRoutes.DELETE("/keys/:key", cacheHandler.EvictCacheKey)
	}

	app.Router = r
}

// newHTTPServer deliberately sets no write timeout: the SSE routes hold
// their response open for the life of the client, and a server-wide write
// deadline would sever every stream. Slow clients are bounded by the read
// and idle timeouts and the per-request commit deadline.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        cfg.GetServerAddr(),
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
}

func (app *Application) startServer() {
	app.Server = newHTTPServer(app.Config, app.Router)
	addr := app.Server.Addr

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🛑 Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := app.Server.Shutdown(ctx); err != nil {
			log.Printf("❌ Server forced to shutdown: %v", err)
		}

		app.cleanup()
		log.Println("✅ Server stopped gracefully")
	}()

	log.Printf("🚀 Server starting on %s", addr)
	log.Printf("📊 Metrics available at http://%s/metrics", addr)
	log.Printf("💚 Health check at http://%s/health", addr)

	if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("❌ Server failed to start: %v", err)
	}
}

func (app *Application) cleanup() {
	log.Println("🧹 Cleaning up resources...")

	if app.Channel != nil {
		app.Channel.CloseAll()
	}

	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			log.Printf("⚠️  Error closing cache: %v", err)
		}
	}

	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}

	if app.DB != nil {
		log.Printf("📊 Board store pool at shutdown: %+v", app.DB.Stats())
		if err := app.DB.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}

	log.Println("✅ Cleanup complete")
}
