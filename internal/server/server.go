// Package server contains HTTP and WebSocket handlers for the comment API.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"murmur/internal/cache"
	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/moderation"
	"murmur/internal/notifications"
	"murmur/internal/repository"
	"murmur/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	commentRepo      repository.CommentRepository
	interactionRepo  repository.InteractionRepository
	notificationRepo repository.NotificationRepository

	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher

	commentService      *service.CommentService
	notificationService *service.NotificationService
}

// NewServer creates a new server instance with all dependencies.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)

	commentRepo := repository.NewCommentRepository(db, cfg.MaxTreeDepth)
	interactionRepo := repository.NewInteractionRepository(db, cfg.ReportHideThreshold)
	notificationRepo := repository.NewNotificationRepository(db)

	prom := middleware.InitMetrics("murmur-api")

	lexicon, err := moderation.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		// Run with an empty lexicon rather than refusing to start; the
		// classifier and trust stages still apply.
		log.Printf("lexicon load failed (%v), moderation runs without term lists", err)
		lexicon = moderation.NewLexicon(nil, nil)
	}
	pipeline := moderation.NewPipeline(lexicon, moderation.NewHeuristicClassifier(), moderation.PipelineConfig{
		RejectScore:       cfg.ModerationReject,
		FlagScore:         cfg.ModerationFlag,
		ClassifierTimeout: cfg.ClassifierTimeout(),
	})

	server := &Server{
		config:           cfg,
		db:               db,
		redis:            redisClient,
		promMiddleware:   prom,
		commentRepo:      commentRepo,
		interactionRepo:  interactionRepo,
		notificationRepo: notificationRepo,
	}

	// The notifier is nil-safe: without Redis, publishes are dropped but the
	// dispatcher still writes inbox notifications.
	server.notifier = notifications.NewNotifier(redisClient)
	server.dispatcher = notifications.NewDispatcher(
		server.notifier, notificationRepo, cfg.FanoutBuffer, cfg.FanoutWorkers)
	if redisClient != nil {
		server.hub = notifications.NewHub()
	}

	server.commentService = service.NewCommentService(
		commentRepo, interactionRepo, pipeline, service.NewRenderer(),
		server.dispatcher, redisClient, cfg)
	server.notificationService = service.NewNotificationService(notificationRepo)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// OpenTelemetry span per request
	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit
	// (e.g. limiter) so browser clients still receive CORS headers on error
	// responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP). Per-actor write
	// limits are enforced inside the engine.
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Murmur Metrics Dashboard",
	}))

	// Public read routes. OptionalAuth lets moderators and authors see
	// through status stubs while anonymous readers get the public view.
	items := api.Group("/items", middleware.OptionalAuth)
	items.Get("/:itemId/comments/tree", s.GetCommentTree)
	items.Get("/:itemId/comments/stats", s.GetCommentStats)
	items.Get("/:itemId/comments", s.GetComments)
	items.Post("/:itemId/views", s.RecordView)

	api.Get("/comments/:id", middleware.OptionalAuth, s.GetComment)

	// Protected write routes
	protected := api.Group("", middleware.AuthRequired)
	protected.Post("/items/:itemId/comments", s.CreateComment)
	protected.Put("/comments/:id", s.UpdateComment)
	protected.Delete("/comments/:id", s.DeleteComment)
	protected.Post("/comments/:id/like", s.LikeComment)
	protected.Delete("/comments/:id/like", s.UnlikeComment)
	protected.Post("/comments/:id/report", s.ReportComment)

	// Moderation routes. The engine enforces the role; the route only
	// requires authentication.
	modGroup := protected.Group("/moderation")
	modGroup.Get("/queue", s.GetModerationQueue)
	modGroup.Post("/comments/:id/status", s.SetCommentStatus)

	// Notification inbox
	inbox := protected.Group("/notifications")
	inbox.Get("/", s.GetNotifications)
	inbox.Post("/:id/read", s.MarkNotificationRead)

	// Live comment stream per content item. Anonymous watchers are allowed;
	// authenticated users additionally receive personal notifications.
	api.Get("/ws/comments/:itemId", middleware.OptionalAuth, s.WebSocketUpgrade, s.WebSocketCommentStream())
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Without Redis the engine still serves reads and writes; caching,
		// rate limits and live fan-out degrade. Report it but stay ready.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Murmur Comment API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				log.Printf("failed to start %s wiring: %v", s.hub.Name(), err)
			}
		}()
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the hub wiring goroutine first so no new broadcasts arrive while
	// connections drain.
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Drain queued fan-out events before the inbox repository loses its DB.
	if s.dispatcher != nil {
		if err := s.dispatcher.Shutdown(ctx); err != nil {
			log.Printf("error draining dispatcher: %v", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", s.hub.Name(), err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
