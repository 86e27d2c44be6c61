package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apptly/api/routes"
	"apptly/internal/bookings"
	"apptly/internal/notifications"
	"apptly/internal/shared/config"
	"apptly/internal/shared/database"
	"apptly/internal/waitlist"
	"apptly/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	// Load config
	cfg := config.Load()

	// Set Gin mode (debug/release)
	gin.SetMode(cfg.GinMode)

	// Initialize DB
	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize offer dispatcher. Dispatch is best-effort, so a missing
	// broker degrades to the log dispatcher instead of failing startup.
	var notifier waitlist.Notifier
	kafkaDispatcher, err := notifications.NewKafkaDispatcher(&notifications.KafkaDispatcherConfig{
		Brokers:          cfg.Kafka.Brokers,
		OfferTopic:       cfg.Kafka.OfferTopic,
		RetryMax:         cfg.Kafka.RetryMax,
		TimeoutMs:        cfg.Kafka.TimeoutMs,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	})
	if err != nil {
		appLogger.Error("Failed to initialize Kafka dispatcher, falling back to log dispatcher", slog.Any("error", err))
		notifier = notifications.NewLogDispatcher()
	} else {
		notifier = kafkaDispatcher
		defer kafkaDispatcher.Close()
		appLogger.Info("Kafka offer dispatcher initialized",
			slog.String("topic", cfg.Kafka.OfferTopic),
		)
	}

	// Wire the waitlist engine
	bookingService := bookings.NewService(db.GetPostgreSQL())
	waitlistRepo := waitlist.NewRepository(db.GetPostgreSQL())
	waitlistService := waitlist.NewService(waitlistRepo, notifier, bookingService, &waitlist.ServiceConfig{
		ConfirmationWindow: cfg.Waitlist.ConfirmationWindow,
		PatienceWindow:     cfg.Waitlist.PatienceWindow,
		SweepBatchSize:     cfg.Waitlist.SweepBatchSize,
	})
	waitlistController := waitlist.NewController(waitlistService)

	// Start the background sweeper
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	sweeper := waitlist.NewSweeper(waitlistService, db.GetRedisClient(), &waitlist.SweeperConfig{
		Interval: cfg.Waitlist.SweepInterval,
	})
	sweeper.Start(sweeperCtx)
	defer sweeper.Stop()

	// Setup router
	router := setupRouter(cfg, db, waitlistController)

	// HTTP server
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.Duration("sweep_interval", cfg.Waitlist.SweepInterval),
			slog.Duration("confirmation_window", cfg.Waitlist.ConfirmationWindow),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, waitlistController *waitlist.Controller) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true // allow every origin dynamically
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Initialize and setup routes
	appRouter := routes.NewRouter(cfg, db, waitlistController)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
