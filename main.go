package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/handlers"
	"github.com/onurcolak/followup-engine/internal/correlator"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/middlewares"
	"github.com/onurcolak/followup-engine/internal/observability"
	"github.com/onurcolak/followup-engine/internal/ratelimit"
	"github.com/onurcolak/followup-engine/internal/repository"
	"github.com/onurcolak/followup-engine/internal/scheduler"
	"github.com/onurcolak/followup-engine/internal/service"
	"github.com/onurcolak/followup-engine/pkg/analyzer"
	"github.com/onurcolak/followup-engine/pkg/database"
	"github.com/onurcolak/followup-engine/pkg/logger"
	"github.com/onurcolak/followup-engine/pkg/redis"
	"github.com/onurcolak/followup-engine/pkg/validator"
	"github.com/onurcolak/followup-engine/pkg/webhook"
	"github.com/onurcolak/followup-engine/pkg/whatsapp"
	"github.com/onurcolak/followup-engine/routes"

	_ "github.com/onurcolak/followup-engine/docs" // swagger docs
)

type replyAnalyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

// @title Clinic Follow-Up Engine API
// @version 1.0
// @description Schedules WhatsApp follow-ups for clinic leads, dispatches them and correlates replies
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email onur.colak@useinsider.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Load config
	cfg := environments.Load()

	logger.Init(cfg.Log.Format, cfg.Log.Level)

	// Hard-fail if required secrets are missing
	if cfg.Auth.FollowUpsAPIKey == "" {
		logger.Fatalf("FOLLOWUPS_API_KEY is required but not set")
	}
	if cfg.Auth.SchedulerAPIKey == "" {
		logger.Fatalf("SCHEDULER_API_KEY is required but not set")
	}
	if cfg.Gateway.APIKey == "" {
		logger.Fatalf("GATEWAY_API_KEY is required but not set")
	}
	if cfg.Auth.WebhookToken == "" {
		logger.Warnf("WEBHOOK_TOKEN is not set, the WhatsApp webhook accepts unauthenticated calls")
	}

	logger.Infof("Starting Follow-Up Engine...")

	observability.Register(prometheus.DefaultRegisterer)

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis. Without it cool-downs are kept in memory (single instance
	// only) and webhook redeliveries are not deduplicated.
	var cooldownStore ratelimit.Store
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, using in-memory cool-downs: %v", err)
		redisClient = nil
		cooldownStore = ratelimit.NewMemoryStore()
	} else {
		cooldownStore = redisClient
	}

	// Gateway and reply analysis
	gatewayClient := whatsapp.NewClient(cfg.Gateway)
	logger.Infof("WhatsApp gateway configured: %s", gatewayClient.SendURL())

	var replies replyAnalyzer
	if cfg.Analyzer.URL != "" {
		replies = analyzer.NewClient(cfg.Analyzer)
		logger.Infof("Reply analyzer configured: %s", cfg.Analyzer.URL)
	} else {
		replies = analyzer.NewKeywordAnalyzer(cfg.Analyzer.StopKeywords)
		logger.Infof("ANALYZER_URL not set, using keyword reply analysis")
	}

	// Initialize repositories
	followUpRepo := repository.NewFollowUpRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)

	// Initialize services
	dispatcher := service.NewDispatcher(followUpRepo, recipientRepo, gatewayClient, cfg.Dispatch)
	followUpService := service.NewFollowUpService(
		followUpRepo,
		recipientRepo,
		dispatcher,
		gatewayClient,
		ratelimit.New(cooldownStore),
		cfg.Cooldown,
		cfg.Dispatch.SendTimeout,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var replyCorrelator *correlator.Correlator
	if redisClient != nil {
		replyCorrelator = correlator.New(recipientRepo, followUpRepo, replies, redisClient, cfg.Correlator)
	} else {
		replyCorrelator = correlator.New(recipientRepo, followUpRepo, replies, nil, cfg.Correlator)
	}
	replyCorrelator.Start(ctx)

	// Initialize scheduler
	sched := scheduler.NewScheduler(dispatcher, cfg.Dispatch.Interval)
	if cfg.Alert.WebhookURL != "" {
		sched.SetAlerts(webhook.NewAlertClient(cfg.Alert.WebhookURL, 10*time.Second), cfg.Alert.IterationCount)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, nil, gatewayClient)
	if redisClient != nil {
		healthHandler = handlers.NewHealthHandler(db, redisClient, gatewayClient)
	}
	followUpHandler := handlers.NewFollowUpHandler(followUpService)
	schedulerHandler := handlers.NewSchedulerHandler(sched, dispatcher, ctx, cfg)
	webhookHandler := handlers.NewWebhookHandler(replyCorrelator)

	// Auto-start scheduler. Deployments driven by an external cron leave it off.
	if cfg.Dispatch.AutoStart {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
			middlewares.CronSecretHeader,
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, followUpHandler, schedulerHandler, webhookHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Stop accepting requests first so no new webhook jobs are queued
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Stop scheduler (with timeout)
	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopWithTimeout("scheduler", 30*time.Second, func() {
			if err := sched.Stop(); err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			}
		})
	}

	// Drain queued reply analysis
	logger.Infof("Draining reply correlator...")
	stopWithTimeout("reply correlator", 30*time.Second, replyCorrelator.Stop)

	// Cancel context to signal all goroutines to stop
	cancel()

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}

func stopWithTimeout(name string, timeout time.Duration, stop func()) {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("Stopped %s successfully", name)
	case <-time.After(timeout):
		logger.Warnf("Timed out stopping %s, forcing shutdown", name)
	}
}
