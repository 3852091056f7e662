package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/handlers"
	"github.com/onurcolak/followup-engine/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	followUpHandler *handlers.FollowUpHandler,
	schedulerHandler *handlers.SchedulerHandler,
	webhookHandler *handlers.WebhookHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	followUpAuth := middlewares.APIKeyAuth(cfg.Auth.FollowUpsAPIKey)

	followUps := v1.Group("/followups", followUpAuth)

	followUps.POST("", followUpHandler.CreateFollowUp)
	followUps.GET("/:id", followUpHandler.GetFollowUp)
	followUps.POST("/:id/send", followUpHandler.SendFollowUp)
	followUps.POST("/:id/cancel", followUpHandler.CancelFollowUp)
	followUps.POST("/:id/replay", followUpHandler.ReplayFollowUp)
	followUps.POST("/:id/resend", followUpHandler.ResendFollowUp)

	v1.GET("/recipients/:phone/followups", followUpHandler.GetRecipientHistory, followUpAuth)

	// Cron trigger accepts the cron secret or the scheduler key
	processAuth := middlewares.SchedulerAuth(cfg.Auth.CronSecret, cfg.Auth.SchedulerAPIKey)
	v1.GET("/scheduler/process", schedulerHandler.GetProcessStatus, processAuth)
	v1.POST("/scheduler/process", schedulerHandler.ProcessDueFollowUps, processAuth)

	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	schedulerGroup.POST("/start", schedulerHandler.StartScheduler)
	schedulerGroup.POST("/stop", schedulerHandler.StopScheduler)
	schedulerGroup.GET("/status", schedulerHandler.GetSchedulerStatus)

	webhooks := v1.Group("/webhooks", middlewares.WebhookToken(cfg.Auth.WebhookToken))
	webhooks.POST("/whatsapp", webhookHandler.ReceiveWhatsApp)
}
