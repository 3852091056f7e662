package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/scheduler"
	"github.com/onurcolak/followup-engine/pkg/response"
	"github.com/onurcolak/followup-engine/pkg/validator"
)

type passController interface {
	StartWithParams(ctx context.Context, intervalSeconds int) error
	Stop() error
	IsRunning() bool
	GetStatus() scheduler.SchedulerStatus
	RunPass(ctx context.Context) (domain.DispatchSummary, error)
}

type pendingCounter interface {
	PendingCounts(ctx context.Context, now time.Time) (domain.PendingCounts, error)
}

type SchedulerHandler struct {
	scheduler passController
	pending   pendingCounter
	ctx       context.Context
	config    *environments.Config
}

type StartSchedulerRequest struct {
	IntervalSeconds *int `json:"intervalSeconds,omitempty" validate:"omitempty,min=5"`
}

// ProcessResult is returned by the dispatch trigger.
type ProcessResult struct {
	Summary domain.DispatchSummary `json:"summary"`
	Pending domain.PendingCounts   `json:"pending"`
}

func NewSchedulerHandler(
	sched passController,
	pending pendingCounter,
	ctx context.Context,
	cfg *environments.Config,
) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		pending:   pending,
		ctx:       ctx,
		config:    cfg,
	}
}

// ProcessDueFollowUps godoc
// @Summary Run one dispatch pass
// @Description Sends every follow-up that is due now. Meant for an external cron; safe to call while the in-process scheduler runs
// @Tags scheduler
// @Produce json
// @Param x-cron-secret header string false "Cron secret"
// @Param x-ins-auth-key header string false "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/process [post]
func (h *SchedulerHandler) ProcessDueFollowUps(c echo.Context) error {
	// The pass outlives a dropped cron connection.
	ctx := context.WithoutCancel(c.Request().Context())

	summary, err := h.scheduler.RunPass(ctx)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	pending, err := h.pending.PendingCounts(ctx, time.Now().UTC())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, ProcessResult{Summary: summary, Pending: pending})
}

// GetProcessStatus godoc
// @Summary Pending follow-up counts
// @Description Returns how many one-shot and recurring follow-ups are pending and due now, without sending anything
// @Tags scheduler
// @Produce json
// @Param x-cron-secret header string false "Cron secret"
// @Param x-ins-auth-key header string false "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/process [get]
func (h *SchedulerHandler) GetProcessStatus(c echo.Context) error {
	pending, err := h.pending.PendingCounts(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, pending)
}

// StartScheduler godoc
// @Summary Start the follow-up scheduler
// @Description Starts the in-process timer that runs a dispatch pass every interval
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-ins-auth-key header string true "API key for scheduler"
// @Param request body StartSchedulerRequest false "Scheduler parameters (optional)"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	var req StartSchedulerRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	intervalSeconds := int(h.config.Dispatch.Interval.Seconds())
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if req.IntervalSeconds != nil {
		intervalSeconds = *req.IntervalSeconds
	}

	if err := h.scheduler.StartWithParams(h.ctx, intervalSeconds); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the follow-up scheduler
// @Description Stops the in-process timer. External cron triggers keep working
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-ins-auth-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get scheduler status
// @Description Returns the scheduler state and the number of pending follow-ups
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-ins-auth-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	status := map[string]any{
		"scheduler": h.scheduler.GetStatus(),
	}

	pending, err := h.pending.PendingCounts(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return response.InternalServerError(c, err)
	}
	status["pending"] = pending

	return response.Ok(c, status)
}
