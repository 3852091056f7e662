package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/service"
	"github.com/onurcolak/followup-engine/pkg/response"
	"github.com/onurcolak/followup-engine/pkg/validator"
)

// followUpManager is the part of FollowUpService the HTTP layer needs.
type followUpManager interface {
	Create(ctx context.Context, p service.CreateFollowUpParams, now time.Time) (*domain.FollowUp, error)
	Get(ctx context.Context, id int64) (*domain.FollowUp, error)
	SendNow(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error)
	Cancel(ctx context.Context, id int64) (*domain.FollowUp, error)
	ReplayFailed(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error)
	Resend(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error)
	History(ctx context.Context, phone string, page, pageSize int) ([]domain.FollowUp, int64, error)
}

type FollowUpHandler struct {
	service followUpManager
	now     func() time.Time
}

func NewFollowUpHandler(svc followUpManager) *FollowUpHandler {
	return &FollowUpHandler{
		service: svc,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type CreateFollowUpRequest struct {
	RecipientPhone string          `json:"recipientPhone" validate:"required,phone"`
	RecipientName  string          `json:"recipientName" validate:"max=255"`
	Kind           string          `json:"kind" validate:"max=64"`
	Channel        domain.Channel  `json:"channel" validate:"omitempty,oneof=manual template automatic"`
	Body           string          `json:"body" validate:"required,max=4096"`
	ScheduledAt    *time.Time      `json:"scheduledAt,omitempty"`
	IsRecurring    bool            `json:"isRecurring"`
	Cadence        *domain.Cadence `json:"cadence,omitempty" validate:"required_if=IsRecurring true"`
}

// CreateFollowUp godoc
// @Summary Schedule a follow-up
// @Description Creates a one-shot follow-up (due at scheduledAt, default now) or a recurring one (first run at scheduledAt, then every cadence step)
// @Tags followups
// @Accept json
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param followUp body CreateFollowUpRequest true "Follow-up to schedule"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/followups [post]
func (h *FollowUpHandler) CreateFollowUp(c echo.Context) error {
	var req CreateFollowUpRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	f, err := h.service.Create(c.Request().Context(), service.CreateFollowUpParams{
		RecipientPhone: req.RecipientPhone,
		RecipientName:  req.RecipientName,
		Kind:           req.Kind,
		Channel:        req.Channel,
		Body:           req.Body,
		ScheduledAt:    req.ScheduledAt,
		IsRecurring:    req.IsRecurring,
		Cadence:        req.Cadence,
	}, h.now())
	if err != nil {
		return h.handleError(c, err)
	}

	return response.Created(c, "Follow-up scheduled successfully", f)
}

// GetFollowUp godoc
// @Summary Get a follow-up
// @Tags followups
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param id path int true "Follow-up ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/followups/{id} [get]
func (h *FollowUpHandler) GetFollowUp(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	f, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return response.Ok(c, f)
}

// SendFollowUp godoc
// @Summary Send a pending follow-up now
// @Description Dispatches a pending follow-up immediately, ignoring its due time
// @Tags followups
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param id path int true "Follow-up ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/followups/{id}/send [post]
func (h *FollowUpHandler) SendFollowUp(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	f, err := h.service.SendNow(c.Request().Context(), id, h.now())
	if err != nil {
		return h.handleError(c, err)
	}

	return response.OkWithMessage(c, "Follow-up sent", f)
}

// CancelFollowUp godoc
// @Summary Cancel a pending follow-up
// @Tags followups
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param id path int true "Follow-up ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/followups/{id}/cancel [post]
func (h *FollowUpHandler) CancelFollowUp(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	f, err := h.service.Cancel(c.Request().Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return response.OkWithMessage(c, "Follow-up cancelled", f)
}

// ReplayFollowUp godoc
// @Summary Replay a failed follow-up
// @Description Sets a failed one-shot follow-up back to pending, due now
// @Tags followups
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param id path int true "Follow-up ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/followups/{id}/replay [post]
func (h *FollowUpHandler) ReplayFollowUp(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	f, err := h.service.ReplayFailed(c.Request().Context(), id, h.now())
	if err != nil {
		return h.handleError(c, err)
	}

	return response.OkWithMessage(c, "Follow-up queued again", f)
}

// ResendFollowUp godoc
// @Summary Manually resend a follow-up
// @Description Sends the follow-up body again, at most once per cool-down window
// @Tags followups
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param id path int true "Follow-up ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 429 {object} response.RetryErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/followups/{id}/resend [post]
func (h *FollowUpHandler) ResendFollowUp(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	f, err := h.service.Resend(c.Request().Context(), id, h.now())
	if err != nil {
		return h.handleError(c, err)
	}

	return response.OkWithMessage(c, "Follow-up resent", f)
}

// GetRecipientHistory godoc
// @Summary Follow-up history of a recipient
// @Description Lists the follow-ups of a phone number, newest first
// @Tags followups
// @Produce json
// @Param x-ins-auth-key header string true "API key for follow-ups"
// @Param phone path string true "Recipient phone"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/recipients/{phone}/followups [get]
func (h *FollowUpHandler) GetRecipientHistory(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	rows, totalCount, err := h.service.History(c.Request().Context(), c.Param("phone"), page, pageSize)
	if err != nil {
		return h.handleError(c, err)
	}

	return response.Paginated(c, rows, page, pageSize, totalCount)
}

func (h *FollowUpHandler) handleError(c echo.Context, err error) error {
	var cooldown *domain.CooldownError

	switch {
	case errors.As(err, &cooldown):
		return response.TooManyRequests(c, cooldown.Error(), cooldown.RemainingSeconds)
	case errors.Is(err, domain.ErrFollowUpNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidPhone), errors.Is(err, domain.ErrInvalidCadence):
		return response.UnprocessableEntity(c, err)
	case service.IsConflict(err):
		return response.Conflict(c, err)
	case errors.Is(err, domain.ErrSendFailed):
		return response.BadGateway(c, err.Error())
	default:
		return response.InternalServerError(c, err)
	}
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid follow-up id")
	}
	return id, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
