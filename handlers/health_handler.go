package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type cachePinger interface {
	Ping(ctx context.Context) error
}

type breakerReporter interface {
	BreakerState() string
}

// HealthHandler reports database, Valkey and gateway breaker state.
type HealthHandler struct {
	db           pinger
	cache        cachePinger
	gateway      breakerReporter
	checkTimeout time.Duration
}

// NewHealthHandler builds a health handler. cache may be nil when cool-downs
// are kept in memory.
func NewHealthHandler(db pinger, cache cachePinger, gateway breakerReporter) *HealthHandler {
	return &HealthHandler{
		db:           db,
		cache:        cache,
		gateway:      gateway,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses.
// @Summary Health check
// @Description Returns overall status with database, Valkey and WhatsApp gateway breaker state
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	// Without Valkey cool-downs fall back to process memory.
	cacheStatus := "disabled"
	cooldownStore := "memory"
	if h.cache != nil {
		cooldownStore = "valkey"
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			cacheStatus = "up"
		}
	}

	breakerState := "unknown"
	if h.gateway != nil {
		breakerState = h.gateway.BreakerState()
		if breakerState == "open" && overallStatus == "ok" {
			overallStatus = "degraded"
		}
	}

	code := http.StatusOK
	if overallStatus == "down" {
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status":        cacheStatus,
				"cooldownStore": cooldownStore,
			},
			"gateway": map[string]any{
				"breaker": breakerState,
			},
		},
	})
}
