package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/observability"
	"github.com/onurcolak/followup-engine/pkg/logger"
)

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Client sends text messages through a WhatsApp HTTP gateway. Calls are
// paced by a token bucket and guarded by a circuit breaker.
type Client struct {
	httpClient *resty.Client
	sendURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg environments.GatewayConfig) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	failures := uint32(10)
	if cfg.BreakerFailures > 0 {
		failures = uint32(cfg.BreakerFailures)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp-gateway",
		MaxRequests: 3,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= failures },
		IsSuccessful: func(err error) bool {
			// Rejected payloads say nothing about gateway health.
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	return &Client{
		httpClient: httpClient,
		sendURL:    strings.TrimRight(cfg.BaseURL, "/") + "/message/sendText/" + cfg.Instance,
		limiter:    limiter,
		breaker:    breaker,
	}
}

// SendText delivers body to phone. It makes at most one gateway call unless
// retries were configured.
func (c *Client) SendText(ctx context.Context, phone, body string) (*domain.GatewayReceipt, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			observability.GatewaySend.WithLabelValues("rate_limited_local").Inc()
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	start := time.Now()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, phone, body)
	})

	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.GatewaySend.WithLabelValues("cb_open").Inc()
		} else {
			observability.GatewaySend.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	observability.GatewaySend.WithLabelValues("ok").Inc()
	return res.(*domain.GatewayReceipt), nil
}

func (c *Client) post(ctx context.Context, phone, body string) (*domain.GatewayReceipt, error) {
	var out sendTextResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendTextRequest{Number: phone, Text: body}).
		SetResult(&out).
		Post(c.sendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("Gateway request to %s completed in %v (status: %d)", c.sendURL, resp.Time(), resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return &domain.GatewayReceipt{MessageID: out.Key.ID}, nil
}

func (c *Client) SendURL() string {
	return c.sendURL
}

// BreakerState reports the circuit breaker state: closed, half-open or open.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
