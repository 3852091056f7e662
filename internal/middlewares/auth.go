package middlewares

import (
	"crypto/subtle"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/followup-engine/pkg/response"
)

const (
	APIKeyHeader       = "x-ins-auth-key"
	CronSecretHeader   = "x-cron-secret"
	WebhookTokenHeader = "x-webhook-token"
	WebhookTokenQuery  = "token"
)

// secureCompare compares two strings in a way that is safer against timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func misconfigured(what string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return response.InternalServerError(c, fmt.Errorf("%s is not configured for this endpoint group", what))
		}
	}
}

func APIKeyAuth(apiKey string) echo.MiddlewareFunc {
	// If the API key is not configured, treat this as a server-side misconfiguration.
	if apiKey == "" {
		return misconfigured("API key")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(APIKeyHeader)
			if token == "" || !secureCompare(token, apiKey) {
				return response.Unauthorized(c)
			}

			return next(c)
		}
	}
}

// SchedulerAuth guards the dispatch trigger. External cron jobs send the
// shared cron secret; operators may use the scheduler API key instead.
func SchedulerAuth(cronSecret, apiKey string) echo.MiddlewareFunc {
	if cronSecret == "" && apiKey == "" {
		return misconfigured("Cron secret")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header

			if secret := header.Get(CronSecretHeader); cronSecret != "" && secret != "" && secureCompare(secret, cronSecret) {
				return next(c)
			}
			if key := header.Get(APIKeyHeader); apiKey != "" && key != "" && secureCompare(key, apiKey) {
				return next(c)
			}

			return response.Unauthorized(c)
		}
	}
}

// WebhookToken checks the shared token gateways put on their callback URL.
// An empty token leaves the endpoint open, since most gateways cannot sign
// their callbacks.
func WebhookToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if token == "" {
			return next
		}

		return func(c echo.Context) error {
			got := c.QueryParam(WebhookTokenQuery)
			if got == "" {
				got = c.Request().Header.Get(WebhookTokenHeader)
			}
			if got == "" || !secureCompare(got, token) {
				return response.Unauthorized(c)
			}

			return next(c)
		}
	}
}
