package middlewares

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/onurcolak/followup-engine/pkg/response"
)

func newEchoContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAPIKeyAuth_MissingServerKeyReturns500(t *testing.T) {
	mw := APIKeyAuth("") // server misconfigured

	// Next handler should never be reached
	c, rec := newEchoContext(http.MethodGet, "/test")
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var body response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if body.Success {
		t.Errorf("expected Success=false, got true")
	}
	if body.Error == "" {
		t.Errorf("expected error message, got empty string")
	}
}

func TestAPIKeyAuth_MissingClientKeyReturns401(t *testing.T) {
	const serverKey = "secret"
	mw := APIKeyAuth(serverKey)

	c, rec := newEchoContext(http.MethodGet, "/test")
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// No x-ins-auth-key header
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	var body response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if body.Success {
		t.Errorf("expected Success=false, got true")
	}
	if body.Error == "" {
		t.Errorf("expected error message, got empty string")
	}
}

func TestAPIKeyAuth_InvalidClientKeyReturns401(t *testing.T) {
	const serverKey = "secret"
	mw := APIKeyAuth(serverKey)

	c, rec := newEchoContext(http.MethodGet, "/test")
	c.Request().Header.Set(APIKeyHeader, "wrong-key")

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAPIKeyAuth_ValidKeyPassesThrough(t *testing.T) {
	const serverKey = "secret"
	mw := APIKeyAuth(serverKey)

	c, rec := newEchoContext(http.MethodGet, "/test")
	c.Request().Header.Set(APIKeyHeader, serverKey)

	handlerCalled := false
	handler := mw(func(c echo.Context) error {
		handlerCalled = true
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected next handler to be called")
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, c echo.Context) bool {
	t.Helper()

	called := false
	handler := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return called
}

func TestSchedulerAuth_AcceptsCronSecretOrAPIKey(t *testing.T) {
	mw := SchedulerAuth("cron", "key")

	c, rec := newEchoContext(http.MethodPost, "/process")
	c.Request().Header.Set(CronSecretHeader, "cron")
	if !runMiddleware(t, mw, c) || rec.Code != http.StatusOK {
		t.Fatalf("expected cron secret to be accepted, got %d", rec.Code)
	}

	c, rec = newEchoContext(http.MethodPost, "/process")
	c.Request().Header.Set(APIKeyHeader, "key")
	if !runMiddleware(t, mw, c) || rec.Code != http.StatusOK {
		t.Fatalf("expected API key to be accepted, got %d", rec.Code)
	}

	c, rec = newEchoContext(http.MethodPost, "/process")
	c.Request().Header.Set(CronSecretHeader, "key")
	if runMiddleware(t, mw, c) || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong secret, got %d", rec.Code)
	}
}

func TestSchedulerAuth_CronSecretUnsetIgnoresHeader(t *testing.T) {
	mw := SchedulerAuth("", "key")

	c, rec := newEchoContext(http.MethodGet, "/process")
	c.Request().Header.Set(CronSecretHeader, "")
	if runMiddleware(t, mw, c) || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSchedulerAuth_NothingConfiguredReturns500(t *testing.T) {
	c, rec := newEchoContext(http.MethodGet, "/process")
	if runMiddleware(t, SchedulerAuth("", ""), c) || rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWebhookToken(t *testing.T) {
	open := WebhookToken("")
	c, _ := newEchoContext(http.MethodPost, "/webhook")
	if !runMiddleware(t, open, c) {
		t.Fatalf("expected open webhook when no token is configured")
	}

	guarded := WebhookToken("t0k3n")

	c, _ = newEchoContext(http.MethodPost, "/webhook?token=t0k3n")
	if !runMiddleware(t, guarded, c) {
		t.Fatalf("expected query token to be accepted")
	}

	c, _ = newEchoContext(http.MethodPost, "/webhook")
	c.Request().Header.Set(WebhookTokenHeader, "t0k3n")
	if !runMiddleware(t, guarded, c) {
		t.Fatalf("expected header token to be accepted")
	}

	c, rec := newEchoContext(http.MethodPost, "/webhook?token=nope")
	if runMiddleware(t, guarded, c) || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong token, got %d", rec.Code)
	}
}
