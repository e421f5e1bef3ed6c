package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(allowedOrigins string) *fiber.App {
	a := fiber.New()
	a.Use(RequestIDMiddleware())
	a.Use(SecurityHeaders())
	a.Use(CORSConfig(allowedOrigins))
	a.Use(Preflight())
	a.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return a
}

func TestPreflightIs204(t *testing.T) {
	a := newApp("*")

	req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
	resp, err := a.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCORSHeadersOnGet(t *testing.T) {
	a := newApp("*")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://widget.example")
	resp, err := a.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	a := newApp("*")

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/ping", nil), -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "trace-123")
	resp, err = a.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "trace-123", resp.Header.Get(RequestIDHeader))
}

func TestSecurityHeaders(t *testing.T) {
	a := newApp("*")

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/ping", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
}
