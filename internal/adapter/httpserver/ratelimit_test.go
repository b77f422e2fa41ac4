package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func callLimited(t *testing.T, e *echo.Echo, h echo.HandlerFunc, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	e := echo.New()
	h := ErrorHandlingMiddleware()(newRateLimiter(10, 3, time.Second)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))

	for range 3 {
		assert.Equal(t, http.StatusOK, callLimited(t, e, h, testRemoteAddr).Code)
	}
}

func TestRateLimiterRejectsWithRetryAfter(t *testing.T) {
	e := echo.New()
	h := ErrorHandlingMiddleware()(newRateLimiter(0.01, 1, 5*time.Second)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))

	assert.Equal(t, http.StatusOK, callLimited(t, e, h, testRemoteAddr).Code)

	rec := callLimited(t, e, h, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"type":"rate_limited"`)

	// a different origin has its own bucket
	assert.Equal(t, http.StatusOK, callLimited(t, e, h, "5.6.7.8:1").Code)
}
