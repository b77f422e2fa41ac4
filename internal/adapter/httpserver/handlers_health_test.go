package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, fx *fixture, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	fx.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleReadiness(t *testing.T) {
	fx := newFixture(t, withHealthChecks(HealthCheck{Name: "redis", Check: healthOK}))

	rec := get(t, fx, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_RedisDown(t *testing.T) {
	fx := newFixture(t, withHealthChecks(HealthCheck{Name: "redis", Check: healthErr("connection refused")}))

	rec := get(t, fx, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"redis"`)
}

func TestHandleReadiness_BrokerClosed(t *testing.T) {
	fx := newFixture(t)
	fx.broker.Close()

	rec := get(t, fx, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"broker"`)
}

func TestHandleLiveness(t *testing.T) {
	fx := newFixture(t)

	rec := get(t, fx, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"clients":0`)
}

func TestHandleVersion(t *testing.T) {
	fx := newFixture(t)

	rec := get(t, fx, "/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"svx-sse"`)
	assert.Contains(t, rec.Body.String(), `"go_version"`)
}
