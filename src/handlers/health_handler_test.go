package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	handler := NewHealthHandler(map[string]Pinger{
		"redis": pingFunc(func(context.Context) error { return nil }),
	})

	c, w := newTestContext(http.MethodGet, "/api/v1/health", "", nil)
	handler.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok"}, body["checks"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	handler := NewHealthHandler(map[string]Pinger{
		"redis":  pingFunc(func(context.Context) error { return nil }),
		"sqlite": pingFunc(func(context.Context) error { return errors.New("database is locked") }),
	})

	c, w := newTestContext(http.MethodGet, "/api/v1/health", "", nil)
	handler.HealthCheck(c)

	body := decodeBody(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "database is locked", body["checks"].(map[string]any)["sqlite"])
}
