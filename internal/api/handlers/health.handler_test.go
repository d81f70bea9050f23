package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigia/internal/api/middleware"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// downStore fails its health check while satisfying the rest of the Store
// interface, standing in for a Valkey backend that lost its connection.
type downStore struct{}

func (downStore) Backend() string { return "valkey" }

func (downStore) Insert(context.Context, *models.TelemetryRecord) error { return nil }

func (downStore) Recent(context.Context, string, time.Duration) ([]*models.TelemetryRecord, error) {
	return nil, nil
}

func (downStore) ByTrace(context.Context, string) ([]*models.TelemetryRecord, error) {
	return nil, nil
}

func (downStore) Endpoints(context.Context) ([]string, error) { return nil, nil }

func (downStore) Stats(context.Context, string, time.Duration) (*models.EndpointStats, error) {
	return nil, nil
}

func (downStore) HealthCheck(context.Context) error { return errors.New("connection refused") }

func (downStore) Close() error { return nil }

func healthRequest(h *HealthHandler) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TraceContext())
	r.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestHealthCheckHealthy(t *testing.T) {
	store := storage.NewMemoryStore(time.Hour, logger.NewNoop())
	h := NewHealthHandler(store, "vigia", logger.NewNoop())

	w := healthRequest(h)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "vigia", body["service"])
	assert.Equal(t, "memory", body["storage"])
	assert.NotEmpty(t, body["trace_id"])
}

func TestHealthCheckDegradedWhenStorageDown(t *testing.T) {
	h := NewHealthHandler(downStore{}, "vigia", logger.NewNoop())

	w := healthRequest(h)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "valkey", body["storage"])
}
