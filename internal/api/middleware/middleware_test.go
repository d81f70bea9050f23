package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCollectorRouter(t *testing.T) (*gin.Engine, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore(time.Hour, logger.NewNoop())

	router := gin.New()
	router.Use(TraceContext())
	router.Use(TelemetryCollector(store, "vigia", logger.NewNoop()))
	router.Use(PanicRecovery(logger.NewNoop()))
	return router, store
}

func recentRecords(t *testing.T, store storage.Store, endpoint string) []*models.TelemetryRecord {
	t.Helper()
	records, err := store.Recent(context.Background(), endpoint, time.Minute)
	require.NoError(t, err)
	return records
}

func TestTraceContextMintsID(t *testing.T) {
	router := gin.New()
	router.Use(TraceContext())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trace_id": TraceID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	echoed := w.Header().Get(TraceIDHeader)
	require.NotEmpty(t, echoed)
	_, err := uuid.Parse(echoed)
	assert.NoError(t, err, "minted trace ids are UUIDs")
	assert.Contains(t, w.Body.String(), echoed)
}

func TestTraceContextAdoptsInboundID(t *testing.T) {
	router := gin.New()
	router.Use(TraceContext())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "caller-supplied-id")
	router.ServeHTTP(w, req)

	assert.Equal(t, "caller-supplied-id", w.Header().Get(TraceIDHeader))
}

func TestCollectorRecordsRequest(t *testing.T) {
	router, store := newCollectorRouter(t)
	router.GET("/inventory", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/inventory", nil)
	req.Header.Set(TraceIDHeader, "trace-abc")
	router.ServeHTTP(w, req)

	records := recentRecords(t, store, "/inventory")
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "vigia", r.ServiceName)
	assert.Equal(t, "/inventory", r.Endpoint)
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "trace-abc", r.TraceID)
	assert.GreaterOrEqual(t, r.LatencyMS, 0.0)
	assert.Empty(t, r.ErrorMessage)
}

func TestCollectorSkipsReservedSurfaces(t *testing.T) {
	router, store := newCollectorRouter(t)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/aiops/incidents", ok)
	router.GET("/metrics", ok)
	router.GET("/api/openapi.yaml", ok)
	router.GET("/simulate/status", ok)

	for _, path := range []string{"/aiops/incidents", "/metrics", "/api/openapi.yaml", "/simulate/status"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Empty(t, recentRecords(t, store, "/aiops/incidents"))
	assert.Empty(t, recentRecords(t, store, "/metrics"))
	assert.Empty(t, recentRecords(t, store, "/api/openapi.yaml"))
	// Simulate control calls are stored; the analyzer ignores them at read time.
	assert.Len(t, recentRecords(t, store, "/simulate/status"), 1)
}

func TestCollectorCapturesHandlerError(t *testing.T) {
	router, store := newCollectorRouter(t)
	router.POST("/payment", func(c *gin.Context) {
		err := errors.New("Simulated failure: Circuit breaker open")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payment", nil))

	records := recentRecords(t, store, "/payment")
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusInternalServerError, records[0].StatusCode)
	assert.Equal(t, "Simulated failure: Circuit breaker open", records[0].ErrorMessage)
}

func TestCollectorDropsErrorMessageOn4xx(t *testing.T) {
	router, store := newCollectorRouter(t)
	router.GET("/inventory", func(c *gin.Context) {
		_ = c.Error(errors.New("not found"))
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/inventory", nil))

	records := recentRecords(t, store, "/inventory")
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusNotFound, records[0].StatusCode)
	assert.Empty(t, records[0].ErrorMessage, "client errors are not failures")
}

func TestPanicBecomesErrorRecord(t *testing.T) {
	router, store := newCollectorRouter(t)
	router.GET("/checkout", func(c *gin.Context) {
		panic("payment provider exploded")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())

	records := recentRecords(t, store, "/checkout")
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusInternalServerError, records[0].StatusCode)
	assert.Contains(t, records[0].ErrorMessage, "string: payment provider exploded")
	assert.Contains(t, records[0].ErrorMessage, "goroutine", "stack trace is attached")
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"https://dash.example.io"},
		MaxAge:         600,
	}))
	router.GET("/aiops/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/aiops/metrics", nil)
	req.Header.Set("Origin", "https://dash.example.io")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dash.example.io", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"https://dash.example.io"},
	}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardSubdomain(t *testing.T) {
	assert.True(t, isOriginAllowed("https://app.example.io", []string{"*.example.io"}))
	assert.True(t, isOriginAllowed("http://anything.dev", []string{"*"}))
	assert.False(t, isOriginAllowed("https://example.org", []string{"*.example.io"}))
	assert.True(t, isOriginAllowed("http://localhost:3000", nil))
}
