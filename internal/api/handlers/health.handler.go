package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/internal/api/middleware"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// HealthHandler reports service liveness plus the storage backend's state.
type HealthHandler struct {
	store       storage.Store
	serviceName string
	logger      logger.Logger
}

func NewHealthHandler(store storage.Store, serviceName string, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:       store,
		serviceName: serviceName,
		logger:      log,
	}
}

// HealthCheck handles GET /health. A failing store ping degrades the
// response to 503 without taking the process down.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if err := h.store.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Error("storage health check failed", "backend", h.store.Backend(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"service":  h.serviceName,
			"storage":  h.store.Backend(),
			"error":    "storage unreachable",
			"trace_id": middleware.TraceID(c),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  h.serviceName,
		"storage":  h.store.Backend(),
		"trace_id": middleware.TraceID(c),
	})
}
