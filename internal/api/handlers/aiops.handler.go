package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/internal/analyzer"
	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/rca"
	"github.com/platformbuilds/vigia/internal/scheduler"
	"github.com/platformbuilds/vigia/internal/search"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// AIOpsHandler serves the analysis read API: the metrics view, the incident
// table, manual analysis triggers, and incident search.
type AIOpsHandler struct {
	store     storage.Store
	analyzer  analyzer.Engine
	rca       rca.Engine
	scheduler *scheduler.Scheduler
	search    *search.IncidentIndex
	runtime   *config.Runtime
	logger    logger.Logger
}

func NewAIOpsHandler(
	store storage.Store,
	analyzerEngine analyzer.Engine,
	rcaEngine rca.Engine,
	sched *scheduler.Scheduler,
	searchIndex *search.IncidentIndex,
	runtime *config.Runtime,
	log logger.Logger,
) *AIOpsHandler {
	return &AIOpsHandler{
		store:     store,
		analyzer:  analyzerEngine,
		rca:       rcaEngine,
		scheduler: sched,
		search:    searchIndex,
		runtime:   runtime,
		logger:    log,
	}
}

// GetMetrics handles GET /aiops/metrics: per-endpoint stats over the last
// hour with learned baselines and health bands. Reserved endpoints are
// filtered out of the view.
func (h *AIOpsHandler) GetMetrics(c *gin.Context) {
	endpoints, err := h.store.Endpoints(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics view failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
		return
	}

	window := h.runtime.Engine().BaselineWindow()
	baselines := h.analyzer.Baselines()

	metrics := make(map[string]*models.EndpointMetrics)
	for _, endpoint := range endpoints {
		if analyzer.IsReserved(endpoint) {
			continue
		}

		stats, err := h.store.Stats(c.Request.Context(), endpoint, window)
		if err != nil {
			h.logger.Error("metrics view failed", "endpoint", endpoint, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
			return
		}
		health, err := h.analyzer.EndpointHealth(c.Request.Context(), endpoint)
		if err != nil {
			h.logger.Error("metrics view failed", "endpoint", endpoint, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
			return
		}

		entry := &models.EndpointMetrics{
			EndpointStats: *stats,
			Health:        *health,
		}
		if baseline, ok := baselines[endpoint]; ok {
			entry.BaselineLatencyMS = &baseline
		}
		metrics[endpoint] = entry
	}

	c.JSON(http.StatusOK, models.MetricsResponse{
		Timestamp: time.Now().UTC(),
		Metrics:   metrics,
	})
}

// GetIncidents handles GET /aiops/incidents: active incidents, most severe
// first.
func (h *AIOpsHandler) GetIncidents(c *gin.Context) {
	incidents := h.rca.ActiveIncidents()
	c.JSON(http.StatusOK, models.IncidentListResponse{
		Timestamp:       time.Now().UTC(),
		ActiveIncidents: incidents,
		IncidentCount:   len(incidents),
	})
}

// GetIncident handles GET /aiops/incidents/:id. Resolved and expired
// incidents remain addressable here.
func (h *AIOpsHandler) GetIncident(c *gin.Context) {
	incident, err := h.rca.IncidentByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, rca.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load incident"})
		return
	}
	c.JSON(http.StatusOK, incident)
}

// ResolveIncident handles POST /aiops/incidents/:id/resolve. Resolving an
// already-resolved incident succeeds without changing it.
func (h *AIOpsHandler) ResolveIncident(c *gin.Context) {
	id := c.Param("id")
	incident, err := h.rca.Resolve(id)
	if err != nil {
		if errors.Is(err, rca.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve incident"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "resolved",
		"incident_id": incident.ID,
	})
}

// TriggerAnalysis handles POST /aiops/analyze: one synchronous cycle outside
// the schedule, returning what it found.
func (h *AIOpsHandler) TriggerAnalysis(c *gin.Context) {
	analysis, incidents, err := h.scheduler.TriggerNow(c.Request.Context())
	if err != nil {
		h.logger.Error("manual analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
		return
	}

	c.JSON(http.StatusOK, models.AnalyzeResponse{
		Analysis:         analysis,
		IncidentsCreated: len(incidents),
	})
}

// SearchIncidents handles GET /aiops/incidents/search?q=...&limit=N with
// bleve query-string syntax. Hits are resolved back through the incident
// table so the response carries full incidents, not index documents.
func (h *AIOpsHandler) SearchIncidents(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Incident search is disabled"})
		return
	}

	queryString := c.Query("q")
	if queryString == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	hits, err := h.search.Search(c.Request.Context(), queryString, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search query"})
		return
	}

	incidents := make([]*models.Incident, 0, len(hits))
	for _, hit := range hits {
		incident, err := h.rca.IncidentByID(hit.IncidentID)
		if err != nil {
			// Indexed but no longer in the table; skip.
			continue
		}
		incidents = append(incidents, incident)
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().UTC(),
		"query":     queryString,
		"incidents": incidents,
		"total":     len(incidents),
	})
}
