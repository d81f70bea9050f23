// Package monitoring provides Prometheus self-metrics for VIGIA.
//
// SetupPrometheusMetrics registers everything on the default registry and
// mounts /metrics; HTTPMetricsMiddleware times the request surface. The
// pipeline components report through the Record helpers where the work
// happens:
//
//	monitoring.RecordStorageOperation("insert", "valkey", time.Since(start), err)
//	monitoring.RecordTelemetryRecord("/payment", 200)
//	monitoring.RecordAnalysisRun(time.Since(start), err)
//	monitoring.RecordAnomaly("latency_anomaly", "medium")
//	monitoring.RecordIncident("high")
//	monitoring.SetActiveIncidents(3)
//
// These are the service's own operational metrics, not the analysis output
// served under /aiops/.
package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request surface
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_http_requests_total",
			Help: "HTTP requests served, by method, endpoint and status",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigia_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Telemetry store metrics
	storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_storage_operations_total",
			Help: "Total number of telemetry store operations",
		},
		[]string{"operation", "backend", "status"},
	)

	storageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigia_storage_operation_duration_seconds",
			Help:    "Telemetry store operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation", "backend"},
	)

	telemetryRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_telemetry_records_total",
			Help: "Total number of telemetry records ingested",
		},
		[]string{"endpoint", "status_code"},
	)

	// Analysis pipeline metrics
	analysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_analysis_runs_total",
			Help: "Total number of analysis cycles",
		},
		[]string{"status"},
	)

	analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigia_analysis_duration_seconds",
			Help:    "Analysis cycle duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	anomaliesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"type", "severity"},
	)

	incidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_incidents_created_total",
			Help: "Total number of incidents created",
		},
		[]string{"severity"},
	)

	activeIncidents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigia_active_incidents",
			Help: "Number of currently active incidents",
		},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigia_active_connections",
			Help: "HTTP requests currently in flight",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_errors_total",
			Help: "Errors by origin, across http, storage and analysis",
		},
		[]string{"type", "component"},
	)
)

// SetupPrometheusMetrics registers the VIGIA metrics and exposes /metrics.
// Registration errors are ignored so repeated setup (tests, restarts of the
// router) stays harmless.
func SetupPrometheusMetrics(router gin.IRoutes) {
	_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "vigia_build_info",
		Help: "Build information for VIGIA",
		ConstLabels: prometheus.Labels{
			"version":   "v0.3.1",
			"component": "vigia",
		},
	}, func() float64 { return 1 }))

	_ = prometheus.Register(httpRequestsTotal)
	_ = prometheus.Register(httpRequestDuration)
	_ = prometheus.Register(storageOperationsTotal)
	_ = prometheus.Register(storageOperationDuration)
	_ = prometheus.Register(telemetryRecordsTotal)
	_ = prometheus.Register(analysisRunsTotal)
	_ = prometheus.Register(analysisDuration)
	_ = prometheus.Register(anomaliesDetectedTotal)
	_ = prometheus.Register(incidentsCreatedTotal)
	_ = prometheus.Register(activeIncidents)
	_ = prometheus.Register(activeConnections)
	_ = prometheus.Register(errorsTotal)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware times every request and counts failures by endpoint.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		endpoint := normalizeEndpoint(c.Request.URL.Path)

		activeConnections.Inc()
		defer activeConnections.Dec()

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorsTotal.WithLabelValues("http", endpoint).Inc()
		}
	}
}

// RecordStorageOperation records telemetry store operation metrics
func RecordStorageOperation(operation, backend string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues("storage", backend).Inc()
	}

	storageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	storageOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// RecordTelemetryRecord counts one ingested request record
func RecordTelemetryRecord(endpoint string, statusCode int) {
	telemetryRecordsTotal.WithLabelValues(normalizeEndpoint(endpoint), strconv.Itoa(statusCode)).Inc()
}

// RecordAnalysisRun records one analysis cycle
func RecordAnalysisRun(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues("analysis", "analyzer").Inc()
	}

	analysisRunsTotal.WithLabelValues(status).Inc()
	analysisDuration.Observe(duration.Seconds())
}

// RecordAnomaly counts one detected anomaly
func RecordAnomaly(anomalyType, severity string) {
	anomaliesDetectedTotal.WithLabelValues(anomalyType, severity).Inc()
}

// RecordIncident counts one created incident
func RecordIncident(severity string) {
	incidentsCreatedTotal.WithLabelValues(severity).Inc()
}

// SetActiveIncidents tracks the current size of the active incident list
func SetActiveIncidents(n int) {
	activeIncidents.Set(float64(n))
}

// normalizeEndpoint normalizes paths for consistent metric labels: numeric
// segments and incident ids become :id so label cardinality stays bounded.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		if isNumeric(part) || strings.HasPrefix(part, "INC-") {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// isNumeric reports whether s is all ASCII digits.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
