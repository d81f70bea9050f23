package models

import "time"

// TelemetryRecord is one observation of a completed HTTP request.
// Records are immutable once stored.
type TelemetryRecord struct {
	ID           string    `json:"id"`
	ServiceName  string    `json:"service_name"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	StatusCode   int       `json:"status_code"`
	LatencyMS    float64   `json:"latency_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	TraceID      string    `json:"trace_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// EndpointStats aggregates records of one endpoint over a query window.
// Zero-valued counts and an empty distribution mean the window was empty.
type EndpointStats struct {
	Endpoint           string      `json:"endpoint"`
	RequestCount       int         `json:"request_count"`
	AvgLatencyMS       float64     `json:"avg_latency_ms"`
	ErrorRate          float64     `json:"error_rate"`
	StatusDistribution map[int]int `json:"status_distribution"`
}

// EndpointHealth is the derived health of an endpoint: score 0-100 and
// a band derived from it.
type EndpointHealth struct {
	HealthScore float64 `json:"health_score"`
	Status      string  `json:"status"` // healthy, degraded, critical
}

// EndpointMetrics is one entry of the metrics view: stats plus the learned
// baseline and health band. BaselineLatencyMS is nil until learned.
type EndpointMetrics struct {
	EndpointStats
	BaselineLatencyMS *float64       `json:"baseline_latency_ms"`
	Health            EndpointHealth `json:"health"`
}

// MetricsResponse is the body of GET /aiops/metrics.
type MetricsResponse struct {
	Timestamp time.Time                   `json:"timestamp"`
	Metrics   map[string]*EndpointMetrics `json:"metrics"`
}
