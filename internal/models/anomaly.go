package models

import "time"

// AnomalyType tags the detector that produced an anomaly.
type AnomalyType string

const (
	AnomalyLatency    AnomalyType = "latency_anomaly"
	AnomalyErrorSpike AnomalyType = "error_spike"
	AnomalyTimeout    AnomalyType = "timeout_issue"
)

// Severity orders anomalies and incidents. Anomalies only ever carry the
// upper three; low exists for the incident domain.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity to its ordering weight, low < medium < high < critical.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 0
	}
	return -1
}

// Anomaly is a single detector observation for one endpoint in one tick.
// Type selects which variant fields are populated.
type Anomaly struct {
	Type       AnomalyType `json:"type"`
	Endpoint   string      `json:"endpoint"`
	Severity   Severity    `json:"severity"`
	DetectedAt time.Time   `json:"detected_at"`

	// latency_anomaly
	BaselineMS float64 `json:"baseline_ms,omitempty"`
	CurrentMS  float64 `json:"current_ms,omitempty"`
	Deviation  float64 `json:"deviation,omitempty"`
	SampleSize int     `json:"sample_size,omitempty"`

	// error_spike
	ErrorRate     float64  `json:"error_rate,omitempty"`
	ErrorCount    int      `json:"error_count,omitempty"`
	TotalRequests int      `json:"total_requests,omitempty"`
	SampleErrors  []string `json:"sample_errors,omitempty"`

	// timeout_issue
	Message  string     `json:"message,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Distinct trace ids backing this observation. All window records for
	// latency anomalies, erroring records only for error spikes, absent for
	// timeout issues.
	TraceIDs []string `json:"trace_ids,omitempty"`
}

// AnalysisResult is the output of one full analyzer pass.
type AnalysisResult struct {
	Timestamp         time.Time          `json:"timestamp"`
	AnomaliesDetected int                `json:"anomalies_detected"`
	Anomalies         []*Anomaly         `json:"anomalies"`
	Baselines         map[string]float64 `json:"baselines"`
}
