package models

import "time"

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentActive   IncidentStatus = "active"
	IncidentResolved IncidentStatus = "resolved"
)

// RootCause names the endpoint an incident is attributed to.
type RootCause struct {
	Endpoint    string  `json:"endpoint"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// TraceSample is one replayed trace retained as RCA evidence.
type TraceSample struct {
	TraceID       string   `json:"trace_id"`
	RootEndpoint  string   `json:"root_endpoint"`
	RootStatus    int      `json:"root_status"`
	AffectedChain []string `json:"affected_chain"`
}

// TraceCorrelation summarizes the trace replay behind an incident.
// Absent on incidents created without trace evidence.
type TraceCorrelation struct {
	TotalTraces  int            `json:"total_traces"`
	SampleTraces []*TraceSample `json:"sample_traces"`
}

// Incident is a severity-ranked bundle of correlated anomalies with an
// inferred root endpoint and lifecycle state.
type Incident struct {
	ID                string            `json:"id"`
	Severity          Severity          `json:"severity"`
	Status            IncidentStatus    `json:"status"`
	Title             string            `json:"title"`
	RootCause         RootCause         `json:"root_cause"`
	AffectedEndpoints []string          `json:"affected_endpoints"`
	Anomalies         []*Anomaly        `json:"anomalies"`
	TraceCorrelation  *TraceCorrelation `json:"trace_correlation,omitempty"`
	FirstDetected     time.Time         `json:"first_detected"`
	LastUpdated       time.Time         `json:"last_updated"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
}

// IncidentListResponse is the body of GET /aiops/incidents.
type IncidentListResponse struct {
	Timestamp       time.Time   `json:"timestamp"`
	ActiveIncidents []*Incident `json:"active_incidents"`
	IncidentCount   int         `json:"incident_count"`
}

// AnalyzeResponse is the body of POST /aiops/analyze.
type AnalyzeResponse struct {
	Analysis         *AnalysisResult `json:"analysis"`
	IncidentsCreated int             `json:"incidents_created"`
}
