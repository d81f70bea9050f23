package rca

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/platformbuilds/vigia/internal/models"
)

// nextIncidentID mints INC-<unix seconds>-<counter>. The counter is process
// scoped and only disambiguates incidents minted in the same second.
func (e *EngineImpl) nextIncidentID(now time.Time) string {
	e.mu.Lock()
	e.counter++
	n := e.counter
	e.mu.Unlock()
	return fmt.Sprintf("INC-%d-%d", now.Unix(), n)
}

// buildIncident assembles an incident for a group whose traces could be
// replayed. The group arrives ordered by detection time, so the first member
// stamps FirstDetected.
func (e *EngineImpl) buildIncident(group []*models.Anomaly, traceIDs []string, replay *replayResult) *models.Incident {
	now := time.Now().UTC()
	root, frequency := replay.rootCandidate(group[0].Endpoint)

	affected := make([]string, 0, len(replay.affected))
	for endpoint := range replay.affected {
		affected = append(affected, endpoint)
	}
	sort.Strings(affected)

	return &models.Incident{
		ID:       e.nextIncidentID(now),
		Severity: maxSeverity(group),
		Status:   models.IncidentActive,
		Title:    incidentTitle(group, root),
		RootCause: models.RootCause{
			Endpoint:    root,
			Confidence:  round2(float64(frequency) / float64(max(replay.totalTraces, 1))),
			Description: rootCauseDescription(group, root),
		},
		AffectedEndpoints: affected,
		Anomalies:         group,
		TraceCorrelation: &models.TraceCorrelation{
			TotalTraces:  replay.totalTraces,
			SampleTraces: replay.samples,
		},
		FirstDetected: group[0].DetectedAt,
		LastUpdated:   now,
	}
}

// buildSimpleIncident covers groups with no trace evidence at all, such as a
// lone silent endpoint. Blame falls on the first anomaly's endpoint with full
// confidence since there is nothing to weigh it against.
func (e *EngineImpl) buildSimpleIncident(group []*models.Anomaly) *models.Incident {
	now := time.Now().UTC()
	first := group[0]

	severity := first.Severity
	if severity.Rank() < 0 {
		severity = models.SeverityMedium
	}

	return &models.Incident{
		ID:       e.nextIncidentID(now),
		Severity: severity,
		Status:   models.IncidentActive,
		Title:    fmt.Sprintf("Anomaly detected in %s", first.Endpoint),
		RootCause: models.RootCause{
			Endpoint:    first.Endpoint,
			Confidence:  1.0,
			Description: fmt.Sprintf("%s detected", first.Type),
		},
		AffectedEndpoints: []string{first.Endpoint},
		Anomalies:         group,
		FirstDetected:     first.DetectedAt,
		LastUpdated:       now,
	}
}

// incidentTitle names the incident after the dominant anomaly flavor. Error
// spikes outrank latency because a spike of failures is the louder signal.
func incidentTitle(group []*models.Anomaly, root string) string {
	var hasError, hasLatency bool
	for _, a := range group {
		switch a.Type {
		case models.AnomalyErrorSpike:
			hasError = true
		case models.AnomalyLatency:
			hasLatency = true
		}
	}
	switch {
	case hasError:
		return fmt.Sprintf("Error spike detected in %s", root)
	case hasLatency:
		return fmt.Sprintf("Latency spike detected in %s", root)
	default:
		return fmt.Sprintf("Service degradation detected in %s", root)
	}
}

// rootCauseDescription explains the root endpoint using its own anomaly when
// the group holds one, otherwise a generic line.
func rootCauseDescription(group []*models.Anomaly, root string) string {
	for _, a := range group {
		if a.Endpoint != root {
			continue
		}
		switch a.Type {
		case models.AnomalyLatency:
			return fmt.Sprintf("Latency spike: %.0fms (baseline: %.0fms, %.1fx slower)",
				a.CurrentMS, a.BaselineMS, a.Deviation)
		case models.AnomalyErrorSpike:
			return fmt.Sprintf("Error spike: %.0f%% error rate (%d failures)",
				a.ErrorRate*100, a.ErrorCount)
		case models.AnomalyTimeout:
			return "Endpoint stopped responding"
		default:
			return fmt.Sprintf("%s detected", a.Type)
		}
	}
	return fmt.Sprintf("Issue detected in %s", root)
}

// maxSeverity is the highest severity carried by the group. Unrecognized
// values count as medium, and an empty group defaults to medium.
func maxSeverity(group []*models.Anomaly) models.Severity {
	top, topRank := models.SeverityMedium, -1
	for _, a := range group {
		sev, rank := a.Severity, a.Severity.Rank()
		if rank < 0 {
			sev, rank = models.SeverityMedium, models.SeverityMedium.Rank()
		}
		if rank > topRank {
			top, topRank = sev, rank
		}
	}
	return top
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
