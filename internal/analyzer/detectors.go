package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
)

// learnBaselines updates the baseline map from the last hour of traffic.
// Only 2xx records feed a baseline, and an endpoint needs at least
// MinSamplesForBaseline of them before one is created or moved. The first
// qualifying window sets the baseline outright; later windows blend in
// with weight baselineAlpha.
func (e *EngineImpl) learnBaselines(ctx context.Context, cfg config.EngineConfig, endpoints []string) error {
	for _, endpoint := range endpoints {
		if IsReserved(endpoint) {
			continue
		}
		records, err := e.store.Recent(ctx, endpoint, cfg.BaselineWindow())
		if err != nil {
			return fmt.Errorf("baseline window for %s: %w", endpoint, err)
		}

		var sum float64
		var successes int
		for _, r := range records {
			if r.StatusCode >= 200 && r.StatusCode < 300 {
				sum += r.LatencyMS
				successes++
			}
		}
		if successes < cfg.MinSamplesForBaseline {
			continue
		}
		mean := sum / float64(successes)

		e.mu.Lock()
		if old, ok := e.baselines[endpoint]; ok {
			e.baselines[endpoint] = (1-baselineAlpha)*old + baselineAlpha*mean
		} else {
			e.baselines[endpoint] = mean
		}
		e.mu.Unlock()
	}
	return nil
}

// detectLatencyAnomalies compares the analysis-window mean against the
// learned baseline. All records count toward the current mean, failures
// included; only the baseline itself is failure-free.
func (e *EngineImpl) detectLatencyAnomalies(ctx context.Context, cfg config.EngineConfig, endpoints []string) ([]*models.Anomaly, error) {
	var anomalies []*models.Anomaly
	for _, endpoint := range endpoints {
		if IsReserved(endpoint) {
			continue
		}
		baseline, ok := e.baseline(endpoint)
		if !ok {
			continue
		}
		records, err := e.store.Recent(ctx, endpoint, cfg.AnalysisWindow())
		if err != nil {
			return nil, fmt.Errorf("analysis window for %s: %w", endpoint, err)
		}
		if len(records) == 0 {
			continue
		}

		var sum float64
		for _, r := range records {
			sum += r.LatencyMS
		}
		current := sum / float64(len(records))
		if current <= cfg.LatencyMultiplier*baseline {
			continue
		}

		severity := models.SeverityMedium
		if current > highLatencyMultiplier*baseline {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, &models.Anomaly{
			Type:       models.AnomalyLatency,
			Endpoint:   endpoint,
			Severity:   severity,
			DetectedAt: time.Now().UTC(),
			BaselineMS: round2(baseline),
			CurrentMS:  round2(current),
			Deviation:  round2(current / baseline),
			SampleSize: len(records),
			TraceIDs:   distinctTraceIDs(records),
		})
	}
	return anomalies, nil
}

// detectErrorSpikes flags endpoints whose analysis-window failure rate
// exceeds the configured threshold. Needs minSamplesForErrorRate records
// before a rate means anything.
func (e *EngineImpl) detectErrorSpikes(ctx context.Context, cfg config.EngineConfig, endpoints []string) ([]*models.Anomaly, error) {
	var anomalies []*models.Anomaly
	for _, endpoint := range endpoints {
		if IsReserved(endpoint) {
			continue
		}
		records, err := e.store.Recent(ctx, endpoint, cfg.AnalysisWindow())
		if err != nil {
			return nil, fmt.Errorf("analysis window for %s: %w", endpoint, err)
		}
		if len(records) < minSamplesForErrorRate {
			continue
		}

		var failures []*models.TelemetryRecord
		for _, r := range records {
			if r.StatusCode >= 500 {
				failures = append(failures, r)
			}
		}
		rate := float64(len(failures)) / float64(len(records))
		if rate <= cfg.ErrorRateThreshold {
			continue
		}

		severity := models.SeverityHigh
		if rate > criticalErrorRate {
			severity = models.SeverityCritical
		}
		anomalies = append(anomalies, &models.Anomaly{
			Type:          models.AnomalyErrorSpike,
			Endpoint:      endpoint,
			Severity:      severity,
			DetectedAt:    time.Now().UTC(),
			ErrorRate:     round2(rate),
			ErrorCount:    len(failures),
			TotalRequests: len(records),
			SampleErrors:  sampleErrorMessages(failures),
			TraceIDs:      distinctTraceIDs(failures),
		})
	}
	return anomalies, nil
}

// detectSilentEndpoints flags endpoints with an empty analysis window but
// more than silenceMinHistory records in the baseline window. An endpoint
// that was never busy going quiet is not an anomaly.
func (e *EngineImpl) detectSilentEndpoints(ctx context.Context, cfg config.EngineConfig, endpoints []string) ([]*models.Anomaly, error) {
	var anomalies []*models.Anomaly
	for _, endpoint := range endpoints {
		if IsReserved(endpoint) {
			continue
		}
		recent, err := e.store.Recent(ctx, endpoint, cfg.AnalysisWindow())
		if err != nil {
			return nil, fmt.Errorf("analysis window for %s: %w", endpoint, err)
		}
		if len(recent) > 0 {
			continue
		}
		history, err := e.store.Recent(ctx, endpoint, cfg.BaselineWindow())
		if err != nil {
			return nil, fmt.Errorf("baseline window for %s: %w", endpoint, err)
		}
		if len(history) <= silenceMinHistory {
			continue
		}

		lastSeen := history[0].Timestamp
		anomalies = append(anomalies, &models.Anomaly{
			Type:       models.AnomalyTimeout,
			Endpoint:   endpoint,
			Severity:   models.SeverityMedium,
			DetectedAt: time.Now().UTC(),
			Message:    silenceMessage,
			LastSeen:   &lastSeen,
		})
	}
	return anomalies, nil
}

// distinctTraceIDs keeps first-seen order, which for store reads is newest
// record first.
func distinctTraceIDs(records []*models.TelemetryRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var ids []string
	for _, r := range records {
		if _, ok := seen[r.TraceID]; ok {
			continue
		}
		seen[r.TraceID] = struct{}{}
		ids = append(ids, r.TraceID)
	}
	return ids
}

// sampleErrorMessages keeps at most three non-empty messages, each capped
// at 200 characters.
func sampleErrorMessages(failures []*models.TelemetryRecord) []string {
	var samples []string
	for _, r := range failures {
		if r.ErrorMessage == "" {
			continue
		}
		message := r.ErrorMessage
		if len(message) > 200 {
			message = message[:200]
		}
		samples = append(samples, message)
		if len(samples) == 3 {
			break
		}
	}
	return samples
}
