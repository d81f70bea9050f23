// Package analyzer learns per-endpoint latency baselines from stored
// telemetry and detects three anomaly classes on top of them: latency
// spikes, error-rate spikes and endpoints that went silent. One
// RunAnalysis call is one detection cycle; the scheduler drives it.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/monitoring"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

const (
	// Latency beyond this multiple of baseline escalates medium to high.
	highLatencyMultiplier = 5.0
	// Error rate beyond this escalates high to critical.
	criticalErrorRate = 0.5
	// Error-rate detection needs at least this many records in the window.
	minSamplesForErrorRate = 5
	// EWMA weight of the newest window mean during baseline updates.
	baselineAlpha = 0.1
	// Silence detection needs more than this many records in the baseline
	// window before an empty analysis window counts as an outage.
	silenceMinHistory = 10

	silenceMessage = "Endpoint stopped responding (no requests in last 5 minutes)"
)

// Engine runs anomaly detection cycles over the telemetry store.
type Engine interface {
	// RunAnalysis executes one full cycle: baseline learning followed by
	// the latency, error-rate and silence detectors.
	RunAnalysis(ctx context.Context) (*models.AnalysisResult, error)

	// EndpointHealth scores one endpoint from its hour of traffic.
	EndpointHealth(ctx context.Context, endpoint string) (*models.EndpointHealth, error)

	// Baselines returns a copy of the learned baseline map, values rounded
	// to two decimals.
	Baselines() map[string]float64
}

// EngineImpl implements Engine. The baseline map is soft state: it is
// relearned from the store after a restart and only the learn step of a
// cycle writes it.
type EngineImpl struct {
	store   storage.Store
	runtime *config.Runtime
	logger  logger.Logger

	mu        sync.RWMutex
	baselines map[string]float64
}

func NewEngine(store storage.Store, runtime *config.Runtime, log logger.Logger) *EngineImpl {
	return &EngineImpl{
		store:     store,
		runtime:   runtime,
		logger:    log,
		baselines: make(map[string]float64),
	}
}

// IsReserved reports whether an endpoint belongs to the engine's own
// surface. Reserved endpoints never learn baselines, never produce
// anomalies and never appear in metrics output.
func IsReserved(endpoint string) bool {
	return strings.HasPrefix(endpoint, "/aiops") || strings.HasPrefix(endpoint, "/simulate")
}

func (e *EngineImpl) RunAnalysis(ctx context.Context) (*models.AnalysisResult, error) {
	start := time.Now()
	cfg := e.runtime.Engine()

	result, err := e.runAnalysis(ctx, cfg)
	monitoring.RecordAnalysisRun(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	for _, anomaly := range result.Anomalies {
		monitoring.RecordAnomaly(string(anomaly.Type), string(anomaly.Severity))
		e.logger.Warn("anomaly detected",
			"type", anomaly.Type,
			"endpoint", anomaly.Endpoint,
			"severity", anomaly.Severity,
		)
	}
	e.logger.Info("analysis cycle complete",
		"anomalies", result.AnomaliesDetected,
		"baselines", len(result.Baselines),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *EngineImpl) runAnalysis(ctx context.Context, cfg config.EngineConfig) (*models.AnalysisResult, error) {
	endpoints, err := e.store.Endpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}

	if err := e.learnBaselines(ctx, cfg, endpoints); err != nil {
		return nil, err
	}

	anomalies := []*models.Anomaly{}
	for _, pass := range []func(context.Context, config.EngineConfig, []string) ([]*models.Anomaly, error){
		e.detectLatencyAnomalies,
		e.detectErrorSpikes,
		e.detectSilentEndpoints,
	} {
		found, err := pass(ctx, cfg, endpoints)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, found...)
	}

	return &models.AnalysisResult{
		Timestamp:         time.Now().UTC(),
		AnomaliesDetected: len(anomalies),
		Anomalies:         anomalies,
		Baselines:         e.Baselines(),
	}, nil
}

// EndpointHealth scores an endpoint: start at 100, subtract 50 times the
// hourly error rate, subtract 30 more when latency runs past twice the
// baseline, clamp at zero.
func (e *EngineImpl) EndpointHealth(ctx context.Context, endpoint string) (*models.EndpointHealth, error) {
	cfg := e.runtime.Engine()
	stats, err := e.store.Stats(ctx, endpoint, cfg.BaselineWindow())
	if err != nil {
		return nil, fmt.Errorf("stats for %s: %w", endpoint, err)
	}

	score := 100.0
	score -= stats.ErrorRate * 50
	if baseline, ok := e.baseline(endpoint); ok && stats.AvgLatencyMS > 2*baseline {
		score -= 30
	}
	if score < 0 {
		score = 0
	}
	score = math.Round(score*10) / 10

	status := "critical"
	switch {
	case score > 80:
		status = "healthy"
	case score > 50:
		status = "degraded"
	}

	return &models.EndpointHealth{HealthScore: score, Status: status}, nil
}

func (e *EngineImpl) Baselines() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]float64, len(e.baselines))
	for endpoint, baseline := range e.baselines {
		out[endpoint] = round2(baseline)
	}
	return out
}

func (e *EngineImpl) baseline(endpoint string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	baseline, ok := e.baselines[endpoint]
	return baseline, ok
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
