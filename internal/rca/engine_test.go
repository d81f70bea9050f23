package rca

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		LatencyMultiplier:        3.0,
		ErrorRateThreshold:       0.2,
		MinSamplesForBaseline:    10,
		AnalysisWindowMinutes:    5,
		BaselineWindowMinutes:    60,
		CorrelationWindowMinutes: 5,
		IncidentTTLMinutes:       30,
		TickIntervalSeconds:      30,
	}
}

func newTestEngine(t *testing.T) (*EngineImpl, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore(2*time.Hour, logger.NewNoop())
	engine := NewEngine(store, config.NewRuntime(testEngineConfig()), logger.NewNoop())
	return engine, store
}

func insertHop(t *testing.T, store storage.Store, traceID, endpoint string, status int, latency float64, ts time.Time) {
	t.Helper()
	r := &models.TelemetryRecord{
		ServiceName: "vigia",
		Endpoint:    endpoint,
		Method:      "POST",
		StatusCode:  status,
		LatencyMS:   latency,
		TraceID:     traceID,
		Timestamp:   ts,
	}
	if status >= 500 {
		r.ErrorMessage = "Downstream service unavailable"
	}
	require.NoError(t, store.Insert(context.Background(), r))
}

func errorAnomaly(endpoint string, severity models.Severity, detectedAt time.Time, traceIDs ...string) *models.Anomaly {
	return &models.Anomaly{
		Type:          models.AnomalyErrorSpike,
		Endpoint:      endpoint,
		Severity:      severity,
		DetectedAt:    detectedAt,
		ErrorRate:     1.0,
		ErrorCount:    len(traceIDs),
		TotalRequests: len(traceIDs),
		TraceIDs:      traceIDs,
	}
}

func latencyAnomaly(endpoint string, severity models.Severity, detectedAt time.Time, traceIDs ...string) *models.Anomaly {
	return &models.Anomaly{
		Type:       models.AnomalyLatency,
		Endpoint:   endpoint,
		Severity:   severity,
		DetectedAt: detectedAt,
		BaselineMS: 100,
		CurrentMS:  400,
		Deviation:  4.0,
		SampleSize: len(traceIDs),
		TraceIDs:   traceIDs,
	}
}

func timeoutAnomaly(endpoint string, detectedAt time.Time) *models.Anomaly {
	lastSeen := detectedAt.Add(-30 * time.Minute)
	return &models.Anomaly{
		Type:       models.AnomalyTimeout,
		Endpoint:   endpoint,
		Severity:   models.SeverityMedium,
		DetectedAt: detectedAt,
		Message:    "Endpoint stopped responding (no requests in last 5 minutes)",
		LastSeen:   &lastSeen,
	}
}

func TestCorrelateEmptyInput(t *testing.T) {
	engine, _ := newTestEngine(t)

	incidents, err := engine.Correlate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, incidents)
	assert.Empty(t, engine.ActiveIncidents())
}

func TestCascadingFailureBlamesOrigin(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now().UTC()

	// Ten checkout requests where payment fails first and checkout wraps the
	// failure two seconds later.
	traceIDs := make([]string, 10)
	for i := range traceIDs {
		traceIDs[i] = fmt.Sprintf("trace-%d", i)
		insertHop(t, store, traceIDs[i], "/payment", 500, 50, now.Add(-2*time.Second))
		insertHop(t, store, traceIDs[i], "/checkout", 500, 120, now)
	}

	anomalies := []*models.Anomaly{
		errorAnomaly("/payment", models.SeverityCritical, now, traceIDs...),
		errorAnomaly("/checkout", models.SeverityCritical, now, traceIDs...),
	}

	incidents, err := engine.Correlate(context.Background(), anomalies)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, "/payment", inc.RootCause.Endpoint)
	assert.Equal(t, 1.0, inc.RootCause.Confidence)
	assert.Equal(t, "Error spike detected in /payment", inc.Title)
	assert.Equal(t, "Error spike: 100% error rate (10 failures)", inc.RootCause.Description)
	assert.Equal(t, models.SeverityCritical, inc.Severity)
	assert.Equal(t, models.IncidentActive, inc.Status)
	assert.Equal(t, []string{"/checkout", "/payment"}, inc.AffectedEndpoints)
	assert.Len(t, inc.Anomalies, 2)

	require.NotNil(t, inc.TraceCorrelation)
	assert.Equal(t, 10, inc.TraceCorrelation.TotalTraces)
	require.Len(t, inc.TraceCorrelation.SampleTraces, 5)
	sample := inc.TraceCorrelation.SampleTraces[0]
	assert.Equal(t, "/payment", sample.RootEndpoint)
	assert.Equal(t, 500, sample.RootStatus)
	assert.Equal(t, []string{"/payment", "/checkout"}, sample.AffectedChain)
}

func TestSlowTraceCountsAsFailure(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now().UTC()

	// No server errors, but the first hop blew the latency ceiling.
	insertHop(t, store, "slow-1", "/inventory", 200, 6000, now.Add(-time.Second))
	insertHop(t, store, "slow-1", "/checkout", 200, 6100, now)

	anomalies := []*models.Anomaly{
		latencyAnomaly("/checkout", models.SeverityHigh, now, "slow-1"),
	}

	incidents, err := engine.Correlate(context.Background(), anomalies)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, "/inventory", inc.RootCause.Endpoint)
	assert.Equal(t, 1.0, inc.RootCause.Confidence)
	assert.Equal(t, "Latency spike detected in /inventory", inc.Title)
	// The group carries no anomaly for the blamed endpoint.
	assert.Equal(t, "Issue detected in /inventory", inc.RootCause.Description)
	require.Len(t, inc.TraceCorrelation.SampleTraces, 1)
	assert.Equal(t, 200, inc.TraceCorrelation.SampleTraces[0].RootStatus)
}

func TestConfidenceIsBlameFraction(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now().UTC()

	var traceIDs []string
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("bad-%d", i)
		insertHop(t, store, id, "/payment", 500, 40, now)
		traceIDs = append(traceIDs, id)
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("ok-%d", i)
		insertHop(t, store, id, "/payment", 200, 40, now)
		traceIDs = append(traceIDs, id)
	}

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		errorAnomaly("/payment", models.SeverityHigh, now, traceIDs...),
	})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, 0.7, incidents[0].RootCause.Confidence)
	assert.Equal(t, 10, incidents[0].TraceCorrelation.TotalTraces)
}

func TestRootFallbackWithoutFailingTraces(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now().UTC()

	// Traces exist but none of them crossed a failure threshold.
	insertHop(t, store, "calm-1", "/payment", 200, 30, now)
	insertHop(t, store, "calm-2", "/payment", 200, 35, now)

	anomalies := []*models.Anomaly{
		latencyAnomaly("/payment", models.SeverityMedium, now, "calm-1", "calm-2"),
	}

	incidents, err := engine.Correlate(context.Background(), anomalies)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, "/payment", inc.RootCause.Endpoint)
	assert.Equal(t, 0.0, inc.RootCause.Confidence)
	assert.Equal(t, "Latency spike: 400ms (baseline: 100ms, 4.0x slower)", inc.RootCause.Description)
	assert.Empty(t, inc.AffectedEndpoints)
	assert.Equal(t, 2, inc.TraceCorrelation.TotalTraces)
	assert.Empty(t, inc.TraceCorrelation.SampleTraces)
}

func TestSimpleIncidentWithoutTraces(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/inventory", now),
	})
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, "Anomaly detected in /inventory", inc.Title)
	assert.Equal(t, models.SeverityMedium, inc.Severity)
	assert.Equal(t, "/inventory", inc.RootCause.Endpoint)
	assert.Equal(t, 1.0, inc.RootCause.Confidence)
	assert.Equal(t, "timeout_issue detected", inc.RootCause.Description)
	assert.Equal(t, []string{"/inventory"}, inc.AffectedEndpoints)
	assert.Nil(t, inc.TraceCorrelation)
	assert.Equal(t, now, inc.FirstDetected)
}

func TestGroupingSplitsDistantAnomalies(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/payment", now.Add(-10*time.Minute)),
		timeoutAnomaly("/inventory", now),
	})
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
}

func TestGroupingAnchorsOnFirstMember(t *testing.T) {
	engine, _ := newTestEngine(t)
	base := time.Now().UTC().Add(-20 * time.Minute)

	// 0m and 4m share a group; 8m is outside the window anchored at 0m even
	// though it sits within 5m of the 4m member.
	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/a", base),
		timeoutAnomaly("/b", base.Add(4*time.Minute)),
		timeoutAnomaly("/c", base.Add(8*time.Minute)),
	})
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Len(t, incidents[0].Anomalies, 2)
	assert.Len(t, incidents[1].Anomalies, 1)
}

func TestSeverityIsMaxOfGroup(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now().UTC()
	insertHop(t, store, "t-1", "/payment", 500, 40, now)

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		latencyAnomaly("/checkout", models.SeverityMedium, now.Add(-time.Second), "t-1"),
		errorAnomaly("/payment", models.SeverityCritical, now, "t-1"),
	})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, models.SeverityCritical, incidents[0].Severity)
	assert.Equal(t, "Error spike detected in /payment", incidents[0].Title)
}

func TestIncidentIDFormat(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/payment", now.Add(-10*time.Minute)),
		timeoutAnomaly("/inventory", now),
	})
	require.NoError(t, err)
	require.Len(t, incidents, 2)

	pattern := regexp.MustCompile(`^INC-\d+-(\d+)$`)
	first := pattern.FindStringSubmatch(incidents[0].ID)
	second := pattern.FindStringSubmatch(incidents[1].ID)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "1", first[1])
	assert.Equal(t, "2", second[1])
}

func TestActiveIncidentsOrdering(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now().UTC()
	insertHop(t, store, "sev-1", "/payment", 500, 40, now)

	// Two medium incidents six minutes apart, then a critical one.
	_, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/a", now.Add(-6*time.Minute)),
		timeoutAnomaly("/b", now),
	})
	require.NoError(t, err)
	_, err = engine.Correlate(context.Background(), []*models.Anomaly{
		errorAnomaly("/payment", models.SeverityCritical, now, "sev-1"),
	})
	require.NoError(t, err)

	active := engine.ActiveIncidents()
	require.Len(t, active, 3)
	assert.Equal(t, models.SeverityCritical, active[0].Severity)
	assert.Equal(t, "/a", active[1].RootCause.Endpoint)
	assert.Equal(t, "/b", active[2].RootCause.Endpoint)
}

func TestIncidentTTLExpiry(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/payment", now),
	})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	id := incidents[0].ID

	require.Len(t, engine.ActiveIncidents(), 1)

	engine.mu.Lock()
	engine.incidents[id].LastUpdated = now.Add(-31 * time.Minute)
	engine.mu.Unlock()

	assert.Empty(t, engine.ActiveIncidents(), "incidents past their TTL drop out of the active view")

	// Direct lookup still works after expiry.
	inc, err := engine.IncidentByID(id)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentActive, inc.Status)
}

func TestResolveLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/payment", now),
	})
	require.NoError(t, err)
	id := incidents[0].ID

	resolved, err := engine.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Empty(t, engine.ActiveIncidents())

	// Resolving again keeps the original resolution time.
	again, err := engine.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, *resolved.ResolvedAt, *again.ResolvedAt)

	_, err = engine.Resolve("INC-0-999")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestIncidentByIDUnknown(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.IncidentByID("INC-0-1")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/payment", now),
	})
	require.NoError(t, err)
	id := incidents[0].ID

	snapshot, err := engine.IncidentByID(id)
	require.NoError(t, err)
	snapshot.Title = "tampered"
	snapshot.AffectedEndpoints[0] = "/tampered"

	fresh, err := engine.IncidentByID(id)
	require.NoError(t, err)
	assert.Equal(t, "Anomaly detected in /payment", fresh.Title)
	assert.Equal(t, []string{"/payment"}, fresh.AffectedEndpoints)
}

type captureIndexer struct {
	indexed []*models.Incident
}

func (c *captureIndexer) Index(incident *models.Incident) error {
	c.indexed = append(c.indexed, incident)
	return nil
}

func TestIndexerFollowsLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t)
	indexer := &captureIndexer{}
	engine.SetIndexer(indexer)
	now := time.Now().UTC()

	incidents, err := engine.Correlate(context.Background(), []*models.Anomaly{
		timeoutAnomaly("/payment", now),
	})
	require.NoError(t, err)
	require.Len(t, indexer.indexed, 1)

	_, err = engine.Resolve(incidents[0].ID)
	require.NoError(t, err)
	require.Len(t, indexer.indexed, 2)
	assert.Equal(t, models.IncidentResolved, indexer.indexed[1].Status)
}
