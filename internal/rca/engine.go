package rca

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/monitoring"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// ErrIncidentNotFound is returned when an incident id is unknown to the engine.
var ErrIncidentNotFound = errors.New("incident not found")

// IncidentIndexer receives incident snapshots for full-text search. The
// engine calls it on creation and again on resolution so the index follows
// the incident lifecycle.
type IncidentIndexer interface {
	Index(incident *models.Incident) error
}

// Engine turns batches of anomalies into correlated incidents and owns the
// in-memory incident table.
type Engine interface {
	// Correlate groups anomalies that occurred close together, replays their
	// traces to locate the failure origin, and opens one incident per group.
	Correlate(ctx context.Context, anomalies []*models.Anomaly) ([]*models.Incident, error)

	// ActiveIncidents returns unresolved incidents still inside their TTL,
	// most severe first, oldest first within a severity.
	ActiveIncidents() []*models.Incident

	// IncidentByID returns any known incident, active or not.
	IncidentByID(id string) (*models.Incident, error)

	// Resolve marks an incident resolved. Resolving twice is a no-op that
	// keeps the original resolution time.
	Resolve(id string) (*models.Incident, error)
}

type EngineImpl struct {
	store   storage.Store
	runtime *config.Runtime
	logger  logger.Logger
	indexer IncidentIndexer

	mu        sync.RWMutex
	incidents map[string]*models.Incident
	counter   int
}

func NewEngine(store storage.Store, runtime *config.Runtime, log logger.Logger) *EngineImpl {
	return &EngineImpl{
		store:     store,
		runtime:   runtime,
		logger:    log,
		incidents: make(map[string]*models.Incident),
	}
}

// SetIndexer attaches a search indexer. Must be called before the engine
// starts receiving anomalies.
func (e *EngineImpl) SetIndexer(indexer IncidentIndexer) {
	e.indexer = indexer
}

func (e *EngineImpl) Correlate(ctx context.Context, anomalies []*models.Anomaly) ([]*models.Incident, error) {
	if len(anomalies) == 0 {
		return nil, nil
	}

	cfg := e.runtime.Engine()
	groups := groupByTime(anomalies, cfg.CorrelationWindow())

	incidents := make([]*models.Incident, 0, len(groups))
	for _, group := range groups {
		traceIDs := unionTraceIDs(group)

		var incident *models.Incident
		if len(traceIDs) == 0 {
			incident = e.buildSimpleIncident(group)
		} else {
			replay, err := e.replayTraces(ctx, traceIDs)
			if err != nil {
				return incidents, err
			}
			incident = e.buildIncident(group, traceIDs, replay)
		}

		e.admit(ctx, incident)
		incidents = append(incidents, incident)
	}

	monitoring.SetActiveIncidents(e.activeCount())
	return incidents, nil
}

// admit stores a freshly built incident and fans it out to metrics, the
// search index, and the current span.
func (e *EngineImpl) admit(ctx context.Context, incident *models.Incident) {
	e.mu.Lock()
	e.incidents[incident.ID] = incident
	e.mu.Unlock()

	monitoring.RecordIncident(string(incident.Severity))

	if e.indexer != nil {
		if err := e.indexer.Index(incident); err != nil {
			e.logger.Warn("incident indexing failed", "incident_id", incident.ID, "error", err)
		}
	}

	trace.SpanFromContext(ctx).AddEvent("incident.created", trace.WithAttributes(
		attribute.String("incident.id", incident.ID),
		attribute.String("incident.severity", string(incident.Severity)),
		attribute.String("incident.root_endpoint", incident.RootCause.Endpoint),
	))

	e.logger.Info("incident created",
		"incident_id", incident.ID,
		"title", incident.Title,
		"severity", incident.Severity,
		"confidence", incident.RootCause.Confidence,
		"anomalies", len(incident.Anomalies),
	)
}

func (e *EngineImpl) ActiveIncidents() []*models.Incident {
	ttl := e.runtime.Engine().IncidentTTL()
	cutoff := time.Now().UTC().Add(-ttl)

	e.mu.RLock()
	active := make([]*models.Incident, 0, len(e.incidents))
	for _, inc := range e.incidents {
		if inc.Status == models.IncidentActive && inc.LastUpdated.After(cutoff) {
			active = append(active, cloneIncident(inc))
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(active, func(i, j int) bool {
		ri, rj := active[i].Severity.Rank(), active[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return active[i].FirstDetected.Before(active[j].FirstDetected)
	})
	return active
}

func (e *EngineImpl) IncidentByID(id string) (*models.Incident, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inc, ok := e.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return cloneIncident(inc), nil
}

func (e *EngineImpl) Resolve(id string) (*models.Incident, error) {
	e.mu.Lock()
	inc, ok := e.incidents[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrIncidentNotFound
	}
	if inc.Status != models.IncidentResolved {
		now := time.Now().UTC()
		inc.Status = models.IncidentResolved
		inc.ResolvedAt = &now
	}
	snapshot := cloneIncident(inc)
	e.mu.Unlock()

	if e.indexer != nil {
		if err := e.indexer.Index(snapshot); err != nil {
			e.logger.Warn("incident re-indexing failed", "incident_id", snapshot.ID, "error", err)
		}
	}
	monitoring.SetActiveIncidents(e.activeCount())

	e.logger.Info("incident resolved", "incident_id", snapshot.ID)
	return snapshot, nil
}

func (e *EngineImpl) activeCount() int {
	ttl := e.runtime.Engine().IncidentTTL()
	cutoff := time.Now().UTC().Add(-ttl)

	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, inc := range e.incidents {
		if inc.Status == models.IncidentActive && inc.LastUpdated.After(cutoff) {
			n++
		}
	}
	return n
}

// cloneIncident copies an incident so callers never observe later mutations.
// Anomaly entries are shared; they are immutable once attached.
func cloneIncident(in *models.Incident) *models.Incident {
	out := *in
	out.AffectedEndpoints = append([]string(nil), in.AffectedEndpoints...)
	out.Anomalies = append([]*models.Anomaly(nil), in.Anomalies...)
	if in.TraceCorrelation != nil {
		tc := *in.TraceCorrelation
		tc.SampleTraces = append([]*models.TraceSample(nil), in.TraceCorrelation.SampleTraces...)
		out.TraceCorrelation = &tc
	}
	if in.ResolvedAt != nil {
		t := *in.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
