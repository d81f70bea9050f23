package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/monitoring"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// MemoryStore keeps telemetry in process memory, indexed per endpoint and
// per trace. Records older than the retention window are dropped on insert.
type MemoryStore struct {
	mu         sync.RWMutex
	retention  time.Duration
	byEndpoint map[string][]*models.TelemetryRecord
	byTrace    map[string][]*models.TelemetryRecord
	logger     logger.Logger
}

func NewMemoryStore(retention time.Duration, log logger.Logger) *MemoryStore {
	return &MemoryStore{
		retention:  retention,
		byEndpoint: make(map[string][]*models.TelemetryRecord),
		byTrace:    make(map[string][]*models.TelemetryRecord),
		logger:     log,
	}
}

func (s *MemoryStore) Backend() string { return "memory" }

func (s *MemoryStore) Insert(ctx context.Context, record *models.TelemetryRecord) error {
	start := time.Now()
	err := s.insert(record)
	monitoring.RecordStorageOperation("insert", "memory", time.Since(start), err)
	return err
}

func (s *MemoryStore) insert(record *models.TelemetryRecord) error {
	if err := prepareRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byEndpoint[record.Endpoint] = append(s.byEndpoint[record.Endpoint], record)
	s.byTrace[record.TraceID] = append(s.byTrace[record.TraceID], record)
	s.pruneLocked(record.Endpoint)
	return nil
}

// pruneLocked drops expired records for one endpoint and removes them from
// their trace slices. Callers must hold the write lock.
func (s *MemoryStore) pruneLocked(endpoint string) {
	cutoff := time.Now().Add(-s.retention)
	records := s.byEndpoint[endpoint]

	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
			continue
		}
		s.dropFromTraceLocked(r)
	}

	if len(kept) == 0 {
		delete(s.byEndpoint, endpoint)
		return
	}
	s.byEndpoint[endpoint] = kept
}

func (s *MemoryStore) dropFromTraceLocked(record *models.TelemetryRecord) {
	trace := s.byTrace[record.TraceID]

	kept := trace[:0]
	for _, r := range trace {
		if r.ID != record.ID {
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		delete(s.byTrace, record.TraceID)
		return
	}
	s.byTrace[record.TraceID] = kept
}

func (s *MemoryStore) Recent(ctx context.Context, endpoint string, window time.Duration) ([]*models.TelemetryRecord, error) {
	start := time.Now()
	cutoff := time.Now().Add(-window)

	s.mu.RLock()
	var out []*models.TelemetryRecord
	if endpoint != "" {
		out = filterAfter(s.byEndpoint[endpoint], cutoff)
	} else {
		for _, records := range s.byEndpoint {
			out = append(out, filterAfter(records, cutoff)...)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	monitoring.RecordStorageOperation("recent", "memory", time.Since(start), nil)
	return out, nil
}

func filterAfter(records []*models.TelemetryRecord, cutoff time.Time) []*models.TelemetryRecord {
	var out []*models.TelemetryRecord
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) ByTrace(ctx context.Context, traceID string) ([]*models.TelemetryRecord, error) {
	start := time.Now()

	s.mu.RLock()
	records := s.byTrace[traceID]
	out := make([]*models.TelemetryRecord, len(records))
	copy(out, records)
	s.mu.RUnlock()

	// Oldest first; insertion order breaks timestamp ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	monitoring.RecordStorageOperation("by_trace", "memory", time.Since(start), nil)
	return out, nil
}

func (s *MemoryStore) Endpoints(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	endpoints := make([]string, 0, len(s.byEndpoint))
	for endpoint := range s.byEndpoint {
		endpoints = append(endpoints, endpoint)
	}
	s.mu.RUnlock()

	sort.Strings(endpoints)
	return endpoints, nil
}

func (s *MemoryStore) Stats(ctx context.Context, endpoint string, window time.Duration) (*models.EndpointStats, error) {
	records, err := s.Recent(ctx, endpoint, window)
	if err != nil {
		return nil, err
	}
	return statsFromRecords(endpoint, records), nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
