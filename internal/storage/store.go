// Package storage persists telemetry records and serves the windowed reads
// the analysis engine runs on. Two backends implement the same Store
// interface: an in-memory store for single-node use and a Valkey-backed
// store for deployments where records must survive restarts.
package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/pkg/logger"
)

var (
	ErrMissingTraceID  = errors.New("telemetry record missing trace id")
	ErrNegativeLatency = errors.New("telemetry record has negative latency")
)

// Store is the telemetry persistence layer.
type Store interface {
	// Insert validates and stores one telemetry record.
	Insert(ctx context.Context, record *models.TelemetryRecord) error

	// Recent returns records newer than the window cutoff, newest first.
	// An empty endpoint selects records across all endpoints.
	Recent(ctx context.Context, endpoint string, window time.Duration) ([]*models.TelemetryRecord, error)

	// ByTrace returns every record sharing a trace id, oldest first.
	ByTrace(ctx context.Context, traceID string) ([]*models.TelemetryRecord, error)

	// Endpoints returns all known endpoint paths in lexical order.
	Endpoints(ctx context.Context) ([]string, error)

	// Stats aggregates one endpoint's records inside the window.
	Stats(ctx context.Context, endpoint string, window time.Duration) (*models.EndpointStats, error)

	// Backend names the active implementation for logs and metric labels.
	Backend() string

	HealthCheck(ctx context.Context) error
	Close() error
}

// New selects the backend from configuration. A Valkey backend that cannot
// be reached at startup degrades to the in-memory store so the service
// still comes up.
func New(cfg config.StorageConfig, log logger.Logger) Store {
	if cfg.Backend == "valkey" {
		store, err := NewValkeyStore(cfg, log)
		if err != nil {
			log.Warn("Valkey unreachable, using in-memory storage",
				"address", cfg.Valkey.Address,
				"error", err,
			)
			return NewMemoryStore(cfg.Retention(), log)
		}
		return store
	}
	return NewMemoryStore(cfg.Retention(), log)
}

// prepareRecord normalizes a record before it is stored: latency is rounded
// to two decimals, error messages are kept only on 5xx records, and the
// record gets a storage id when the caller did not set one.
func prepareRecord(record *models.TelemetryRecord) error {
	if record.TraceID == "" {
		return ErrMissingTraceID
	}
	if record.LatencyMS < 0 {
		return ErrNegativeLatency
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.LatencyMS = round2(record.LatencyMS)
	if record.StatusCode < 500 {
		record.ErrorMessage = ""
	}
	return nil
}

// statsFromRecords aggregates request count, mean latency, error rate and
// status distribution. Both backends share it so they report identical
// shapes, including the zero-valued shape for an empty window.
func statsFromRecords(endpoint string, records []*models.TelemetryRecord) *models.EndpointStats {
	stats := &models.EndpointStats{
		Endpoint:           endpoint,
		StatusDistribution: make(map[int]int),
	}
	if len(records) == 0 {
		return stats
	}

	var totalLatency float64
	var errorCount int
	for _, r := range records {
		totalLatency += r.LatencyMS
		if r.StatusCode >= 500 {
			errorCount++
		}
		stats.StatusDistribution[r.StatusCode]++
	}

	stats.RequestCount = len(records)
	stats.AvgLatencyMS = round2(totalLatency / float64(len(records)))
	stats.ErrorRate = round2(float64(errorCount) / float64(len(records)))
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
