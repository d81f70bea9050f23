package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/monitoring"
	"github.com/platformbuilds/vigia/pkg/logger"
)

const (
	endpointKeyPrefix = "vigia:ep:"
	traceKeyPrefix    = "vigia:trace:"
	endpointsKey      = "vigia:endpoints"
)

// ValkeyStore persists telemetry in Valkey sorted sets scored by record
// timestamp, so windowed reads become range queries. Members are JSON
// records; the per-record storage id keeps members unique when two
// requests produce identical payloads. Keys expire one retention window
// after their last write.
type ValkeyStore struct {
	client    *redis.Client
	retention time.Duration
	logger    logger.Logger
}

func NewValkeyStore(cfg config.StorageConfig, log logger.Logger) (*ValkeyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Valkey.Address,
		Password:     cfg.Valkey.Password,
		DB:           cfg.Valkey.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &ValkeyStore{
		client:    client,
		retention: cfg.Retention(),
		logger:    log,
	}, nil
}

func (s *ValkeyStore) Backend() string { return "valkey" }

func (s *ValkeyStore) Insert(ctx context.Context, record *models.TelemetryRecord) error {
	start := time.Now()
	err := s.insert(ctx, record)
	monitoring.RecordStorageOperation("insert", "valkey", time.Since(start), err)
	return err
}

func (s *ValkeyStore) insert(ctx context.Context, record *models.TelemetryRecord) error {
	if err := prepareRecord(record); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record for %s: %w", record.Endpoint, err)
	}

	score := float64(record.Timestamp.UnixMilli())
	pruneMax := strconv.FormatInt(time.Now().Add(-s.retention).UnixMilli(), 10)
	endpointKey := endpointKeyPrefix + record.Endpoint
	traceKey := traceKeyPrefix + record.TraceID

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, endpointKey, &redis.Z{Score: score, Member: data})
	pipe.ZAdd(ctx, traceKey, &redis.Z{Score: score, Member: data})
	pipe.ZAdd(ctx, endpointsKey, &redis.Z{Score: score, Member: record.Endpoint})
	pipe.ZRemRangeByScore(ctx, endpointKey, "-inf", pruneMax)
	pipe.Expire(ctx, endpointKey, s.retention)
	pipe.Expire(ctx, traceKey, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store record for %s: %w", record.Endpoint, err)
	}
	return nil
}

func (s *ValkeyStore) Recent(ctx context.Context, endpoint string, window time.Duration) ([]*models.TelemetryRecord, error) {
	start := time.Now()
	records, err := s.recent(ctx, endpoint, window)
	monitoring.RecordStorageOperation("recent", "valkey", time.Since(start), err)
	return records, err
}

func (s *ValkeyStore) recent(ctx context.Context, endpoint string, window time.Duration) ([]*models.TelemetryRecord, error) {
	// Exclusive minimum: a record exactly on the cutoff is outside the window.
	min := "(" + strconv.FormatInt(time.Now().Add(-window).UnixMilli(), 10)

	if endpoint != "" {
		return s.readNewestFirst(ctx, endpointKeyPrefix+endpoint, min)
	}

	endpoints, err := s.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.TelemetryRecord
	for _, ep := range endpoints {
		records, err := s.readNewestFirst(ctx, endpointKeyPrefix+ep, min)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *ValkeyStore) readNewestFirst(ctx context.Context, key, min string) ([]*models.TelemetryRecord, error) {
	raw, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return s.decodeMembers(key, raw), nil
}

func (s *ValkeyStore) decodeMembers(key string, raw []string) []*models.TelemetryRecord {
	records := make([]*models.TelemetryRecord, 0, len(raw))
	for _, item := range raw {
		var record models.TelemetryRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			s.logger.Warn("dropping undecodable telemetry record", "key", key, "error", err)
			continue
		}
		records = append(records, &record)
	}
	return records
}

func (s *ValkeyStore) ByTrace(ctx context.Context, traceID string) ([]*models.TelemetryRecord, error) {
	start := time.Now()
	key := traceKeyPrefix + traceID
	raw, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	monitoring.RecordStorageOperation("by_trace", "valkey", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", traceID, err)
	}
	return s.decodeMembers(key, raw), nil
}

// Endpoints lists every endpoint that has ever written a record. Stale
// names are harmless: detectors only act on endpoints with windowed
// traffic.
func (s *ValkeyStore) Endpoints(ctx context.Context) ([]string, error) {
	endpoints, err := s.client.ZRange(ctx, endpointsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read endpoint index: %w", err)
	}
	sort.Strings(endpoints)
	return endpoints, nil
}

func (s *ValkeyStore) Stats(ctx context.Context, endpoint string, window time.Duration) (*models.EndpointStats, error) {
	records, err := s.Recent(ctx, endpoint, window)
	if err != nil {
		return nil, err
	}
	return statsFromRecords(endpoint, records), nil
}

// HealthCheck pings the Valkey instance.
func (s *ValkeyStore) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = c
	}
	return s.client.Ping(ctx).Err()
}

func (s *ValkeyStore) Close() error {
	return s.client.Close()
}
