package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// incidentDocument is the flattened view of an incident that gets indexed.
// Incidents are short-lived, so the authoritative copy stays with the RCA
// engine and search only hands back ids.
type incidentDocument struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity"`
	Status            string   `json:"status"`
	RootEndpoint      string   `json:"root_endpoint"`
	AffectedEndpoints []string `json:"affected_endpoints"`
	AnomalyTypes      []string `json:"anomaly_types"`
}

// Hit is one search match.
type Hit struct {
	IncidentID string  `json:"incident_id"`
	Score      float64 `json:"score"`
}

// IncidentIndex provides full-text search over incidents using an in-memory
// Bleve index. Re-indexing an incident under the same id replaces the
// previous document, which is how resolution updates flow through.
type IncidentIndex struct {
	index      bleve.Index
	logger     logger.Logger
	maxResults int
	mu         sync.RWMutex
}

func NewIncidentIndex(cfg config.SearchConfig, log logger.Logger) (*IncidentIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create incident index: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	return &IncidentIndex{
		index:      index,
		logger:     log,
		maxResults: maxResults,
	}, nil
}

// Index makes an incident findable. Called on creation and again on
// resolution so status queries stay accurate.
func (s *IncidentIndex) Index(incident *models.Incident) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		return fmt.Errorf("incident index is closed")
	}

	types := make([]string, 0, len(incident.Anomalies))
	for _, a := range incident.Anomalies {
		types = append(types, string(a.Type))
	}

	doc := incidentDocument{
		Title:             incident.Title,
		Description:       incident.RootCause.Description,
		Severity:          string(incident.Severity),
		Status:            string(incident.Status),
		RootEndpoint:      incident.RootCause.Endpoint,
		AffectedEndpoints: incident.AffectedEndpoints,
		AnomalyTypes:      types,
	}

	if err := s.index.Index(incident.ID, doc); err != nil {
		return fmt.Errorf("failed to index incident %s: %w", incident.ID, err)
	}
	return nil
}

// Search runs a query-string query ("payment", "severity:critical",
// "status:active +latency") and returns matching incident ids by score.
func (s *IncidentIndex) Search(ctx context.Context, queryString string, limit int) ([]Hit, error) {
	start := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		return nil, fmt.Errorf("incident index is closed")
	}

	if limit <= 0 || limit > s.maxResults {
		limit = s.maxResults
	}

	bleveQuery := query.NewQueryStringQuery(queryString)
	searchRequest := bleve.NewSearchRequestOptions(bleveQuery, limit, 0, false)

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("incident search failed: %w", err)
	}

	hits := make([]Hit, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		hits = append(hits, Hit{IncidentID: hit.ID, Score: hit.Score})
	}

	s.logger.Debug("incident search complete",
		"query", queryString,
		"hits", len(hits),
		"took_ms", time.Since(start).Milliseconds(),
	)
	return hits, nil
}

// Close releases the index. Further calls fail cleanly.
func (s *IncidentIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}
