package rca

import (
	"context"

	"github.com/platformbuilds/vigia/internal/models"
)

const (
	// A hop counts as the failure origin when it returned a server error or
	// exceeded this latency, whichever comes first along the trace.
	failureStatusThreshold = 500
	failureLatencyMS       = 5000.0

	maxSampleTraces = 5
)

// replayResult carries the aggregate view of a group's traces: how often each
// endpoint was the first failing hop, which endpoints sat on failing chains,
// and a handful of sample traces for the incident payload.
type replayResult struct {
	candidates     map[string]int
	candidateOrder []string
	affected       map[string]struct{}
	samples        []*models.TraceSample
	totalTraces    int
}

// replayTraces walks each trace in chronological order and records the first
// hop that failed. A trace like checkout -> payment -> inventory where
// payment returns 500 blames payment, not the checkout call that surfaced it.
func (e *EngineImpl) replayTraces(ctx context.Context, traceIDs []string) (*replayResult, error) {
	result := &replayResult{
		candidates:  make(map[string]int),
		affected:    make(map[string]struct{}),
		totalTraces: len(traceIDs),
	}

	for _, traceID := range traceIDs {
		records, err := e.store.ByTrace(ctx, traceID)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}

		var origin *models.TelemetryRecord
		for _, r := range records {
			if r.StatusCode >= failureStatusThreshold || r.LatencyMS > failureLatencyMS {
				origin = r
				break
			}
		}
		if origin == nil {
			continue
		}

		if _, seen := result.candidates[origin.Endpoint]; !seen {
			result.candidateOrder = append(result.candidateOrder, origin.Endpoint)
		}
		result.candidates[origin.Endpoint]++

		chain := make([]string, len(records))
		for i, r := range records {
			chain[i] = r.Endpoint
			result.affected[r.Endpoint] = struct{}{}
		}

		if len(result.samples) < maxSampleTraces {
			result.samples = append(result.samples, &models.TraceSample{
				TraceID:       traceID,
				RootEndpoint:  origin.Endpoint,
				RootStatus:    origin.StatusCode,
				AffectedChain: chain,
			})
		}
	}

	return result, nil
}

// rootCandidate picks the endpoint blamed most often. Ties go to the
// candidate that failed first in replay order, which keeps the outcome
// stable for a given store state.
func (r *replayResult) rootCandidate(fallback string) (string, int) {
	best, bestCount := "", 0
	for _, endpoint := range r.candidateOrder {
		if count := r.candidates[endpoint]; count > bestCount {
			best, bestCount = endpoint, count
		}
	}
	if best == "" {
		return fallback, 0
	}
	return best, bestCount
}
