package rca

import (
	"sort"
	"time"

	"github.com/platformbuilds/vigia/internal/models"
)

// groupByTime splits anomalies into clusters of temporal proximity. Anomalies
// are ordered by detection time and a new group opens whenever the gap to the
// group's first member reaches the window. The same outage usually surfaces
// as several anomalies within seconds of each other, so anchoring on the
// first member keeps one slow burn from chaining unrelated events together.
func groupByTime(anomalies []*models.Anomaly, window time.Duration) [][]*models.Anomaly {
	if len(anomalies) == 0 {
		return nil
	}

	ordered := make([]*models.Anomaly, len(anomalies))
	copy(ordered, anomalies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DetectedAt.Before(ordered[j].DetectedAt)
	})

	groups := make([][]*models.Anomaly, 0, 1)
	current := []*models.Anomaly{ordered[0]}
	anchor := ordered[0].DetectedAt

	for _, a := range ordered[1:] {
		if a.DetectedAt.Sub(anchor) < window {
			current = append(current, a)
			continue
		}
		groups = append(groups, current)
		current = []*models.Anomaly{a}
		anchor = a.DetectedAt
	}
	return append(groups, current)
}

// unionTraceIDs merges the trace ids of every anomaly in a group, keeping
// first-seen order so replay and sampling stay deterministic.
func unionTraceIDs(group []*models.Anomaly) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, a := range group {
		for _, id := range a.TraceIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
