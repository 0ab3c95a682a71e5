// Package report summarizes the audit trail for the CLI surface.
package report

import (
	"sort"
	"time"

	"xgrowth/internal/model"
)

// HourlyActivity aggregates action log entries into per-hour buckets keyed by
// action name.
func HourlyActivity(logs []model.ActionLog) map[time.Time]map[string]int {
	buckets := make(map[time.Time]map[string]int)
	for _, l := range logs {
		t := l.CreatedAt.UTC()
		key := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[string]int)
		}
		buckets[key][l.Action]++
	}
	return buckets
}

// SortedBucketKeys returns sorted hour keys.
func SortedBucketKeys(m map[time.Time]map[string]int) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
