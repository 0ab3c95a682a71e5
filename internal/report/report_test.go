package report

import (
	"testing"
	"time"

	"xgrowth/internal/model"
)

func TestHourlyActivity(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	logs := []model.ActionLog{
		{Action: "discovery", CreatedAt: base.Add(5 * time.Minute)},
		{Action: "discovery", CreatedAt: base.Add(40 * time.Minute)},
		{Action: "engagement", CreatedAt: base.Add(50 * time.Minute)},
		{Action: "autopost", CreatedAt: base.Add(90 * time.Minute)},
	}

	buckets := HourlyActivity(logs)
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	ten := buckets[base]
	if ten["discovery"] != 2 || ten["engagement"] != 1 {
		t.Fatalf("10:00 bucket = %v", ten)
	}
	eleven := buckets[base.Add(time.Hour)]
	if eleven["autopost"] != 1 {
		t.Fatalf("11:00 bucket = %v", eleven)
	}

	keys := SortedBucketKeys(buckets)
	if len(keys) != 2 || !keys[0].Before(keys[1]) {
		t.Fatalf("keys = %v", keys)
	}
}
