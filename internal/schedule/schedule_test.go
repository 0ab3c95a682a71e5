package schedule

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestWithinWindowSimpleRange(t *testing.T) {
	if !WithinWindow(at(9, 0), "08:00", "22:00") {
		t.Fatal("09:00 should be inside 08:00-22:00")
	}
	if !WithinWindow(at(8, 0), "08:00", "22:00") {
		t.Fatal("window bounds are inclusive")
	}
	if WithinWindow(at(23, 30), "08:00", "22:00") {
		t.Fatal("23:30 should be outside 08:00-22:00")
	}
}

func TestWithinWindowWrapsMidnight(t *testing.T) {
	start, end := "22:00", "06:00"
	if !WithinWindow(at(23, 30), start, end) {
		t.Fatal("23:30 should be inside 22:00-06:00")
	}
	if !WithinWindow(at(2, 0), start, end) {
		t.Fatal("02:00 should be inside 22:00-06:00")
	}
	if WithinWindow(at(12, 0), start, end) {
		t.Fatal("12:00 should be outside 22:00-06:00")
	}
}

func TestWithinWindowEqualBoundsAlwaysOpen(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		if !WithinWindow(at(hour, 15), "09:00", "09:00") {
			t.Fatalf("equal bounds should always be open, closed at %02d:15", hour)
		}
	}
}

func TestDue(t *testing.T) {
	now := at(12, 0)
	if !Due(now, nil, 60) {
		t.Fatal("nil lastRun is always due")
	}
	recent := at(11, 30)
	if Due(now, &recent, 60) {
		t.Fatal("30 minutes ago is not due at a 60 minute frequency")
	}
	old := at(10, 0)
	if !Due(now, &old, 60) {
		t.Fatal("two hours ago is due at a 60 minute frequency")
	}
	exact := at(11, 0)
	if !Due(now, &exact, 60) {
		t.Fatal("exactly one frequency ago is due")
	}
}
