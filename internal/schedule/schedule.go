package schedule

import (
	"strconv"
	"strings"
	"time"
)

func toMinutes(value string) int {
	hRaw, mRaw, ok := strings.Cut(value, ":")
	if !ok {
		return 0
	}
	h, err1 := strconv.Atoi(hRaw)
	m, err2 := strconv.Atoi(mRaw)
	if err1 != nil || err2 != nil {
		return 0
	}
	return h*60 + m
}

// WithinWindow reports whether now's local time-of-day falls inside the
// [start, end] posting window. start > end wraps past midnight; start == end
// means the window is always open.
func WithinWindow(now time.Time, windowStart, windowEnd string) bool {
	nowMinutes := now.Hour()*60 + now.Minute()
	start := toMinutes(windowStart)
	end := toMinutes(windowEnd)
	if start == end {
		return true
	}
	if start < end {
		return nowMinutes >= start && nowMinutes <= end
	}
	return nowMinutes >= start || nowMinutes <= end
}

// Due reports whether enough time has passed since the last run. A nil
// lastRun is always due.
func Due(now time.Time, lastRun *time.Time, frequencyMinutes int) bool {
	if lastRun == nil {
		return true
	}
	return !now.Before(lastRun.Add(time.Duration(frequencyMinutes) * time.Minute))
}
