package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic windows.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for fetch windows. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Window is a half-open fetch interval in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// The latest run pulls bulletins only between 12Z and 20Z.
const (
	bulletinPullStartHour = 12
	bulletinPullEndHour   = 20
	monthRolloverDays     = 3
	historicalBulletins   = 12
)

// LatestObservationWindow covers the last 24 hours.
func LatestObservationWindow() Window {
	now := clock.Now().UTC()
	return Window{Start: now.Add(-24 * time.Hour), End: now}
}

// LatestVerificationWindow starts at 06Z yesterday so yesterday's 6Z day is
// always recomputed from complete data.
func LatestVerificationWindow() Window {
	now := clock.Now().UTC()
	y := now.Add(-24 * time.Hour)
	start := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC).Add(DayBoundaryOffset)
	return Window{Start: start, End: now}
}

// HistoricalWindow starts at 06Z on the day of start and runs to now.
func HistoricalWindow(start time.Time) Window {
	start = start.UTC()
	begin := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC).Add(DayBoundaryOffset)
	return Window{Start: begin, End: clock.Now().UTC()}
}

// LatestBulletinVersions returns how many bulletin versions the latest run
// should pull right now: none outside the publication window, two near the
// start of a month so the previous month's final issue is captured, else one.
func LatestBulletinVersions() int {
	now := clock.Now().UTC()
	if now.Hour() < bulletinPullStartHour || now.Hour() >= bulletinPullEndHour {
		return 0
	}
	if now.Day() < monthRolloverDays {
		return 2
	}
	return 1
}

// HistoricalBulletinVersions is the number of bulletin versions pulled for a backfill.
func HistoricalBulletinVersions() int {
	return historicalBulletins
}
