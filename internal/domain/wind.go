package domain

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MphToKnots converts statute miles per hour to knots.
	MphToKnots = 0.868976

	// MpsToKnots converts meters per second to knots.
	MpsToKnots = 1.94384

	// ArchiveWindElement is the archive's fastest 2-minute wind element,
	// reported in tenths of meters per second.
	ArchiveWindElement = "WSF2"

	// DefaultWindDiscrepancy is how far, in knots, observed wind may exceed a
	// climate value before the observation is kept instead.
	DefaultWindDiscrepancy = 5.0
)

const (
	bulletinWindField = 11
	bulletinMissing   = "M"
)

// bulletinLineRe matches a daily observation row: a day number followed by a
// max temperature field.
var bulletinLineRe = regexp.MustCompile(`^( \d|\d{2}) ( \d{2}|-\d{2}|  \d| -\d|\d{3})`)

// ParseBulletin reads the daily rows of a monthly climate bulletin and returns
// the max 2-minute wind for each day, in knots. A missing value counts as calm.
func ParseBulletin(r io.Reader, year int, month time.Month) (map[Date]float64, error) {
	out := make(map[Date]float64)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !bulletinLineRe.MatchString(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) <= bulletinWindField {
			continue
		}
		day, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		date := NewDate(year, month, day)
		if date.Month() != month || day < 1 {
			continue
		}
		raw := fields[bulletinWindField]
		if raw == bulletinMissing {
			out[date] = 0
			continue
		}
		mph, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[date] = mph * MphToKnots
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read bulletin: %w", err)
	}
	return out, nil
}

// ArchiveWindKnots converts a raw archive wind value (tenths of m/s) to knots.
func ArchiveWindKnots(raw float64) float64 {
	return raw / 10 * MpsToKnots
}

// MergeClimateWind combines archive and bulletin wind. Bulletins are specific
// to the station and period, so they override the archive on shared days.
func MergeClimateWind(archive, bulletin map[Date]float64) map[Date]ClimateWindObservation {
	out := make(map[Date]ClimateWindObservation, len(archive)+len(bulletin))
	for d, v := range archive {
		out[d] = ClimateWindObservation{Date: d, Knots: v, Source: WindSourceArchive}
	}
	for d, v := range bulletin {
		out[d] = ClimateWindObservation{Date: d, Knots: v, Source: WindSourceBulletin}
	}
	return out
}

// WindStats counts reconciliation outcomes.
type WindStats struct {
	Matched  int
	Kept     int
	Replaced int
}

// ReconcileWind substitutes climate wind for observed wind on matching days.
// When the observation exceeds the climate value by threshold knots or more,
// the climate value is treated as suspect and the observation is kept.
func ReconcileWind(records []DailyRecord, combined map[Date]ClimateWindObservation, threshold float64, logger *slog.Logger) ([]DailyRecord, WindStats) {
	var stats WindStats
	out := make([]DailyRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		climate, ok := combined[rec.Date]
		if !ok {
			continue
		}
		stats.Matched++
		if rec.Wind.Valid() && rec.Wind.Value-climate.Knots >= threshold {
			logger.Warn("observed wind much larger than climate wind, keeping observation",
				"station", rec.StationID,
				"date", rec.Date.String(),
				"observed", rec.Wind.Value,
				"climate", climate.Knots,
				"source", string(climate.Source),
			)
			stats.Kept++
			continue
		}
		out[i].Wind = Float(climate.Knots)
		stats.Replaced++
	}
	return out, stats
}

// SortedDates returns the keys of a climate wind map in order.
func SortedDates[V any](m map[Date]V) []Date {
	dates := make([]Date, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j].Time) })
	return dates
}
