package domain

import (
	"math"
	"slices"
	"sort"
	"time"
)

// DayBoundaryOffset shifts UTC timestamps back so verification days run from
// 06Z to 06Z and carry the date of their start.
const DayBoundaryOffset = 6 * time.Hour

// roundingNudge absorbs binary representation error before rounding, so a
// value such as 0.015 (stored as 0.01499...) still rounds up.
const roundingNudge = 1e-9

// DailyVariables are always requested for daily verification.
var DailyVariables = []string{VarAirTemp, VarWindSpeed, VarRainHour}

// SixHourOptions records which six-hour variables the station advertises.
type SixHourOptions struct {
	HighLow bool // both air_temp_high_6_hour and air_temp_low_6_hour
	Rain    bool // precip_accum_six_hour
}

// SixHourOptionsFrom inspects a station's sensor catalog.
func SixHourOptionsFrom(catalog []string) SixHourOptions {
	return SixHourOptions{
		HighLow: slices.Contains(catalog, VarHigh6Hour) && slices.Contains(catalog, VarLow6Hour),
		Rain:    slices.Contains(catalog, VarRain6Hour),
	}
}

// Variables returns the provider variables to request for daily aggregation.
func (o SixHourOptions) Variables() []string {
	vars := slices.Clone(DailyVariables)
	if o.HighLow {
		vars = append(vars, VarHigh6Hour, VarLow6Hour)
	}
	if o.Rain {
		vars = append(vars, VarRain6Hour)
	}
	return vars
}

// VerificationDate returns the 6Z day a timestamp belongs to.
func VerificationDate(t time.Time) Date {
	return DateOf(t.UTC().Add(-DayBoundaryOffset))
}

// aggregate accumulates one hour or one day of reports.
type aggregate struct {
	tempMax, tempMin NullFloat64
	high6, low6      NullFloat64
	wind             NullFloat64
	rain1, rain6     NullFloat64
}

// AggregateDaily reduces raw reports to unrounded daily records in two passes:
// first to shifted clock hours, then to shifted calendar days. Within an hour
// only the largest rain accumulation is trusted, so duplicate reports are
// never double counted.
func AggregateDaily(stationID string, records []RawObservationRecord, opts SixHourOptions) []DailyRecord {
	hours := make(map[time.Time]*aggregate)
	for _, r := range records {
		key := r.Time.UTC().Add(-DayBoundaryOffset).Truncate(time.Hour)
		h, ok := hours[key]
		if !ok {
			h = &aggregate{}
			hours[key] = h
		}
		temp := r.Get(VarAirTemp).Float()
		h.tempMax = maxNull(h.tempMax, temp)
		h.tempMin = minNull(h.tempMin, temp)
		if opts.HighLow {
			h.high6 = maxNull(h.high6, r.Get(VarHigh6Hour).Float())
			h.low6 = minNull(h.low6, r.Get(VarLow6Hour).Float())
		}
		h.wind = maxNull(h.wind, r.Get(VarWindSpeed).Float())
		h.rain1 = maxNull(h.rain1, r.Get(VarRainHour).Float())
		if opts.Rain {
			h.rain6 = maxNull(h.rain6, r.Get(VarRain6Hour).Float())
		}
	}

	keys := make([]time.Time, 0, len(hours))
	for key := range hours {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b time.Time) int { return a.Compare(b) })

	days := make(map[Date]*aggregate)
	for _, key := range keys {
		h := hours[key]
		date := DateOf(key)
		d, ok := days[date]
		if !ok {
			d = &aggregate{}
			days[date] = d
		}
		d.tempMax = maxNull(d.tempMax, h.tempMax)
		d.tempMin = minNull(d.tempMin, h.tempMin)
		d.high6 = maxNull(d.high6, h.high6)
		d.low6 = minNull(d.low6, h.low6)
		d.wind = maxNull(d.wind, h.wind)
		d.rain1 = sumNull(d.rain1, h.rain1)
		d.rain6 = sumNull(d.rain6, h.rain6)
	}

	out := make([]DailyRecord, 0, len(days))
	for date, d := range days {
		rec := DailyRecord{
			StationID: stationID,
			Date:      date,
			High:      d.tempMax,
			Low:       d.tempMin,
			Wind:      d.wind,
			Rain:      d.rain1,
		}
		if opts.HighLow {
			rec.High, rec.Low = d.high6, d.low6
		}
		if opts.Rain {
			rec.Rain = d.rain6
		}
		if !rec.Rain.Valid() {
			rec.Rain = Float(0)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// RoundDaily rounds wind and temperatures to whole units and rain to
// hundredths of an inch.
func RoundDaily(records []DailyRecord) []DailyRecord {
	out := make([]DailyRecord, len(records))
	for i, r := range records {
		r.High = roundNull(r.High, 0)
		r.Low = roundNull(r.Low, 0)
		r.Wind = roundNull(r.Wind, 0)
		r.Rain = roundNull(r.Rain, 2)
		out[i] = r
	}
	return out
}

// BuildDaily aggregates and rounds in one step, for callers that do not
// reconcile wind against climate sources.
func BuildDaily(stationID string, records []RawObservationRecord, opts SixHourOptions) []DailyRecord {
	return RoundDaily(AggregateDaily(stationID, records, opts))
}

// Round rounds x to the given number of decimal places, halves away from zero.
func Round(x float64, places int) float64 {
	p := math.Pow10(places)
	v := x * p
	v += math.Copysign(roundingNudge, v)
	return math.Round(v) / p
}

func roundNull(f NullFloat64, places int) NullFloat64 {
	if !f.Valid() {
		return NullFloat64{}
	}
	return Float(Round(f.Value, places))
}

func maxNull(acc, v NullFloat64) NullFloat64 {
	if !v.Valid() {
		return acc
	}
	if !acc.Valid() || v.Value > acc.Value {
		return v
	}
	return acc
}

func minNull(acc, v NullFloat64) NullFloat64 {
	if !v.Valid() {
		return acc
	}
	if !acc.Valid() || v.Value < acc.Value {
		return v
	}
	return acc
}

func sumNull(acc, v NullFloat64) NullFloat64 {
	if !v.Valid() {
		return acc
	}
	if !acc.Valid() {
		return v
	}
	return Float(acc.Value + v.Value)
}
