package domain

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// Provider variable names.
const (
	VarAirTemp       = "air_temp"
	VarDewpoint      = "dew_point_temperature"
	VarWindSpeed     = "wind_speed"
	VarWindDirection = "wind_direction"
	VarCloudLayer1   = "cloud_layer_1_code"
	VarCloudLayer2   = "cloud_layer_2_code"
	VarCloudLayer3   = "cloud_layer_3_code"
	VarRainHour      = "precip_accum_one_hour"
	VarCondition     = "weather_condition"
	VarHigh6Hour     = "air_temp_high_6_hour"
	VarLow6Hour      = "air_temp_low_6_hour"
	VarRain6Hour     = "precip_accum_six_hour"
)

// ObservationUnits requests Fahrenheit, inches and knots from the provider.
const ObservationUnits = "temp|f,precip|in,speed|kts"

// HourlyVariables are requested for canonical hourly observations.
var HourlyVariables = []string{
	VarAirTemp, VarDewpoint, VarWindSpeed, VarWindDirection,
	VarCloudLayer1, VarCloudLayer2, VarCloudLayer3,
	VarRainHour, VarCondition,
}

// clearSkyCode is the cloud layer code substituted for a missing layer.
const clearSkyCode = 1

// cloudCoverage maps a layer's coverage digit to percent sky cover.
var cloudCoverage = map[int]float64{
	1: 0,
	2: 50,
	3: 75,
	4: 100,
	6: 25,
}

// CanonicalMinute returns the minute-of-hour that occurs most often across
// the records. Ties go to the largest minute. The second result is false when
// there are no records.
func CanonicalMinute(records []RawObservationRecord) (int, bool) {
	if len(records) == 0 {
		return 0, false
	}
	var counts [60]int
	for _, r := range records {
		counts[r.Time.UTC().Minute()]++
	}
	best, bestCount := 0, 0
	for m := 59; m >= 0; m-- {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}
	return best, true
}

// CloudFraction converts a layer code to percent coverage. Only the last digit
// carries coverage; unknown digits count as clear.
func CloudFraction(code float64) float64 {
	return cloudCoverage[int(math.Mod(code, 10))]
}

// TotalCloud sums the coverage of up to three layers, capped at 100.
func TotalCloud(codes ...float64) float64 {
	var total float64
	for _, c := range codes {
		total += CloudFraction(c)
	}
	return math.Min(total, 100)
}

// BuildHourly keeps the reports made at the station's canonical minute and
// converts them to canonical hourly observations, ordered by time.
func BuildHourly(stationID string, records []RawObservationRecord) TimeSeries {
	ts := TimeSeries{StationID: stationID}
	minute, ok := CanonicalMinute(records)
	if !ok {
		return ts
	}

	onHour := make([]RawObservationRecord, 0, len(records)/2+1)
	for _, r := range records {
		if r.Time.UTC().Minute() == minute {
			onHour = append(onHour, r)
		}
	}
	sort.SliceStable(onHour, func(i, j int) bool { return onHour[i].Time.Before(onHour[j].Time) })

	seen := make(map[time.Time]bool, len(onHour))
	for _, r := range onHour {
		hour := r.Time.UTC().Truncate(time.Hour)
		if seen[hour] {
			continue
		}
		seen[hour] = true
		ts.Observations = append(ts.Observations, canonicalize(stationID, r))
	}
	return ts
}

func canonicalize(stationID string, r RawObservationRecord) CanonicalObservation {
	rain := r.Get(VarRainHour).Float()
	if !rain.Valid() {
		rain = Float(0)
	}

	return CanonicalObservation{
		StationID:     stationID,
		DateTime:      r.Time.UTC().Format(DateTimeLayout),
		Temperature:   r.Get(VarAirTemp).Float(),
		Dewpoint:      r.Get(VarDewpoint).Float(),
		WindSpeed:     r.Get(VarWindSpeed).Float(),
		WindDirection: r.Get(VarWindDirection).Float(),
		RainHour:      rain,
		Cloud: Float(TotalCloud(
			layerCode(r.Get(VarCloudLayer1)),
			layerCode(r.Get(VarCloudLayer2)),
			layerCode(r.Get(VarCloudLayer3)),
		)),
		Condition: conditionText(r.Get(VarCondition)),
	}
}

func layerCode(r Reading) float64 {
	if f := r.Float(); f.Valid() {
		return f.Value
	}
	return clearSkyCode
}

func conditionText(r Reading) *string {
	if !r.HasValue {
		return nil
	}
	s := r.Text
	if !r.IsText {
		s = strconv.FormatFloat(r.Value, 'f', -1, 64)
	}
	return &s
}
