package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DateTimeLayout is the text form stored for hourly observation timestamps.
const DateTimeLayout = "2006-01-02 15:04:05"

// NullFloat64 is a float that may be absent. NaN and Inf are treated as absent
// when serialized.
type NullFloat64 struct {
	Value    float64
	HasValue bool
}

// Float returns a present value.
func Float(v float64) NullFloat64 {
	return NullFloat64{Value: v, HasValue: true}
}

// Valid reports whether the value is present and finite.
func (f NullFloat64) Valid() bool {
	return f.HasValue && !math.IsNaN(f.Value) && !math.IsInf(f.Value, 0)
}

func (f NullFloat64) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func (f *NullFloat64) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = NullFloat64{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func (f NullFloat64) String() string {
	if !f.Valid() {
		return "null"
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// Date is a calendar day. It wraps a time.Time at 00:00 UTC and marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given civil day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t (in UTC) to its calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Reading is a single raw value reported by the observation provider. Most
// variables are numeric; a few (weather condition) arrive as text.
type Reading struct {
	Value    float64
	Text     string
	IsText   bool
	HasValue bool
}

// Number returns a present numeric reading.
func Number(v float64) Reading {
	return Reading{Value: v, HasValue: true}
}

// Text returns a present text reading.
func Text(s string) Reading {
	return Reading{Text: s, IsText: true, HasValue: true}
}

// Float converts the reading to a NullFloat64. Text readings are null.
func (r Reading) Float() NullFloat64 {
	if !r.HasValue || r.IsText {
		return NullFloat64{}
	}
	return Float(r.Value)
}

// RawObservationRecord is one provider report after column mapping, keyed by
// canonical provider variable name (air_temp, wind_speed, ...).
type RawObservationRecord struct {
	StationID string
	Time      time.Time
	Values    map[string]Reading
}

// Get returns the reading for variable, or a null reading.
func (r RawObservationRecord) Get(variable string) Reading {
	return r.Values[variable]
}

// CanonicalObservation is the hourly record handed to the persistence layer.
type CanonicalObservation struct {
	StationID     string      `json:"station_id"`
	DateTime      string      `json:"datetime"`
	Temperature   NullFloat64 `json:"temperature"`
	Dewpoint      NullFloat64 `json:"dewpoint"`
	WindSpeed     NullFloat64 `json:"windSpeed"`
	WindDirection NullFloat64 `json:"windDirection"`
	RainHour      NullFloat64 `json:"rainHour"`
	Cloud         NullFloat64 `json:"cloud"`
	Condition     *string     `json:"condition"`
}

// DailyRecord is the verification summary for one 6Z day.
type DailyRecord struct {
	StationID string      `json:"station_id"`
	Date      Date        `json:"date"`
	High      NullFloat64 `json:"high"`
	Low       NullFloat64 `json:"low"`
	Wind      NullFloat64 `json:"wind"`
	Rain      NullFloat64 `json:"rain"`
}

// TimeSeries is a station's time-ordered sequence of hourly observations.
type TimeSeries struct {
	StationID    string
	Observations []CanonicalObservation
}

// WindSource records which external dataset supplied a climate wind value.
type WindSource string

const (
	WindSourceArchive  WindSource = "archive"
	WindSourceBulletin WindSource = "bulletin"
)

// ClimateWindObservation is a daily wind value from an external climate source.
type ClimateWindObservation struct {
	Date   Date       `json:"date"`
	Knots  float64    `json:"knots"`
	Source WindSource `json:"source"`
}
