package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// dateTimeColumn is the observation column carrying report timestamps.
const dateTimeColumn = "date_time"

// setSuffixRe matches the provider's sensor-set suffix on observation
// columns, e.g. "air_temp_set_1" or "dew_point_temperature_set_1d".
var setSuffixRe = regexp.MustCompile(`_set_\d+d?$`)

// ProviderResponse mirrors the observation provider's timeseries payload.
type ProviderResponse struct {
	Summary  ProviderSummary   `json:"SUMMARY"`
	Stations []ProviderStation `json:"STATION"`
}

// ProviderSummary carries the provider's status for a request.
type ProviderSummary struct {
	ResponseCode    int    `json:"RESPONSE_CODE"`
	ResponseMessage string `json:"RESPONSE_MESSAGE"`
}

// ProviderStation holds one station's variable catalog and observation columns.
//
// SensorVariables maps a variable name to its sensor sets, e.g.
// {"air_temp": {"air_temp_set_1": {...}}}. Observations maps a column name
// (a sensor set, or "date_time") to its values.
type ProviderStation struct {
	STID            string                                `json:"STID"`
	SensorVariables map[string]map[string]json.RawMessage `json:"SENSOR_VARIABLES"`
	Observations    map[string][]json.RawMessage          `json:"OBSERVATIONS"`
}

// MapColumns converts a provider response into records keyed by the requested
// variable names. Requested variables the station does not report are filled
// with null readings.
func MapColumns(resp ProviderResponse, requested []string) ([]RawObservationRecord, error) {
	if len(resp.Stations) == 0 {
		return nil, fmt.Errorf("%w: no station entry", ErrMalformedResponse)
	}
	st := resp.Stations[0]

	dates, ok := st.Observations[dateTimeColumn]
	if !ok {
		if len(st.Observations) > 0 {
			return nil, fmt.Errorf("%w: observations without %s column", ErrMalformedResponse, dateTimeColumn)
		}
		return nil, nil
	}

	times := make([]time.Time, len(dates))
	for i, raw := range dates {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: date_time[%d]: %v", ErrMalformedResponse, i, err)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: date_time[%d]: %v", ErrMalformedResponse, i, err)
		}
		times[i] = t.UTC()
	}

	lookup := columnLookup(st)
	columns := make(map[string][]Reading, len(requested))
	for _, variable := range requested {
		col, ok := lookup[variable]
		if !ok {
			continue
		}
		columns[variable] = parseColumn(st.Observations[col])
	}

	records := make([]RawObservationRecord, len(times))
	for i, t := range times {
		values := make(map[string]Reading, len(requested))
		for _, variable := range requested {
			if col := columns[variable]; i < len(col) {
				values[variable] = col[i]
			} else {
				values[variable] = Reading{}
			}
		}
		records[i] = RawObservationRecord{StationID: st.STID, Time: t, Values: values}
	}
	return records, nil
}

// columnLookup resolves each variable name to the observation column holding
// its values. Catalog entries come first: the lexically smallest set name that
// has a column wins, so a measured set_1 beats a derived set_1d. Columns not
// described by the catalog fall back to their name without the set suffix.
func columnLookup(st ProviderStation) map[string]string {
	lookup := make(map[string]string, len(st.SensorVariables))
	for variable, sets := range st.SensorVariables {
		names := make([]string, 0, len(sets))
		for name := range sets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, ok := st.Observations[name]; ok {
				lookup[variable] = name
				break
			}
		}
	}

	cols := make([]string, 0, len(st.Observations))
	for col := range st.Observations {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if col == dateTimeColumn {
			continue
		}
		variable := setSuffixRe.ReplaceAllString(col, "")
		if _, ok := lookup[variable]; !ok {
			lookup[variable] = col
		}
	}
	return lookup
}

func parseColumn(raw []json.RawMessage) []Reading {
	out := make([]Reading, len(raw))
	for i, v := range raw {
		out[i] = parseReading(v)
	}
	return out
}

func parseReading(raw json.RawMessage) Reading {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Reading{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return Reading{}
		}
		return Text(s)
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return Reading{}
	}
	return Number(v)
}
