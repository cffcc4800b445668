package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wx-verification-etl/internal/bulletin"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

// --- mocks ---

type report struct {
	at   string
	temp float64
	wind float64
}

type mockSource struct {
	mu          sync.Mutex
	reports     map[string][]report
	catalog     []string
	catalogErr  error
	seriesErr   map[string]error
	seriesCalls []seriesCall
}

type seriesCall struct {
	routineOnly bool
	variables   []string
}

func (m *mockSource) Timeseries(_ context.Context, stationID string, _, _ time.Time, variables []string, _ string) (domain.ProviderResponse, error) {
	return m.timeseries(stationID, variables, false)
}

func (m *mockSource) RoutineTimeseries(_ context.Context, stationID string, _, _ time.Time, variables []string, _ string) (domain.ProviderResponse, error) {
	return m.timeseries(stationID, variables, true)
}

func (m *mockSource) timeseries(stationID string, variables []string, routineOnly bool) (domain.ProviderResponse, error) {
	m.mu.Lock()
	m.seriesCalls = append(m.seriesCalls, seriesCall{routineOnly: routineOnly, variables: variables})
	m.mu.Unlock()

	if err := m.seriesErr[stationID]; err != nil {
		return domain.ProviderResponse{}, err
	}
	return providerResponse(stationID, m.reports[stationID])
}

func (m *mockSource) SensorCatalog(_ context.Context, _ string) ([]string, error) {
	return m.catalog, m.catalogErr
}

func providerResponse(stationID string, reports []report) (domain.ProviderResponse, error) {
	dates := make([]string, len(reports))
	temps := make([]string, len(reports))
	winds := make([]string, len(reports))
	for i, r := range reports {
		dates[i] = fmt.Sprintf("%q", r.at)
		temps[i] = fmt.Sprint(r.temp)
		winds[i] = fmt.Sprint(r.wind)
	}
	body := fmt.Sprintf(`{"SUMMARY": {"RESPONSE_CODE": 1}, "STATION": [{"STID": %q, "OBSERVATIONS": {
		"date_time": [%s], "air_temp_set_1": [%s], "wind_speed_set_1": [%s]}}]}`,
		stationID, strings.Join(dates, ","), strings.Join(temps, ","), strings.Join(winds, ","))

	var resp domain.ProviderResponse
	err := json.Unmarshal([]byte(body), &resp)
	return resp, err
}

type archiveCall struct {
	stationID string
	element   string
	from, to  domain.Date
}

type mockArchive struct {
	mu     sync.Mutex
	values map[domain.Date]float64
	err    error
	calls  []archiveCall
}

func (m *mockArchive) FetchDailyElement(_ context.Context, stationID, element string, from, to domain.Date) (map[domain.Date]float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, archiveCall{stationID: stationID, element: element, from: from, to: to})
	m.mu.Unlock()
	return m.values, m.err
}

type cacheCall struct {
	stationID, stationID3 string
	versions              int
}

type mockCacher struct {
	mu    sync.Mutex
	calls []cacheCall
	err   error
}

func (m *mockCacher) FetchAndCache(_ context.Context, stationID, stationID3 string, versions int) (bulletin.CacheReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cacheCall{stationID: stationID, stationID3: stationID3, versions: versions})
	return bulletin.CacheReport{Written: versions}, m.err
}

type mockWinds struct {
	wind map[domain.Date]float64
	err  error
}

func (m *mockWinds) LoadWind(_ string) (map[domain.Date]float64, error) {
	return m.wind, m.err
}

type mockLoader struct {
	mu           sync.Mutex
	observations []domain.CanonicalObservation
	dailies      []domain.DailyRecord
	err          error
}

func (m *mockLoader) LoadObservations(_ context.Context, obs []domain.CanonicalObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, obs...)
	return m.err
}

func (m *mockLoader) LoadDailies(_ context.Context, dailies []domain.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailies = append(m.dailies, dailies...)
	return m.err
}

// --- helpers ---

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T, ts string) {
	t.Helper()
	now, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
}
