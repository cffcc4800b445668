package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wx-verification-etl/internal/config"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
	"github.com/couchcryptid/wx-verification-etl/internal/pipeline"
)

// Outside the bulletin publication window, so latest runs pull no bulletins.
const quietHour = "2018-01-03T10:00:00Z"

var day2 = domain.NewDate(2018, time.January, 2)

// ksea reports at :53 with one special at :10 the hour after.
var ksea = []report{
	{at: "2018-01-02T07:53:00Z", temp: 45.4, wind: 10},
	{at: "2018-01-02T08:10:00Z", temp: 48, wind: 12},
	{at: "2018-01-02T08:53:00Z", temp: 50.6, wind: 20},
}

type fixture struct {
	source  *mockSource
	archive *mockArchive
	cacher  *mockCacher
	winds   *mockWinds
	loader  *mockLoader
	dir     *config.Config
	opts    pipeline.Options
}

func newFixture() *fixture {
	return &fixture{
		source: &mockSource{
			reports: map[string][]report{"KSEA": ksea, "KPDX": ksea},
			catalog: []string{domain.VarAirTemp, domain.VarWindSpeed},
		},
		archive: &mockArchive{},
		cacher:  &mockCacher{},
		winds:   &mockWinds{},
		loader:  &mockLoader{},
		dir:     &config.Config{GHCNStationIDs: map[string]string{"KSEA": "USW00024233"}},
		opts:    pipeline.Options{WindDiscrepancy: 5, Concurrency: 2},
	}
}

func (f *fixture) runner(t *testing.T) (*pipeline.Runner, *observability.Metrics) {
	t.Helper()
	m := newTestMetrics()
	r := pipeline.NewRunner(f.source, f.archive, f.cacher, f.winds, f.loader, f.dir, f.opts, discardLogger(), m)
	return r, m
}

func expectedDaily(wind float64) []domain.DailyRecord {
	return []domain.DailyRecord{{
		StationID: "KSEA",
		Date:      day2,
		High:      domain.Float(51),
		Low:       domain.Float(45),
		Wind:      domain.Float(wind),
		Rain:      domain.Float(0),
	}}
}

func TestRunner_RunStation_Latest(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	r, m := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest, RunID: "run-1"})
	require.NoError(t, res.Err)

	assert.Equal(t, 2, res.Observations, "special report dropped from hourly output")
	assert.Equal(t, 1, res.Dailies)
	require.Len(t, f.loader.observations, 2)
	assert.Equal(t, "2018-01-02 07:53:00", f.loader.observations[0].DateTime)
	assert.Equal(t, "2018-01-02 08:53:00", f.loader.observations[1].DateTime)

	if diff := cmp.Diff(expectedDaily(20), f.loader.dailies); diff != "" {
		t.Errorf("dailies mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, f.cacher.calls, "no bulletins pulled outside the publication window")
	assert.Empty(t, f.archive.calls, "archive not consulted in latest mode")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationRuns.WithLabelValues("latest", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ObservationsProduced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DailiesProduced))
}

func TestRunner_RunStation_RequestsSixHourVariables(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.source.catalog = []string{domain.VarHigh6Hour, domain.VarLow6Hour, domain.VarRain6Hour}
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.NoError(t, res.Err)

	require.Len(t, f.source.seriesCalls, 2)
	assert.Equal(t, domain.HourlyVariables, f.source.seriesCalls[0].variables)
	assert.Contains(t, f.source.seriesCalls[1].variables, domain.VarHigh6Hour)
	assert.Contains(t, f.source.seriesCalls[1].variables, domain.VarRain6Hour)
}

func TestRunner_RunStation_DailyKeepsHighFrequencyReports(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.NoError(t, res.Err)

	require.Len(t, f.source.seriesCalls, 2)
	assert.True(t, f.source.seriesCalls[0].routineOnly, "hourly fetch drops high-frequency reports")
	assert.False(t, f.source.seriesCalls[1].routineOnly, "daily fetch sees every report")
}

func TestRunner_RunStation_BulletinWind(t *testing.T) {
	tests := []struct {
		name     string
		bulletin float64
		want     float64
		kept     int
		replaced int
	}{
		{"close bulletin replaces observation", 18, 18, 0, 1},
		{"observation far above bulletin is kept", 12, 20, 1, 0},
		{"bulletin above observation replaces", 30, 30, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freezeClock(t, quietHour)
			f := newFixture()
			f.winds.wind = map[domain.Date]float64{day2: tt.bulletin}
			r, m := f.runner(t)

			res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
			require.NoError(t, res.Err)

			if diff := cmp.Diff(expectedDaily(tt.want), f.loader.dailies); diff != "" {
				t.Errorf("dailies mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.kept, res.Wind.Kept)
			assert.Equal(t, tt.replaced, res.Wind.Replaced)
			assert.Equal(t, float64(tt.replaced), testutil.ToFloat64(m.WindDecisions.WithLabelValues("replaced")))
		})
	}
}

func TestRunner_RunStation_Historical(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.archive.values = map[domain.Date]float64{day2: 113} // 11.3 m/s
	r, m := f.runner(t)

	since := time.Date(2018, time.January, 2, 0, 0, 0, 0, time.UTC)
	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeHistorical, Since: since})
	require.NoError(t, res.Err)

	require.Len(t, f.cacher.calls, 1)
	assert.Equal(t, cacheCall{stationID: "KSEA", stationID3: "SEA", versions: 12}, f.cacher.calls[0])
	assert.Equal(t, 12, res.Bulletins.Written)

	require.Len(t, f.archive.calls, 1)
	assert.Equal(t, archiveCall{stationID: "USW00024233", element: domain.ArchiveWindElement, from: day2, to: day2}, f.archive.calls[0])

	if diff := cmp.Diff(expectedDaily(22), f.loader.dailies); diff != "" {
		t.Errorf("dailies mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationRuns.WithLabelValues("historical", "success")))
}

func TestRunner_RunStation_BulletinOverridesArchive(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.opts.UseClimo = true
	f.archive.values = map[domain.Date]float64{day2: 113}
	f.winds.wind = map[domain.Date]float64{day2: 17}
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.NoError(t, res.Err)

	require.Len(t, f.archive.calls, 1, "archive consulted when climo enabled")
	if diff := cmp.Diff(expectedDaily(17), f.loader.dailies); diff != "" {
		t.Errorf("dailies mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_RunStation_NoArchiveStation(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.dir = &config.Config{}
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeHistorical, Since: day2.Time})
	require.NoError(t, res.Err)
	assert.Empty(t, f.archive.calls)
}

func TestRunner_RunStation_ClimateFailuresAreTolerated(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.archive.err = errors.New("archive down")
	f.winds.err = errors.New("corrupt bulletin")
	f.cacher.err = errors.New("bulletin service down")
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeHistorical, Since: day2.Time})
	require.NoError(t, res.Err)

	if diff := cmp.Diff(expectedDaily(20), f.loader.dailies); diff != "" {
		t.Errorf("dailies mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_RunStation_CatalogFallback(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.source.catalog = nil
	f.source.catalogErr = errors.New("timeout")
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.NoError(t, res.Err)
	assert.Equal(t, domain.DailyVariables, f.source.seriesCalls[1].variables)
	assert.Len(t, f.loader.dailies, 1)
}

func TestRunner_RunStation_CatalogUnauthorized(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.source.catalogErr = domain.ErrUnauthorized
	r, m := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.ErrorIs(t, res.Err, domain.ErrUnauthorized)
	assert.Empty(t, f.loader.dailies)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationRuns.WithLabelValues("latest", "error")))
}

func TestRunner_RunStation_LoadError(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.loader.err = errors.New("broker unavailable")
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "load observations")
}

func TestRunner_RunAll_IsolatesFailures(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	f.source.seriesErr = map[string]error{"KPDX": domain.ErrMalformedResponse}
	r, m := f.runner(t)

	results := r.RunAll(context.Background(), []string{"KPDX", "KSEA"}, pipeline.Request{Mode: pipeline.ModeLatest, RunID: "run-2"})
	require.Len(t, results, 2)

	assert.Equal(t, "KPDX", results[0].StationID)
	require.ErrorIs(t, results[0].Err, domain.ErrMalformedResponse)
	assert.Equal(t, "KSEA", results[1].StationID)
	require.NoError(t, results[1].Err)

	assert.Len(t, f.loader.dailies, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationRuns.WithLabelValues("latest", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationRuns.WithLabelValues("latest", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestRunner_CheckReadiness(t *testing.T) {
	freezeClock(t, quietHour)
	f := newFixture()
	r, _ := f.runner(t)

	require.Error(t, r.CheckReadiness(context.Background()))
	r.RunAll(context.Background(), []string{"KSEA"}, pipeline.Request{Mode: pipeline.ModeLatest})
	assert.NoError(t, r.CheckReadiness(context.Background()))
}

func TestRunner_LatestPullsBulletinsInPublicationWindow(t *testing.T) {
	freezeClock(t, "2018-01-15T14:00:00Z")
	f := newFixture()
	r, _ := f.runner(t)

	res := r.RunStation(context.Background(), "KSEA", pipeline.Request{Mode: pipeline.ModeLatest})
	require.NoError(t, res.Err)
	require.Len(t, f.cacher.calls, 1)
	assert.Equal(t, 1, f.cacher.calls[0].versions)
}
