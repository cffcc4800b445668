package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/wx-verification-etl/internal/bulletin"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

// Loader writes verification output to the destination.
type Loader interface {
	LoadObservations(ctx context.Context, obs []domain.CanonicalObservation) error
	LoadDailies(ctx context.Context, dailies []domain.DailyRecord) error
}

// BulletinCacher refreshes the on-disk bulletin cache for a station.
type BulletinCacher interface {
	FetchAndCache(ctx context.Context, stationID, stationID3 string, versions int) (bulletin.CacheReport, error)
}

// WindStore reads daily wind from cached bulletins.
type WindStore interface {
	LoadWind(stationID string) (map[domain.Date]float64, error)
}

// StationDirectory resolves the identifiers a station is filed under by the
// climate sources.
type StationDirectory interface {
	StationID3(stationID string) string
	GHCNStationID(stationID string) (string, bool)
}

// Mode selects the fetch windows and climate sources for a run.
type Mode string

const (
	// ModeLatest covers the last day and pulls bulletins only during the
	// afternoon publication window.
	ModeLatest Mode = "latest"
	// ModeHistorical backfills from a start date, pulls a year of bulletins
	// and always consults the climate archive.
	ModeHistorical Mode = "historical"
)

// Request describes one run.
type Request struct {
	Mode  Mode
	Since time.Time // historical start
	RunID string
}

// StationResult is the outcome of one station run.
type StationResult struct {
	StationID    string
	Observations int
	Dailies      int
	Wind         domain.WindStats
	Bulletins    bulletin.CacheReport
	Err          error
}

// Options tunes a Runner.
type Options struct {
	// UseClimo consults the climate archive in latest mode as well.
	UseClimo        bool
	WindDiscrepancy float64
	Concurrency     int
}

// Runner executes the verification flow for each station: refresh the
// bulletin cache, build hourly observations, aggregate 6Z days, reconcile
// wind, round and load.
type Runner struct {
	source    domain.ObservationSource
	archive   domain.ClimateArchive
	bulletins BulletinCacher
	winds     WindStore
	loader    Loader
	stations  StationDirectory
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewRunner wires a Runner. archive may be nil, in which case archive wind is
// never used.
func NewRunner(
	source domain.ObservationSource,
	archive domain.ClimateArchive,
	bulletins BulletinCacher,
	winds WindStore,
	loader Loader,
	stations StationDirectory,
	opts Options,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.WindDiscrepancy <= 0 {
		opts.WindDiscrepancy = domain.DefaultWindDiscrepancy
	}
	return &Runner{
		source:    source,
		archive:   archive,
		bulletins: bulletins,
		winds:     winds,
		loader:    loader,
		stations:  stations,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no verification run has completed yet")
	}
	return nil
}

// RunAll runs every station with bounded concurrency. A failing station never
// cancels its siblings; results are returned in input order.
func (r *Runner) RunAll(ctx context.Context, stations []string, req Request) []StationResult {
	start := time.Now()
	logger := r.logger.With("run_id", req.RunID, "mode", string(req.Mode))
	logger.Info("run started", "stations", len(stations))

	results := make([]StationResult, len(stations))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, stid := range stations {
		g.Go(func() error {
			results[i] = r.runStation(ctx, stid, req, logger.With("station", stid))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	r.ready.Store(true)
	logger.Info("run complete", "stations", len(stations), "failed", failed, "duration", time.Since(start))
	return results
}

// RunStation runs the full flow for a single station.
func (r *Runner) RunStation(ctx context.Context, stationID string, req Request) StationResult {
	return r.runStation(ctx, stationID, req, r.logger.With("run_id", req.RunID, "station", stationID))
}

func (r *Runner) runStation(ctx context.Context, stationID string, req Request, logger *slog.Logger) StationResult {
	res := StationResult{StationID: stationID}
	res.Err = r.verifyStation(ctx, stationID, req, logger, &res)

	outcome := "success"
	if res.Err != nil {
		outcome = "error"
		logger.Error("station run failed", "error", res.Err)
	} else {
		logger.Info("station run complete",
			"observations", res.Observations,
			"dailies", res.Dailies,
			"wind_replaced", res.Wind.Replaced,
			"wind_kept", res.Wind.Kept,
		)
	}
	r.metrics.StationRuns.WithLabelValues(string(req.Mode), outcome).Inc()
	return res
}

func (r *Runner) verifyStation(ctx context.Context, stationID string, req Request, logger *slog.Logger, res *StationResult) error {
	obsWindow, dailyWindow, versions := r.plan(req)

	if versions > 0 && r.bulletins != nil {
		report, err := r.bulletins.FetchAndCache(ctx, stationID, r.stations.StationID3(stationID), versions)
		if err != nil {
			logger.Warn("bulletin refresh failed", "error", err)
		}
		res.Bulletins = report
	}

	ts, err := r.hourly(ctx, stationID, obsWindow)
	if err != nil {
		return err
	}
	if err := r.loader.LoadObservations(ctx, ts.Observations); err != nil {
		return fmt.Errorf("load observations: %w", err)
	}
	res.Observations = len(ts.Observations)
	r.metrics.ObservationsProduced.Add(float64(res.Observations))

	dailies, err := r.daily(ctx, stationID, dailyWindow, logger)
	if err != nil {
		return err
	}

	useArchive := req.Mode == ModeHistorical || r.opts.UseClimo
	combined := domain.MergeClimateWind(
		r.archiveWind(ctx, stationID, dailies, useArchive, logger),
		r.bulletinWind(stationID, logger),
	)
	dailies, res.Wind = domain.ReconcileWind(dailies, combined, r.opts.WindDiscrepancy, logger)
	r.metrics.WindDecisions.WithLabelValues("kept").Add(float64(res.Wind.Kept))
	r.metrics.WindDecisions.WithLabelValues("replaced").Add(float64(res.Wind.Replaced))

	dailies = domain.RoundDaily(dailies)
	if err := r.loader.LoadDailies(ctx, dailies); err != nil {
		return fmt.Errorf("load dailies: %w", err)
	}
	res.Dailies = len(dailies)
	r.metrics.DailiesProduced.Add(float64(res.Dailies))
	return nil
}

// plan returns the observation window, the verification window and how many
// bulletin versions to pull.
func (r *Runner) plan(req Request) (domain.Window, domain.Window, int) {
	if req.Mode == ModeHistorical {
		w := domain.HistoricalWindow(req.Since)
		return w, w, domain.HistoricalBulletinVersions()
	}
	return domain.LatestObservationWindow(), domain.LatestVerificationWindow(), domain.LatestBulletinVersions()
}

func (r *Runner) hourly(ctx context.Context, stationID string, w domain.Window) (domain.TimeSeries, error) {
	resp, err := r.source.RoutineTimeseries(ctx, stationID, w.Start, w.End, domain.HourlyVariables, domain.ObservationUnits)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("fetch hourly observations: %w", err)
	}
	records, err := domain.MapColumns(resp, domain.HourlyVariables)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("map hourly observations: %w", err)
	}
	return domain.BuildHourly(stationID, records), nil
}

// daily aggregates the verification window without rounding. It fetches
// high-frequency reports too so sub-hourly extremes reach the daily pass. A
// catalog failure other than bad credentials falls back to hourly-only
// variables.
func (r *Runner) daily(ctx context.Context, stationID string, w domain.Window, logger *slog.Logger) ([]domain.DailyRecord, error) {
	var opts domain.SixHourOptions
	catalog, err := r.source.SensorCatalog(ctx, stationID)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return nil, fmt.Errorf("fetch sensor catalog: %w", err)
	case err != nil:
		logger.Warn("sensor catalog unavailable, using hourly variables only", "error", err)
	default:
		opts = domain.SixHourOptionsFrom(catalog)
	}

	vars := opts.Variables()
	resp, err := r.source.Timeseries(ctx, stationID, w.Start, w.End, vars, domain.ObservationUnits)
	if err != nil {
		return nil, fmt.Errorf("fetch daily observations: %w", err)
	}
	records, err := domain.MapColumns(resp, vars)
	if err != nil {
		return nil, fmt.Errorf("map daily observations: %w", err)
	}
	return domain.AggregateDaily(stationID, records, opts), nil
}
