// Command verify runs the weather verification ETL: hourly observations and
// 6Z daily summaries per station, with daily wind reconciled against climate
// bulletins and the daily archive.
//
// By default it runs on SCHEDULE until interrupted. -once runs a single
// latest pass and exits; -since backfills from a date and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/wx-verification-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/wx-verification-etl/internal/adapter/httpclient"
	kafkaadapter "github.com/couchcryptid/wx-verification-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wx-verification-etl/internal/adapter/mesowest"
	"github.com/couchcryptid/wx-verification-etl/internal/adapter/ncei"
	"github.com/couchcryptid/wx-verification-etl/internal/adapter/nws"
	"github.com/couchcryptid/wx-verification-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/wx-verification-etl/internal/bulletin"
	"github.com/couchcryptid/wx-verification-etl/internal/config"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
	"github.com/couchcryptid/wx-verification-etl/internal/pipeline"
)

type sink interface {
	pipeline.Loader
	io.Closer
}

func main() {
	once := flag.Bool("once", false, "run a single latest pass and exit")
	since := flag.String("since", "", "backfill from this date (YYYY-MM-DD) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger, *once, *since); err != nil {
		logger.Error("verify failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, once bool, since string) error {
	var backfillFrom time.Time
	if since != "" {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return fmt.Errorf("invalid -since %q: %w", since, err)
		}
		backfillFrom = t
	}

	metrics := observability.NewMetrics()

	// One budget across every upstream.
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	clientOpts := httpclient.Options{
		Timeout:        cfg.HTTPTimeout,
		BreakerTimeout: cfg.BreakerTimeout,
		Limiter:        limiter,
	}

	mw := mesowest.NewClient(cfg.MesoWestURL, cfg.MesoWestToken, httpclient.New("mesowest", clientOpts, metrics, logger), logger)
	source := mesowest.NewCachedCatalog(mw, cfg.CatalogCacheSize, mesowest.DefaultCatalogTTL, clockwork.NewRealClock(), metrics)
	archive := ncei.NewClient(cfg.NCEIURL, httpclient.New("ncei", clientOpts, metrics, logger), logger)
	bulletins := nws.NewClient(cfg.NWSURL, httpclient.New("nws", clientOpts, metrics, logger), logger)

	cache := bulletin.NewCache(cfg.DataRoot, bulletins, metrics, logger)
	store := bulletin.NewStore(cfg.DataRoot, logger)

	out, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("sink close error", "sink", cfg.Sink, "error", err)
		}
	}()

	runner := pipeline.NewRunner(source, archive, cache, store, out, cfg, pipeline.Options{
		UseClimo:        cfg.UseClimo,
		WindDiscrepancy: cfg.WindDiscrepancyKnots,
		Concurrency:     cfg.MaxConcurrentStations,
	}, logger, metrics)

	scheduler, err := pipeline.NewScheduler(runner, cfg.Stations, cfg.Schedule, logger, metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case !backfillFrom.IsZero():
		return summarize(scheduler.RunOnce(ctx, pipeline.Request{Mode: pipeline.ModeHistorical, Since: backfillFrom}))
	case once:
		return summarize(scheduler.RunOnce(ctx, pipeline.Request{Mode: pipeline.ModeLatest}))
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := scheduler.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func openSink(cfg *config.Config, logger *slog.Logger) (sink, error) {
	if cfg.Sink == config.SinkSQLite {
		s, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite sink: %w", err)
		}
		return s, nil
	}
	return kafkaadapter.NewWriter(cfg, logger), nil
}

// summarize turns station failures from a one-shot run into an exit error.
func summarize(results []pipeline.StationResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.StationID, r.Err))
		}
	}
	return errors.Join(errs...)
}
