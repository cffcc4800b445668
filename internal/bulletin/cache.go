// Package bulletin keeps an on-disk cache of monthly climate bulletins, one
// file per station and month under <root>/site_data, and reads daily wind
// back out of it.
package bulletin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/wx-verification-etl/internal/domain"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

// SiteDataDir is the cache directory below the data root.
const SiteDataDir = "site_data"

const fileExt = ".cli"

// TempPrefix names in-flight writes in the cache directory. A crash can leave
// one behind; readers ignore them.
const TempPrefix = "temp-"

// Outcome is what happened to one fetched bulletin version.
type Outcome string

const (
	OutcomeWritten  Outcome = "written"
	OutcomeReplaced Outcome = "replaced"
	OutcomeKept     Outcome = "kept"
	OutcomeSkipped  Outcome = "skipped"
)

// CacheReport summarizes one FetchAndCache call.
type CacheReport struct {
	Written  int
	Replaced int
	Kept     int
	Skipped  int
}

func (r *CacheReport) add(o Outcome) {
	switch o {
	case OutcomeWritten:
		r.Written++
	case OutcomeReplaced:
		r.Replaced++
	case OutcomeKept:
		r.Kept++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Cache fetches bulletins and stores their bodies on disk.
type Cache struct {
	service domain.BulletinService
	dir     string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCache creates a cache rooted at <root>/site_data.
func NewCache(root string, service domain.BulletinService, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	return &Cache{
		service: service,
		dir:     filepath.Join(root, SiteDataDir),
		metrics: metrics,
		logger:  logger,
	}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// FetchAndCache pulls bulletin versions 1..versions for a station and stores
// each under <STATIONID>_<YYYYMM>.cli. An existing file is only replaced by a
// body with strictly more lines, so a complete month is never overwritten by
// a partial reissue. Per-version failures are logged and skipped; only a
// cache directory failure or cancellation is returned.
func (c *Cache) FetchAndCache(ctx context.Context, stationID, stationID3 string, versions int) (CacheReport, error) {
	var report CacheReport
	if versions <= 0 {
		return report, nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return report, fmt.Errorf("create bulletin dir: %w", err)
	}

	logger := c.logger.With("station", stationID, "station_id3", stationID3)
	for v := 1; v <= versions; v++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := c.cacheVersion(ctx, stationID, stationID3, v, logger.With("version", v))
		report.add(outcome)
		c.metrics.BulletinWrites.WithLabelValues(string(outcome)).Inc()
	}
	return report, nil
}

func (c *Cache) cacheVersion(ctx context.Context, stationID, stationID3 string, version int, logger *slog.Logger) Outcome {
	text, err := c.service.FetchBulletin(ctx, stationID3, version)
	if err != nil {
		if errors.Is(err, domain.ErrBulletinNotFound) {
			logger.Info("bulletin version not available")
		} else {
			logger.Warn("bulletin fetch failed", "error", err)
		}
		return OutcomeSkipped
	}

	b, err := domain.ExtractBulletin(text)
	if err != nil {
		logger.Warn("bulletin unreadable, skipping", "error", err)
		return OutcomeSkipped
	}

	path := c.Path(stationID, b.FileMonth())
	outcome, err := writeIfLonger(c.dir, path, b.Body)
	if err != nil {
		logger.Warn("bulletin write failed", "file", path, "error", err)
		return OutcomeSkipped
	}
	logger.Debug("bulletin cached", "file", path, "outcome", string(outcome))
	return outcome
}

// Path returns the cache file for a station and YYYYMM month.
func (c *Cache) Path(stationID, fileMonth string) string {
	return filepath.Join(c.dir, strings.ToUpper(stationID)+"_"+fileMonth+fileExt)
}

// writeIfLonger writes body to a temp file in dir, then moves it over path
// when path is missing or has fewer lines.
func writeIfLonger(dir, path, body string) (Outcome, error) {
	tmp, err := os.CreateTemp(dir, TempPrefix+"*"+fileExt)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // already renamed on success

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	outcome := OutcomeWritten
	oldLines, err := lineCount(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return "", err
	default:
		newLines, err := lineCount(tmpName)
		if err != nil {
			return "", err
		}
		if newLines <= oldLines {
			return OutcomeKept, nil
		}
		outcome = OutcomeReplaced
	}

	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return outcome, nil
}

// lineCount counts lines, including a final line without a newline.
func lineCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("count lines in %s: %w", path, err)
	}
	return n, nil
}
