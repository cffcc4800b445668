package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

// archiveWind fetches archive wind in knots for the span of dailies. Any
// failure is logged and yields no archive values.
func (r *Runner) archiveWind(ctx context.Context, stationID string, dailies []domain.DailyRecord, enabled bool, logger *slog.Logger) map[domain.Date]float64 {
	if !enabled || r.archive == nil || len(dailies) == 0 {
		return nil
	}
	archiveID, ok := r.stations.GHCNStationID(stationID)
	if !ok {
		logger.Debug("no archive station configured, skipping archive wind")
		return nil
	}

	from, to := dailies[0].Date, dailies[len(dailies)-1].Date
	raw, err := r.archive.FetchDailyElement(ctx, archiveID, domain.ArchiveWindElement, from, to)
	if err != nil {
		logger.Warn("archive wind unavailable", "archive_station", archiveID, "error", err)
		return nil
	}

	out := make(map[domain.Date]float64, len(raw))
	for d, v := range raw {
		out[d] = domain.ArchiveWindKnots(v)
	}
	return out
}

// bulletinWind reads cached bulletin wind. Any failure is logged and yields no
// bulletin values.
func (r *Runner) bulletinWind(stationID string, logger *slog.Logger) map[domain.Date]float64 {
	if r.winds == nil {
		return nil
	}
	wind, err := r.winds.LoadWind(stationID)
	if err != nil {
		logger.Warn("bulletin wind unavailable", "error", err)
		return nil
	}
	if len(wind) == 0 {
		logger.Debug("no cached bulletins for station")
	}
	return wind
}
