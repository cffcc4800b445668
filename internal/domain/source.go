package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnauthorized is returned when the observation provider rejects the API token.
	ErrUnauthorized = errors.New("observation provider rejected credentials")

	// ErrMalformedResponse is returned when a provider response has no station entry
	// or otherwise cannot be interpreted.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrBulletinNotFound is returned when the bulletin service has no product
	// for the requested station and version.
	ErrBulletinNotFound = errors.New("bulletin not found")
)

// ObservationSource fetches raw station telemetry.
type ObservationSource interface {
	// Timeseries returns every report for the station between start and end,
	// high-frequency ones included.
	Timeseries(ctx context.Context, stationID string, start, end time.Time, variables []string, units string) (ProviderResponse, error)

	// RoutineTimeseries is Timeseries without the high-frequency reports some
	// stations send between routine observations.
	RoutineTimeseries(ctx context.Context, stationID string, start, end time.Time, variables []string, units string) (ProviderResponse, error)

	// SensorCatalog returns the variable names the station currently reports.
	SensorCatalog(ctx context.Context, stationID string) ([]string, error)
}

// ClimateArchive fetches long-term daily climate elements.
type ClimateArchive interface {
	// FetchDailyElement returns raw values of element keyed by day, in the
	// archive's native units.
	FetchDailyElement(ctx context.Context, stationID, element string, from, to Date) (map[Date]float64, error)
}

// BulletinService fetches monthly climate bulletin text. Version 1 is the most
// recent issuance; higher versions step back in time.
type BulletinService interface {
	FetchBulletin(ctx context.Context, stationID3 string, version int) (string, error)
}
