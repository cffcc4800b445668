package mesowest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/wx-verification-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

// Provider summary response codes.
const (
	responseOK          = 1
	responseNoResults   = 2
	responseAuthFailure = 200
	responseBadRequest  = 400
)

// timeLayout is the provider's start/end parameter format (UTC).
const timeLayout = "200601021504"

// errProvider is returned when the provider reports a request-level failure.
var errProvider = errors.New("observation provider error")

// Client implements domain.ObservationSource using the MesoWest / Synoptic
// stations API.
type Client struct {
	token   string
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates a provider client. baseURL has no trailing slash, e.g.
// "https://api.synopticdata.com/v2".
func NewClient(baseURL, token string, hc *httpclient.Client, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

// Timeseries fetches every report for a station between start and end.
func (c *Client) Timeseries(ctx context.Context, stationID string, start, end time.Time, variables []string, units string) (domain.ProviderResponse, error) {
	return c.timeseries(ctx, stationID, start, end, variables, units, false)
}

// RoutineTimeseries fetches reports with high-frequency METARs excluded
// upstream.
func (c *Client) RoutineTimeseries(ctx context.Context, stationID string, start, end time.Time, variables []string, units string) (domain.ProviderResponse, error) {
	return c.timeseries(ctx, stationID, start, end, variables, units, true)
}

func (c *Client) timeseries(ctx context.Context, stationID string, start, end time.Time, variables []string, units string, routineOnly bool) (domain.ProviderResponse, error) {
	params := url.Values{
		"token":      {c.token},
		"stid":       {stationID},
		"start":      {start.UTC().Format(timeLayout)},
		"end":        {end.UTC().Format(timeLayout)},
		"vars":       {strings.Join(variables, ",")},
		"units":      {units},
		"obtimezone": {"utc"},
	}
	if routineOnly {
		params.Set("hfmetars", "0")
	}
	c.logger.Debug("fetching timeseries", "station", stationID, "start", start, "end", end, "routine_only", routineOnly)
	return c.get(ctx, "/stations/timeseries", params)
}

// SensorCatalog returns the variable names in the station's latest report.
func (c *Client) SensorCatalog(ctx context.Context, stationID string) ([]string, error) {
	resp, err := c.get(ctx, "/stations/latest", url.Values{
		"token": {c.token},
		"stid":  {stationID},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Stations) == 0 {
		return nil, fmt.Errorf("%w: no station entry for %s", domain.ErrMalformedResponse, stationID)
	}

	vars := make([]string, 0, len(resp.Stations[0].SensorVariables))
	for v := range resp.Stations[0].SensorVariables {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (domain.ProviderResponse, error) {
	body, err := c.http.Get(ctx, c.baseURL+path+"?"+params.Encode())
	if err != nil {
		if httpclient.IsStatus(err, http.StatusUnauthorized) || httpclient.IsStatus(err, http.StatusForbidden) {
			return domain.ProviderResponse{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
		return domain.ProviderResponse{}, err
	}

	var resp domain.ProviderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ProviderResponse{}, fmt.Errorf("%w: decode: %v", domain.ErrMalformedResponse, err)
	}

	switch code := resp.Summary.ResponseCode; {
	case code == responseAuthFailure:
		return domain.ProviderResponse{}, fmt.Errorf("%w: %s", domain.ErrUnauthorized, resp.Summary.ResponseMessage)
	case code >= responseBadRequest:
		return domain.ProviderResponse{}, fmt.Errorf("%w: code %d: %s", errProvider, code, resp.Summary.ResponseMessage)
	case code == responseNoResults:
		c.logger.Debug("provider returned no results", "path", path, "message", resp.Summary.ResponseMessage)
	}
	return resp, nil
}
