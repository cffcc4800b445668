package ncei

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/wx-verification-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

const dailyDataset = "daily-summaries"

// Client implements domain.ClimateArchive against the NCEI data access
// service. Values are requested without unit conversion, so GHCN-Daily
// elements come back in their stored units (tenths for WSF2).
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates an archive client. baseURL is the service root, e.g.
// "https://www.ncei.noaa.gov/access/services/data/v1".
func NewClient(baseURL string, hc *httpclient.Client, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, http: hc, logger: logger}
}

// FetchDailyElement returns element values for each day in [from, to].
// Days with a blank value are omitted.
func (c *Client) FetchDailyElement(ctx context.Context, stationID, element string, from, to domain.Date) (map[domain.Date]float64, error) {
	params := url.Values{
		"dataset":   {dailyDataset},
		"stations":  {stationID},
		"dataTypes": {element},
		"startDate": {from.String()},
		"endDate":   {to.String()},
		"format":    {"json"},
	}

	body, err := c.http.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch %s for %s: %w", element, stationID, err)
	}

	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode archive rows: %v", domain.ErrMalformedResponse, err)
	}

	out := make(map[domain.Date]float64, len(rows))
	for _, row := range rows {
		raw := fieldText(row[element])
		if raw == "" {
			continue
		}
		d, err := domain.ParseDate(fieldText(row["DATE"]))
		if err != nil {
			c.logger.Debug("skipping archive row with bad date", "station", stationID, "date", fieldText(row["DATE"]))
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.logger.Debug("skipping archive row with bad value", "station", stationID, "value", raw)
			continue
		}
		out[d] = v
	}
	return out, nil
}

// fieldText returns a row field as trimmed text. The service quotes most
// values but may emit bare numbers.
func fieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(raw) == "null" {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
