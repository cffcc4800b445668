package nws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/wx-verification-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

// bulletinProduct is the NWS product code for the monthly climate summary.
const bulletinProduct = "CF6"

// Client implements domain.BulletinService against the NWS text product
// viewer.
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates a bulletin client. baseURL is the product viewer page,
// e.g. "https://forecast.weather.gov/product.php".
func NewClient(baseURL string, hc *httpclient.Client, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, http: hc, logger: logger}
}

// FetchBulletin returns the raw text of a station's monthly climate bulletin.
// Version 1 is the latest issuance.
func (c *Client) FetchBulletin(ctx context.Context, stationID3 string, version int) (string, error) {
	params := url.Values{
		"site":     {"NWS"},
		"issuedby": {strings.ToUpper(stationID3)},
		"product":  {bulletinProduct},
		"format":   {"TXT"},
		"version":  {strconv.Itoa(version)},
		"glossary": {"0"},
	}

	body, err := c.http.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		if httpclient.IsStatus(err, http.StatusNotFound) {
			return "", fmt.Errorf("%w: %s version %d", domain.ErrBulletinNotFound, stationID3, version)
		}
		return "", fmt.Errorf("fetch bulletin %s version %d: %w", stationID3, version, err)
	}
	return string(body), nil
}
