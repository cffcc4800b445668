package ncei

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wx-verification-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

func testClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hc := httpclient.New("ncei", httpclient.Options{
		Timeout:        5 * time.Second,
		BreakerTimeout: time.Minute,
	}, observability.NewMetricsForTesting(), logger)
	return NewClient(baseURL, hc, logger)
}

func TestClient_FetchDailyElement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "daily-summaries", q.Get("dataset"))
		assert.Equal(t, "USW00024233", q.Get("stations"))
		assert.Equal(t, "WSF2", q.Get("dataTypes"))
		assert.Equal(t, "2018-01-01", q.Get("startDate"))
		assert.Equal(t, "2018-01-03", q.Get("endDate"))
		assert.Equal(t, "json", q.Get("format"))
		_, _ = io.WriteString(w, `[
		  {"DATE": "2018-01-01", "STATION": "USW00024233", "WSF2": "   67"},
		  {"DATE": "2018-01-02", "STATION": "USW00024233", "WSF2": ""},
		  {"DATE": "bogus", "STATION": "USW00024233", "WSF2": "10"},
		  {"DATE": "2018-01-03", "STATION": "USW00024233", "WSF2": "112"}
		]`)
	}))
	defer srv.Close()

	from := domain.NewDate(2018, time.January, 1)
	to := domain.NewDate(2018, time.January, 3)
	got, err := testClient(srv.URL).FetchDailyElement(context.Background(), "USW00024233", domain.ArchiveWindElement, from, to)
	require.NoError(t, err)

	assert.Equal(t, map[domain.Date]float64{
		from: 67,
		to:   112,
	}, got)
	assert.InDelta(t, 13.023728, domain.ArchiveWindKnots(got[from]), 1e-9)
}

func TestClient_FetchDailyElement_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"errorMessage": "bad station"}`)
	}))
	defer srv.Close()

	d := domain.NewDate(2018, time.January, 1)
	_, err := testClient(srv.URL).FetchDailyElement(context.Background(), "X", "WSF2", d, d)
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestClient_FetchDailyElement_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	d := domain.NewDate(2018, time.January, 1)
	_, err := testClient(srv.URL).FetchDailyElement(context.Background(), "X", "WSF2", d, d)
	require.Error(t, err)
	assert.True(t, httpclient.IsStatus(err, http.StatusBadRequest))
}
