package domain

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testStation = "KSEA"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func rawRecord(t *testing.T, ts string, values map[string]Reading) RawObservationRecord {
	t.Helper()
	if values == nil {
		values = map[string]Reading{}
	}
	return RawObservationRecord{StationID: testStation, Time: mustTime(t, ts), Values: values}
}
