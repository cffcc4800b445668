// Package sqlite is a durable sink for verification output. Rows are keyed by
// station and time, so re-running a window overwrites rather than duplicates.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/upsert-observation.sql
var upsertObservationSQL string

//go:embed sql/upsert-daily.sql
var upsertDailySQL string

//go:embed sql/get-dailies.sql
var getDailiesSQL string

//go:embed sql/get-observations.sql
var getObservationsSQL string

// Store implements pipeline.Loader on a SQLite database.
type Store struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, clock: clockwork.NewRealClock(), logger: logger}, nil
}

func buildDSN(path string) (string, error) {
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if path == ":memory:" {
		return "file::memory:?" + strings.Join(params[:2], "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadObservations upserts hourly observations in one transaction.
func (s *Store) LoadObservations(ctx context.Context, obs []domain.CanonicalObservation) error {
	if len(obs) == 0 {
		return nil
	}
	now := s.clock.Now().UTC().Format(time.RFC3339)
	return s.inTx(ctx, upsertObservationSQL, func(stmt *sql.Stmt) error {
		for _, o := range obs {
			_, err := stmt.ExecContext(ctx,
				o.StationID, o.DateTime,
				nullable(o.Temperature), nullable(o.Dewpoint),
				nullable(o.WindSpeed), nullable(o.WindDirection),
				nullable(o.RainHour), nullable(o.Cloud),
				o.Condition, now,
			)
			if err != nil {
				return fmt.Errorf("upsert observation %s %s: %w", o.StationID, o.DateTime, err)
			}
		}
		return nil
	})
}

// LoadDailies upserts daily records in one transaction.
func (s *Store) LoadDailies(ctx context.Context, dailies []domain.DailyRecord) error {
	if len(dailies) == 0 {
		return nil
	}
	now := s.clock.Now().UTC().Format(time.RFC3339)
	return s.inTx(ctx, upsertDailySQL, func(stmt *sql.Stmt) error {
		for _, d := range dailies {
			_, err := stmt.ExecContext(ctx,
				d.StationID, d.Date.String(),
				nullable(d.High), nullable(d.Low), nullable(d.Wind), nullable(d.Rain),
				now,
			)
			if err != nil {
				return fmt.Errorf("upsert daily %s %s: %w", d.StationID, d.Date, err)
			}
		}
		return nil
	})
}

// Dailies returns a station's stored daily records in date order.
func (s *Store) Dailies(ctx context.Context, stationID string) ([]domain.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, getDailiesSQL, stationID)
	if err != nil {
		return nil, fmt.Errorf("query dailies: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyRecord
	for rows.Next() {
		var (
			rec                   domain.DailyRecord
			date                  string
			high, low, wind, rain sql.NullFloat64
		)
		if err := rows.Scan(&rec.StationID, &date, &high, &low, &wind, &rain); err != nil {
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		if rec.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		rec.High, rec.Low, rec.Wind, rec.Rain = fromSQL(high), fromSQL(low), fromSQL(wind), fromSQL(rain)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Observations returns a station's stored hourly observations in time order.
func (s *Store) Observations(ctx context.Context, stationID string) ([]domain.CanonicalObservation, error) {
	rows, err := s.db.QueryContext(ctx, getObservationsSQL, stationID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalObservation
	for rows.Next() {
		var (
			rec                              domain.CanonicalObservation
			temp, dew, speed, dir, rain, cld sql.NullFloat64
			condition                        sql.NullString
		)
		if err := rows.Scan(&rec.StationID, &rec.DateTime, &temp, &dew, &speed, &dir, &rain, &cld, &condition); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		rec.Temperature, rec.Dewpoint = fromSQL(temp), fromSQL(dew)
		rec.WindSpeed, rec.WindDirection = fromSQL(speed), fromSQL(dir)
		rec.RainHour, rec.Cloud = fromSQL(rain), fromSQL(cld)
		if condition.Valid {
			rec.Condition = &condition.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullable(f domain.NullFloat64) any {
	if !f.Valid() {
		return nil
	}
	return f.Value
}

func fromSQL(f sql.NullFloat64) domain.NullFloat64 {
	if !f.Valid {
		return domain.NullFloat64{}
	}
	return domain.Float(f.Float64)
}
