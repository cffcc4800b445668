package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Supported sinks.
const (
	SinkKafka  = "kafka"
	SinkSQLite = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Observation provider.
	MesoWestToken string
	MesoWestURL   string

	// Climate sources.
	NCEIURL             string
	NWSURL              string
	StationID3Overrides map[string]string
	GHCNStationIDs      map[string]string
	DataRoot            string
	UseClimo            bool

	Stations []string

	Sink            string
	KafkaBrokers    []string
	KafkaObsTopic   string
	KafkaDailyTopic string
	SQLitePath      string

	Schedule              string
	MaxConcurrentStations int
	RequestsPerSecond     float64
	HTTPTimeout           time.Duration
	BreakerTimeout        time.Duration
	WindDiscrepancyKnots  float64
	CatalogCacheSize      int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	breakerTimeout, err := parseDuration("BREAKER_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("MAX_CONCURRENT_STATIONS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("CATALOG_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	rps, err := parsePositiveFloat("REQUESTS_PER_SECOND", 2)
	if err != nil {
		return nil, err
	}
	discrepancy, err := parsePositiveFloat("WIND_DISCREPANCY_KNOTS", 5)
	if err != nil {
		return nil, err
	}
	useClimo, err := strconv.ParseBool(sharedcfg.EnvOrDefault("USE_CLIMO", "false"))
	if err != nil {
		return nil, errors.New("invalid USE_CLIMO")
	}
	id3, err := parseMapping("STATION_ID3_OVERRIDES")
	if err != nil {
		return nil, err
	}
	ghcn, err := parseMapping("GHCN_STATION_IDS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MesoWestToken: os.Getenv("MESOWEST_TOKEN"),
		MesoWestURL:   sharedcfg.EnvOrDefault("MESOWEST_URL", "https://api.synopticdata.com/v2"),

		NCEIURL:             sharedcfg.EnvOrDefault("NCEI_URL", "https://www.ncei.noaa.gov/access/services/data/v1"),
		NWSURL:              sharedcfg.EnvOrDefault("NWS_URL", "https://forecast.weather.gov/product.php"),
		StationID3Overrides: id3,
		GHCNStationIDs:      ghcn,
		DataRoot:            sharedcfg.EnvOrDefault("DATA_ROOT", "."),
		UseClimo:            useClimo,

		Stations: parseStations(os.Getenv("STATIONS")),

		Sink:            strings.ToLower(sharedcfg.EnvOrDefault("SINK", SinkKafka)),
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaObsTopic:   sharedcfg.EnvOrDefault("KAFKA_OBS_TOPIC", "station-observations"),
		KafkaDailyTopic: sharedcfg.EnvOrDefault("KAFKA_DAILY_TOPIC", "daily-verification"),
		SQLitePath:      sharedcfg.EnvOrDefault("SQLITE_PATH", "verification.db"),

		Schedule:              sharedcfg.EnvOrDefault("SCHEDULE", "@hourly"),
		MaxConcurrentStations: concurrency,
		RequestsPerSecond:     rps,
		HTTPTimeout:           httpTimeout,
		BreakerTimeout:        breakerTimeout,
		WindDiscrepancyKnots:  discrepancy,
		CatalogCacheSize:      cacheSize,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.MesoWestToken == "" {
		return nil, errors.New("MESOWEST_TOKEN is required")
	}
	if len(cfg.Stations) == 0 {
		return nil, errors.New("STATIONS is required")
	}
	switch cfg.Sink {
	case SinkKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaObsTopic == "" || cfg.KafkaDailyTopic == "" {
			return nil, errors.New("KAFKA_OBS_TOPIC and KAFKA_DAILY_TOPIC are required")
		}
	case SinkSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("invalid SINK %q", cfg.Sink)
	}

	return cfg, nil
}

// StationID3 returns the three-letter identifier the bulletin service files a
// station under: the configured override, else the station id without its
// first letter.
func (c *Config) StationID3(stationID string) string {
	if id, ok := c.StationID3Overrides[strings.ToUpper(stationID)]; ok {
		return id
	}
	if len(stationID) < 2 {
		return strings.ToUpper(stationID)
	}
	return strings.ToUpper(stationID[1:])
}

// GHCNStationID returns the climate archive id for a station, if configured.
func (c *Config) GHCNStationID(stationID string) (string, bool) {
	id, ok := c.GHCNStationIDs[strings.ToUpper(stationID)]
	return id, ok
}

func parseStations(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// parseMapping reads a "KEY:VALUE,KEY:VALUE" variable. Keys are upper-cased.
func parseMapping(key string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid %s entry %q", key, pair)
		}
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}
