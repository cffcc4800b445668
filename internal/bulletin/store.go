package bulletin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

var fileMonthRe = regexp.MustCompile(`(\d{4})(\d{2})`)

// Store reads cached bulletins.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a reader for <root>/site_data.
func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{dir: filepath.Join(root, SiteDataDir), logger: logger}
}

// Files lists a station's cached bulletin files in name order.
func (s *Store) Files(stationID string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, strings.ToUpper(stationID)+"_*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("list bulletins: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadWind parses every cached bulletin for a station and returns daily wind
// in knots. The month comes from the file name. No files yields an empty map.
func (s *Store) LoadWind(stationID string) (map[domain.Date]float64, error) {
	files, err := s.Files(stationID)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Date]float64)
	for _, path := range files {
		year, month, err := FileMonth(path)
		if err != nil {
			s.logger.Warn("skipping bulletin with unexpected name", "file", path, "error", err)
			continue
		}
		wind, err := parseFile(path, year, month)
		if err != nil {
			return nil, err
		}
		for d, v := range wind {
			out[d] = v
		}
	}
	return out, nil
}

// FileMonth reads the YYYYMM month from a cached bulletin's file name.
func FileMonth(path string) (int, time.Month, error) {
	m := fileMonthRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, 0, fmt.Errorf("no YYYYMM in %q", filepath.Base(path))
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("bad month %d in %q", month, filepath.Base(path))
	}
	return year, time.Month(month), nil
}

// ParseFile reads one cached bulletin, taking its month from the file name.
func ParseFile(path string) (map[domain.Date]float64, error) {
	year, month, err := FileMonth(path)
	if err != nil {
		return nil, err
	}
	return parseFile(path, year, month)
}

func parseFile(path string, year int, month time.Month) (map[domain.Date]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bulletin: %w", err)
	}
	defer f.Close()

	wind, err := domain.ParseBulletin(f, year, month)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return wind, nil
}
