// Command validate checks the integrity of the cached climate bulletins under
// a data root: file naming, agreement between the file name and the
// bulletin's own MONTH/YEAR fields, and the parsed daily wind rows.
//
// Usage:
//
//	go run ./cmd/validate -data-root /var/lib/wx [-station KSEA]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/wx-verification-etl/internal/bulletin"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

// maxPlausibleKnots bounds a daily max 2-minute wind.
const maxPlausibleKnots = 150

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// cachedFile is one bulletin file read from disk.
type cachedFile struct {
	path    string
	station string
	year    int
	month   time.Month
	nameErr error
	body    string
}

func main() {
	dataRoot := flag.String("data-root", ".", "data root holding site_data/")
	station := flag.String("station", "", "only validate this station's bulletins")
	flag.Parse()

	os.Exit(run(os.Stdout, *dataRoot, *station))
}

func run(w io.Writer, dataRoot, station string) int {
	dir := filepath.Join(dataRoot, bulletin.SiteDataDir)
	fmt.Fprintf(w, "=== Bulletin Cache Validation (%s) ===\n\n", dir)

	files, err := loadFiles(dir, station)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No cached bulletins found.")
		return 0
	}

	phases := []*phase{
		validateNames(files),
		validateHeaders(files),
		validateRows(files),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}
	fmt.Fprintf(w, "\nFiles: %d across %d stations\n", len(files), countStations(files))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func loadFiles(dir, station string) ([]cachedFile, error) {
	pattern := "*.cli"
	if station != "" {
		pattern = strings.ToUpper(station) + "_*.cli"
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list bulletins: %w", err)
	}
	sort.Strings(paths)

	files := make([]cachedFile, 0, len(paths))
	for _, path := range paths {
		if strings.HasPrefix(filepath.Base(path), bulletin.TempPrefix) {
			continue
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		f := cachedFile{path: path, body: string(body)}
		f.station, _, _ = strings.Cut(filepath.Base(path), "_")
		f.year, f.month, f.nameErr = bulletin.FileMonth(path)
		files = append(files, f)
	}
	return files, nil
}

func countStations(files []cachedFile) int {
	seen := make(map[string]bool)
	for _, f := range files {
		seen[f.station] = true
	}
	return len(seen)
}

func validateNames(files []cachedFile) *phase {
	p := &phase{name: "File naming (STID_YYYYMM.cli)"}
	for _, f := range files {
		if f.nameErr != nil {
			p.errorf("%s: %v", filepath.Base(f.path), f.nameErr)
			continue
		}
		if f.station == "" || f.station != strings.ToUpper(f.station) {
			p.errorf("%s: station id must be upper case", filepath.Base(f.path))
		}
	}
	return p
}

func validateHeaders(files []cachedFile) *phase {
	p := &phase{name: "Header month matches file name"}
	for _, f := range files {
		if f.nameErr != nil {
			continue
		}
		year, month, err := domain.BulletinMonth(f.body)
		if err != nil {
			p.errorf("%s: %v", filepath.Base(f.path), err)
			continue
		}
		if year != f.year || month != f.month {
			p.errorf("%s: body covers %04d-%02d", filepath.Base(f.path), year, int(month))
		}
	}
	return p
}

func validateRows(files []cachedFile) *phase {
	p := &phase{name: "Daily wind rows"}
	for _, f := range files {
		if f.nameErr != nil {
			continue
		}
		wind, err := domain.ParseBulletin(strings.NewReader(f.body), f.year, f.month)
		if err != nil {
			p.errorf("%s: %v", filepath.Base(f.path), err)
			continue
		}
		if len(wind) == 0 {
			p.errorf("%s: no daily rows", filepath.Base(f.path))
			continue
		}
		for _, d := range domain.SortedDates(wind) {
			if v := wind[d]; v < 0 || v > maxPlausibleKnots {
				p.errorf("%s: %s wind %.1f kt out of range", filepath.Base(f.path), d, v)
			}
		}
	}
	return p
}
