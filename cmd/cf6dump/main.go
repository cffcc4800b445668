// Command cf6dump prints the daily wind parsed from cached climate bulletins
// as JSON, one array of {date, knots, source} objects in date order.
//
// Usage:
//
//	go run ./cmd/cf6dump -station KSEA [-data-root /var/lib/wx]
//	go run ./cmd/cf6dump -file site_data/KSEA_201801.cli
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/couchcryptid/wx-verification-etl/internal/bulletin"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

func main() {
	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(w io.Writer) error {
	station := flag.String("station", "", "station id whose cached bulletins to read")
	file := flag.String("file", "", "single cached bulletin file to read")
	dataRoot := flag.String("data-root", ".", "data root holding site_data/")
	flag.Parse()

	if (*station == "") == (*file == "") {
		flag.Usage()
		return fmt.Errorf("exactly one of -station or -file is required")
	}

	var (
		wind map[domain.Date]float64
		err  error
	)
	if *file != "" {
		wind, err = bulletin.ParseFile(*file)
	} else {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		wind, err = bulletin.NewStore(*dataRoot, logger).LoadWind(*station)
	}
	if err != nil {
		return err
	}

	return writeWind(w, wind)
}

func writeWind(w io.Writer, wind map[domain.Date]float64) error {
	out := make([]domain.ClimateWindObservation, 0, len(wind))
	for _, d := range domain.SortedDates(wind) {
		out = append(out, domain.ClimateWindObservation{
			Date:   d,
			Knots:  domain.Round(wind[d], 1),
			Source: domain.WindSourceBulletin,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
