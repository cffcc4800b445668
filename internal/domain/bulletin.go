package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// bulletinHeaderMarkers separate the product header from the body for the
// mainland, Hawaii and Alaska regions, tried in that order.
var bulletinHeaderMarkers = []string{"CXUS", "CXHW", "CXAK"}

const (
	bulletinFooterMarker  = "[REMARKS]"
	bulletinSectionMarker = "000"
)

var (
	bulletinYearRe       = regexp.MustCompile(`YEAR:\s*(\d{4})`)
	bulletinMonthNameRe  = regexp.MustCompile(`MONTH:\s*([A-Za-z]{3,9})`)
	bulletinMonthDigitRe = regexp.MustCompile(`MONTH:\s*(\d{1,2})`)
)

var (
	// ErrBulletinHeader is returned when no region header marker is present.
	ErrBulletinHeader = errors.New("bulletin header not found")

	// ErrBulletinDate is returned when the bulletin month or year cannot be read.
	ErrBulletinDate = errors.New("bulletin month/year not found")
)

// Bulletin is the body of a monthly climate bulletin and the month it covers.
type Bulletin struct {
	Year  int
	Month time.Month
	Body  string
}

// ExtractBulletin strips the product header and remarks footer from raw
// bulletin text and reads the month it covers.
func ExtractBulletin(text string) (Bulletin, error) {
	body, ok := stripHeader(text)
	if !ok {
		return Bulletin{}, ErrBulletinHeader
	}
	if lineCount(body) <= 2 {
		if section, ok := nthSection(text, bulletinSectionMarker, 2); ok {
			body = section
		}
	}
	body, _, _ = strings.Cut(body, bulletinFooterMarker)

	year, month, err := bulletinMonth(body)
	if err != nil {
		return Bulletin{}, err
	}
	return Bulletin{Year: year, Month: month, Body: body}, nil
}

// FileMonth formats the bulletin's month as YYYYMM.
func (b Bulletin) FileMonth() string {
	return fmt.Sprintf("%04d%02d", b.Year, int(b.Month))
}

func stripHeader(text string) (string, bool) {
	for _, marker := range bulletinHeaderMarkers {
		if section, ok := nthSection(text, marker, 1); ok {
			return section, true
		}
	}
	return "", false
}

// lineCount counts lines the way a line splitter does: a trailing newline
// does not start another line.
func lineCount(s string) int {
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return strings.Count(s, "\n") + 1
}

// nthSection returns the text between the nth and (n+1)th occurrence of sep,
// or to the end of text when there is no further occurrence.
func nthSection(text, sep string, n int) (string, bool) {
	parts := strings.Split(text, sep)
	if len(parts) <= n {
		return "", false
	}
	return parts[n], true
}

// BulletinMonth reads the YEAR and MONTH fields of a bulletin body.
func BulletinMonth(body string) (int, time.Month, error) {
	return bulletinMonth(body)
}

func bulletinMonth(body string) (int, time.Month, error) {
	m := bulletinYearRe.FindStringSubmatch(body)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: no YEAR field", ErrBulletinDate)
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBulletinDate, err)
	}

	if m := bulletinMonthNameRe.FindStringSubmatch(body); m != nil {
		name := strings.TrimSpace(m[1])
		for _, layout := range []string{"January", "Jan"} {
			if t, err := time.Parse(layout, name); err == nil {
				return year, t.Month(), nil
			}
		}
	}
	if m := bulletinMonthDigitRe.FindStringSubmatch(body); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= 12 {
			return year, time.Month(n), nil
		}
	}
	return 0, 0, fmt.Errorf("%w: no MONTH field", ErrBulletinDate)
}
