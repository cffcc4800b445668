package bulletin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService serves bulletin text by version.
type fakeService struct {
	versions map[int]string
	errs     map[int]error
	calls    []int
}

func (f *fakeService) FetchBulletin(_ context.Context, _ string, version int) (string, error) {
	f.calls = append(f.calls, version)
	if err := f.errs[version]; err != nil {
		return "", err
	}
	text, ok := f.versions[version]
	if !ok {
		return "", domain.ErrBulletinNotFound
	}
	return text, nil
}

// product builds bulletin text for month with one daily row per day up to
// days, each with the given max 2-minute wind in mph.
func product(month string, year, days, windMph int) string {
	var b strings.Builder
	b.WriteString("\n000\nCXUS56 KSEW 010830\nCF6SEA\n")
	b.WriteString("PRELIMINARY LOCAL CLIMATOLOGICAL DATA (WS FORM: F-6)\n\n")
	fmt.Fprintf(&b, "                                          MONTH:     %s\n", month)
	fmt.Fprintf(&b, "                                          YEAR:      %d\n", year)
	b.WriteString("DY MAX MIN AVG DEP HDD CDD WTR  SNW DPTH AVG MX 2MIN\n")
	for d := 1; d <= days; d++ {
		fmt.Fprintf(&b, "%2d  47  38  43   1  22   0 0.14  0.0    0  9.0 %2d 200   M    M   9 1     25 200\n", d, windMph)
	}
	b.WriteString("[REMARKS]\n#FINAL#\n")
	return b.String()
}
