// Package summary reads back logged rows and renders daily and weekly
// digests. It never writes.
package summary

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/schema"
)

// Reader is the slice of the row store the summarizer needs.
type Reader interface {
	ReadMetrics(ctx context.Context, t *schema.Tenant, date time.Time, keys []schema.ColumnKey) (map[schema.ColumnKey]string, error)
}

var summaryKeys = []schema.ColumnKey{
	schema.ColCalories, schema.ColProtein, schema.ColCarbs,
	schema.ColFat, schema.ColFiber, schema.ColSteps, schema.ColWeight,
}

// Service renders summaries over stored rows.
type Service struct {
	rows Reader
	log  zerolog.Logger
}

func New(rows Reader, log zerolog.Logger) *Service {
	return &Service{
		rows: rows,
		log:  log.With().Str("component", "summary").Logger(),
	}
}

// day holds the numeric metrics of one row. Absent or non-numeric cells
// are left out of the map entirely.
type day struct {
	values map[schema.ColumnKey]float64
}

func (s *Service) readDay(ctx context.Context, t *schema.Tenant, date time.Time) (*day, error) {
	cells, err := s.rows.ReadMetrics(ctx, t, date, summaryKeys)
	if err != nil {
		return nil, err
	}
	d := &day{values: make(map[schema.ColumnKey]float64, len(cells))}
	for key, raw := range cells {
		raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		d.values[key] = v
	}
	return d, nil
}

// Daily renders a one-day digest for date.
func (s *Service) Daily(ctx context.Context, t *schema.Tenant, date time.Time) (string, error) {
	d, err := s.readDay(ctx, t, date)
	if err != nil {
		return "", fmt.Errorf("daily summary: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Summary for %s\n", date.Format(schema.DateLayout))
	writeLine(&b, d, schema.ColCalories, "Calories", "kcal")
	writeLine(&b, d, schema.ColProtein, "Protein", "g")
	writeLine(&b, d, schema.ColCarbs, "Carbs", "g")
	writeLine(&b, d, schema.ColFat, "Fat", "g")
	writeLine(&b, d, schema.ColFiber, "Fiber", "g")
	writeLine(&b, d, schema.ColSteps, "Steps", "")
	writeLine(&b, d, schema.ColWeight, "Weight", "")
	if len(d.values) == 0 {
		b.WriteString("Nothing logged yet.\n")
	}
	return b.String(), nil
}

// Weekly renders averages over the seven days ending at date. Days with
// no row, or with a blank cell for a given metric, are excluded from
// that metric's average.
func (s *Service) Weekly(ctx context.Context, t *schema.Tenant, date time.Time) (string, error) {
	sums := make(map[schema.ColumnKey]float64)
	counts := make(map[schema.ColumnKey]int)

	for i := 6; i >= 0; i-- {
		day := date.AddDate(0, 0, -i)
		d, err := s.readDay(ctx, t, day)
		if err != nil {
			s.log.Debug().Err(err).Str("date", day.Format(schema.DateLayout)).Msg("no row for day")
			continue
		}
		for key, v := range d.values {
			sums[key] += v
			counts[key]++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📈 Weekly averages, %s to %s\n",
		date.AddDate(0, 0, -6).Format(schema.DateLayout), date.Format(schema.DateLayout))
	writeAvg(&b, sums, counts, schema.ColCalories, "Calories", "kcal")
	writeAvg(&b, sums, counts, schema.ColProtein, "Protein", "g")
	writeAvg(&b, sums, counts, schema.ColCarbs, "Carbs", "g")
	writeAvg(&b, sums, counts, schema.ColFat, "Fat", "g")
	writeAvg(&b, sums, counts, schema.ColFiber, "Fiber", "g")
	writeAvg(&b, sums, counts, schema.ColSteps, "Steps", "")
	writeAvg(&b, sums, counts, schema.ColWeight, "Weight", "")
	if len(counts) == 0 {
		b.WriteString("Nothing logged in the last 7 days.\n")
	}
	return b.String(), nil
}

func writeLine(b *strings.Builder, d *day, key schema.ColumnKey, label, unit string) {
	v, ok := d.values[key]
	if !ok {
		return
	}
	if unit != "" {
		fmt.Fprintf(b, "%s: %.1f %s\n", label, v, unit)
	} else {
		fmt.Fprintf(b, "%s: %.1f\n", label, v)
	}
}

func writeAvg(b *strings.Builder, sums map[schema.ColumnKey]float64, counts map[schema.ColumnKey]int, key schema.ColumnKey, label, unit string) {
	n := counts[key]
	if n == 0 {
		return
	}
	avg := sums[key] / float64(n)
	if unit != "" {
		fmt.Fprintf(b, "%s: %.1f %s (%d day(s))\n", label, avg, unit, n)
	} else {
		fmt.Fprintf(b, "%s: %.1f (%d day(s))\n", label, avg, n)
	}
}
