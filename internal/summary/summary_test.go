package summary

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/schema"
)

type fakeReader struct {
	// rows keyed by formatted date
	rows map[string]map[schema.ColumnKey]string
}

func (f *fakeReader) ReadMetrics(ctx context.Context, t *schema.Tenant, date time.Time, keys []schema.ColumnKey) (map[schema.ColumnKey]string, error) {
	row, ok := f.rows[date.Format(schema.DateLayout)]
	if !ok {
		return nil, fmt.Errorf("row: %w", model.ErrNotFound)
	}
	return row, nil
}

func testTenant(t *testing.T) *schema.Tenant {
	tn, err := schema.NewTenant("token", "sheet", "", schema.VariantTemplate, nil)
	require.NoError(t, err)
	return tn
}

func TestDaily(t *testing.T) {
	reader := &fakeReader{rows: map[string]map[schema.ColumnKey]string{
		"Jul 16": {
			schema.ColCalories: "1850",
			schema.ColProtein:  "120.5",
			schema.ColSteps:    "11200",
			schema.ColFiber:    "",
			schema.ColFat:      "n/a",
		},
	}}
	s := New(reader, zerolog.Nop())

	out, err := s.Daily(context.Background(), testTenant(t), time.Date(2025, time.July, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, out, "Jul 16")
	assert.Contains(t, out, "Calories: 1850.0 kcal")
	assert.Contains(t, out, "Protein: 120.5 g")
	assert.Contains(t, out, "Steps: 11200.0")
	assert.NotContains(t, out, "Fiber", "blank cells are omitted")
	assert.NotContains(t, out, "Fat", "non-numeric cells are omitted")
}

func TestDaily_MissingRow(t *testing.T) {
	s := New(&fakeReader{rows: map[string]map[schema.ColumnKey]string{}}, zerolog.Nop())
	_, err := s.Daily(context.Background(), testTenant(t), time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWeekly_AveragesOverPresentDaysOnly(t *testing.T) {
	reader := &fakeReader{rows: map[string]map[schema.ColumnKey]string{
		"Jul 14": {schema.ColCalories: "2000", schema.ColProtein: "100"},
		"Jul 15": {schema.ColCalories: "1800"},
		"Jul 16": {schema.ColCalories: "2200", schema.ColProtein: "140"},
	}}
	s := New(reader, zerolog.Nop())

	out, err := s.Weekly(context.Background(), testTenant(t), time.Date(2025, time.July, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, out, "Jul 10 to Jul 16")
	assert.Contains(t, out, "Calories: 2000.0 kcal (3 day(s))")
	assert.Contains(t, out, "Protein: 120.0 g (2 day(s))", "days without the metric are excluded from its average")
}

func TestWeekly_NothingLogged(t *testing.T) {
	s := New(&fakeReader{rows: map[string]map[schema.ColumnKey]string{}}, zerolog.Nop())
	out, err := s.Weekly(context.Background(), testTenant(t), time.Now())
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing logged")
}
