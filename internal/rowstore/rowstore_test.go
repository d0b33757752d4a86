package rowstore

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
	"github.com/sheetfit/trackerbot/internal/sheets"
)

// fakeBackend is an in-memory sheet. Rows and columns are 1-based like
// the real backend; cell reads mimic the API by trimming trailing blanks.
type fakeBackend struct {
	rows  [][]string
	calls int
}

func newFakeBackend(rows ...[]string) *fakeBackend {
	return &fakeBackend{rows: rows}
}

func (f *fakeBackend) cell(row, col int) string {
	if row-1 >= len(f.rows) {
		return ""
	}
	r := f.rows[row-1]
	if col-1 >= len(r) {
		return ""
	}
	return r[col-1]
}

func (f *fakeBackend) setCell(row, col int, val string) {
	for len(f.rows) < row {
		f.rows = append(f.rows, nil)
	}
	r := f.rows[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = val
	f.rows[row-1] = r
}

func (f *fakeBackend) ReadColumn(ctx context.Context, sheetID, worksheet string, col, fromRow int) ([]string, error) {
	f.calls++
	var out []string
	for row := fromRow; row <= len(f.rows); row++ {
		out = append(out, f.cell(row, col))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeBackend) ReadRowRange(ctx context.Context, sheetID, worksheet string, row, startCol, endCol int) ([]string, error) {
	f.calls++
	out := make([]string, 0, endCol-startCol+1)
	for col := startCol; col <= endCol; col++ {
		out = append(out, f.cell(row, col))
	}
	return out, nil
}

func (f *fakeBackend) UpdateCells(ctx context.Context, sheetID, worksheet string, updates []sheets.CellUpdate) error {
	f.calls++
	for _, u := range updates {
		f.setCell(u.Row, u.Col, fmt.Sprintf("%v", u.Value))
	}
	return nil
}

func (f *fakeBackend) InsertRow(ctx context.Context, sheetID, worksheet string, row int) error {
	f.calls++
	rest := append([][]string{nil}, f.rows[row-1:]...)
	f.rows = append(f.rows[:row-1], rest...)
	return nil
}

func templateTenant(t *testing.T) *schema.Tenant {
	tn, err := schema.NewTenant("token", "sheet", "Sheet1", schema.VariantTemplate, nil)
	require.NoError(t, err)
	return tn
}

func mustCol(t *testing.T, tn *schema.Tenant, key schema.ColumnKey) int {
	idx, err := tn.Column(key)
	require.NoError(t, err)
	return idx
}

func day(t *testing.T, s string) time.Time {
	d, err := time.Parse("Jan 2 2006", s+" 2025")
	require.NoError(t, err)
	return d
}

func TestFindRow(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 14"},
		[]string{"Jul 16"},
	)
	store := New(fb, zerolog.Nop())

	idx, err := store.FindRow(context.Background(), tn, day(t, "Jul 16"))
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = store.FindRow(context.Background(), tn, day(t, "Jul 15"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEnsureRow_AppendsLatestDate(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 14"},
		[]string{"Jul 15"},
	)
	store := New(fb, zerolog.Nop())

	idx, err := store.EnsureRow(context.Background(), tn, day(t, "Jul 16"))
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	assert.Equal(t, "Jul 16", fb.cell(4, 1))
}

func TestEnsureRow_InsertsInChronologicalOrder(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 14"},
		[]string{"Jul 18"},
	)
	store := New(fb, zerolog.Nop())

	idx, err := store.EnsureRow(context.Background(), tn, day(t, "Jul 16"))
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	// The date column stays ascending.
	assert.Equal(t, "Jul 14", fb.cell(2, 1))
	assert.Equal(t, "Jul 16", fb.cell(3, 1))
	assert.Equal(t, "Jul 18", fb.cell(4, 1))
}

func TestEnsureRow_OrdersAcrossMonths(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jun 30"},
		[]string{"Jul 2"},
	)
	store := New(fb, zerolog.Nop())

	idx, err := store.EnsureRow(context.Background(), tn, day(t, "Jul 1"))
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "Jul 1", fb.cell(3, 1))
	assert.Equal(t, "Jul 2", fb.cell(4, 1))
}

func TestEnsureRow_ExistingRowIsReused(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 16"},
	)
	store := New(fb, zerolog.Nop())

	idx, err := store.EnsureRow(context.Background(), tn, day(t, "Jul 16"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Len(t, fb.rows, 2)
}

func TestWriteMetrics_RejectsUnknownColumnBeforeIO(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend([]string{"Date"})
	store := New(fb, zerolog.Nop())

	err := store.WriteMetrics(context.Background(), tn, day(t, "Jul 16"), map[int]interface{}{
		99: 1.0,
	})
	require.Error(t, err)
	assert.True(t, model.IsSchemaError(err))
	assert.Zero(t, fb.calls, "no backend call may happen for a rejected write")
}

func TestWriteMetrics_WritesBatch(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 16"},
	)
	store := New(fb, zerolog.Nop())

	steps := mustCol(t, tn, schema.ColSteps)
	weight := mustCol(t, tn, schema.ColWeight)
	err := store.WriteMetrics(context.Background(), tn, day(t, "Jul 16"), map[int]interface{}{
		steps:  11200.0,
		weight: 82.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "11200", fb.cell(2, steps+1))
	assert.Equal(t, "82.4", fb.cell(2, weight+1))
}

func TestAccumulateNutrition_AddsToExistingTotals(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 16"},
	)
	protein := mustCol(t, tn, schema.ColProtein)
	carbs := mustCol(t, tn, schema.ColCarbs)
	fat := mustCol(t, tn, schema.ColFat)
	fiber := mustCol(t, tn, schema.ColFiber)
	fb.setCell(2, protein+1, "30")
	fb.setCell(2, carbs+1, "100")

	store := New(fb, zerolog.Nop())
	err := store.AccumulateNutrition(context.Background(), tn, day(t, "Jul 16"), 46.5, 20, 10, 5)
	require.NoError(t, err)

	assert.Equal(t, "76.5", fb.cell(2, protein+1))
	assert.Equal(t, "120", fb.cell(2, carbs+1))
	assert.Equal(t, "10", fb.cell(2, fat+1))
	assert.Equal(t, "5", fb.cell(2, fiber+1))
}

func TestAccumulateNutrition_NeverTouchesCalories(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 16"},
	)
	calories := mustCol(t, tn, schema.ColCalories)
	fb.setCell(2, calories+1, "=SUM(formula)")

	store := New(fb, zerolog.Nop())
	err := store.AccumulateNutrition(context.Background(), tn, day(t, "Jul 16"), 10, 10, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, "=SUM(formula)", fb.cell(2, calories+1))
}

func TestAccumulateNutrition_ZeroDeltasAreNoOp(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend([]string{"Date"})
	store := New(fb, zerolog.Nop())

	err := store.AccumulateNutrition(context.Background(), tn, day(t, "Jul 16"), 0, 0, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, fb.calls)
	assert.Len(t, fb.rows, 1, "no row may be created for a zero delta")
}

func TestAccumulateNutrition_NonNumericCellTreatedAsZero(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 16"},
	)
	protein := mustCol(t, tn, schema.ColProtein)
	fb.setCell(2, protein+1, "n/a")

	store := New(fb, zerolog.Nop())
	err := store.AccumulateNutrition(context.Background(), tn, day(t, "Jul 16"), 25, 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "25", fb.cell(2, protein+1))
}

func TestAccumulateNutrition_CreatesMissingRow(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 14"},
	)
	store := New(fb, zerolog.Nop())

	err := store.AccumulateNutrition(context.Background(), tn, day(t, "Jul 16"), 20, 30, 10, 3)
	require.NoError(t, err)

	assert.Equal(t, "Jul 16", fb.cell(3, 1))
	protein := mustCol(t, tn, schema.ColProtein)
	assert.Equal(t, "20", fb.cell(3, protein+1))
}

func TestReadMetrics(t *testing.T) {
	tn := templateTenant(t)
	fb := newFakeBackend(
		[]string{"Date"},
		[]string{"Jul 16"},
	)
	fb.setCell(2, mustCol(t, tn, schema.ColCalories)+1, "1850")
	fb.setCell(2, mustCol(t, tn, schema.ColProtein)+1, "120")

	store := New(fb, zerolog.Nop())
	out, err := store.ReadMetrics(context.Background(), tn, day(t, "Jul 16"),
		[]schema.ColumnKey{schema.ColCalories, schema.ColProtein, schema.ColFiber})
	require.NoError(t, err)
	assert.Equal(t, "1850", out[schema.ColCalories])
	assert.Equal(t, "120", out[schema.ColProtein])
	assert.Equal(t, "", out[schema.ColFiber])

	_, err = store.ReadMetrics(context.Background(), tn, day(t, "Jul 20"),
		[]schema.ColumnKey{schema.ColCalories})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
