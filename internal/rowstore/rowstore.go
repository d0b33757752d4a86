// Package rowstore maps logical calendar days onto spreadsheet rows under
// a tenant's column schema. Rows are keyed by a short formatted date
// string and kept in ascending date order.
package rowstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/schema"
	"github.com/sheetfit/trackerbot/internal/sheets"
)

// Backend is the spreadsheet surface the store needs. Implemented by
// sheets.Client; faked in tests. All row/column addressing is 1-based.
type Backend interface {
	ReadColumn(ctx context.Context, sheetID, worksheet string, col, fromRow int) ([]string, error)
	ReadRowRange(ctx context.Context, sheetID, worksheet string, row, startCol, endCol int) ([]string, error)
	UpdateCells(ctx context.Context, sheetID, worksheet string, updates []sheets.CellUpdate) error
	InsertRow(ctx context.Context, sheetID, worksheet string, row int) error
}

// Store finds, creates, and updates date rows.
type Store struct {
	backend Backend
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per (tenant, date) accumulate guard
}

// New creates a Store over the given backend.
func New(backend Backend, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log.With().Str("component", "rowstore").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// FormatDate renders a date the way the sheet's date column stores it.
func FormatDate(d time.Time) string {
	return d.Format(schema.DateLayout)
}

// parseSheetDate parses a date-column cell. The sheet stores no year, so
// comparisons are by month and day only.
func parseSheetDate(s string) (time.Month, int, bool) {
	t, err := time.Parse(schema.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, false
	}
	return t.Month(), t.Day(), true
}

// dateBefore reports whether (m1, d1) sorts before (m2, d2).
func dateBefore(m1 time.Month, d1 int, m2 time.Month, d2 int) bool {
	if m1 != m2 {
		return m1 < m2
	}
	return d1 < d2
}

// FindRow returns the 0-based row index holding date, scanning the date
// column from the tenant's first data row. model.ErrNotFound when absent.
func (s *Store) FindRow(ctx context.Context, t *schema.Tenant, date time.Time) (int, error) {
	dateCol, err := t.Column(schema.ColDate)
	if err != nil {
		return 0, err
	}
	values, err := s.backend.ReadColumn(ctx, t.SheetID, t.Worksheet, dateCol+1, t.FirstDataRow+1)
	if err != nil {
		return 0, fmt.Errorf("scan date column: %w", err)
	}
	want := FormatDate(date)
	for i, v := range values {
		if strings.TrimSpace(v) == want {
			return t.FirstDataRow + i, nil
		}
	}
	return 0, fmt.Errorf("row for %s: %w", want, model.ErrNotFound)
}

// EnsureRow finds or creates the row for date, returning its 0-based
// index. A new row for an out-of-order date is inserted at its
// chronological position so the date column stays ascending.
func (s *Store) EnsureRow(ctx context.Context, t *schema.Tenant, date time.Time) (int, error) {
	idx, err := s.FindRow(ctx, t, date)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, err
	}

	dateCol, err := t.Column(schema.ColDate)
	if err != nil {
		return 0, err
	}
	values, err := s.backend.ReadColumn(ctx, t.SheetID, t.Worksheet, dateCol+1, t.FirstDataRow+1)
	if err != nil {
		return 0, fmt.Errorf("scan date column for insert: %w", err)
	}

	targetM, targetD := date.Month(), date.Day()
	insertAt := t.FirstDataRow + len(values) // default: append after last row
	for i, v := range values {
		m, d, ok := parseSheetDate(v)
		if !ok {
			if strings.TrimSpace(v) != "" {
				s.log.Warn().Str("cell", v).Int("row", t.FirstDataRow+i+1).
					Msg("unparseable date cell skipped during insert scan")
			}
			continue
		}
		if dateBefore(targetM, targetD, m, d) {
			insertAt = t.FirstDataRow + i
			break
		}
	}

	if err := s.backend.InsertRow(ctx, t.SheetID, t.Worksheet, insertAt+1); err != nil {
		return 0, fmt.Errorf("insert date row: %w", err)
	}
	update := []sheets.CellUpdate{{Row: insertAt + 1, Col: dateCol + 1, Value: FormatDate(date)}}
	if err := s.backend.UpdateCells(ctx, t.SheetID, t.Worksheet, update); err != nil {
		// The empty row is harmless on its own, but note the partial write.
		s.log.Error().Err(err).Int("row", insertAt+1).
			Msg("row inserted but date cell write failed")
		return 0, fmt.Errorf("write date cell: %w", err)
	}
	s.log.Info().Str("date", FormatDate(date)).Int("row", insertAt+1).Msg("created date row")
	return insertAt, nil
}

// WriteMetrics ensures the date row and writes all given cells in one
// batch. Column indices outside the tenant's map are rejected before any
// I/O happens.
func (s *Store) WriteMetrics(ctx context.Context, t *schema.Tenant, date time.Time, updates map[int]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	for col := range updates {
		if !t.KnownColumn(col) {
			return model.NewSchemaError(strconv.Itoa(col), "column index not in tenant schema")
		}
	}

	rowIdx, err := s.EnsureRow(ctx, t, date)
	if err != nil {
		return err
	}
	batch := make([]sheets.CellUpdate, 0, len(updates))
	for col, val := range updates {
		batch = append(batch, sheets.CellUpdate{Row: rowIdx + 1, Col: col + 1, Value: val})
	}
	if err := s.backend.UpdateCells(ctx, t.SheetID, t.Worksheet, batch); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	s.log.Info().Str("date", FormatDate(date)).Int("cells", len(batch)).Msg("metrics written")
	return nil
}

// AccumulateNutrition adds the four macro deltas to the current cell
// values of the date row. Calories are deliberately never written: the
// sheet computes them from the macro columns. All-zero deltas are a
// no-op. A per-(tenant, date) mutex serializes the read-modify-write.
func (s *Store) AccumulateNutrition(ctx context.Context, t *schema.Tenant, date time.Time, proteinG, carbsG, fatG, fiberG float64) error {
	if proteinG == 0 && carbsG == 0 && fatG == 0 && fiberG == 0 {
		s.log.Info().Str("date", FormatDate(date)).Msg("no non-zero macro deltas, skipping write")
		return nil
	}

	cols := make([]int, 4)
	deltas := []float64{proteinG, carbsG, fatG, fiberG}
	for i, key := range []schema.ColumnKey{schema.ColProtein, schema.ColCarbs, schema.ColFat, schema.ColFiber} {
		idx, err := t.Column(key)
		if err != nil {
			return err
		}
		cols[i] = idx
	}

	lock := s.rowLock(t.Token, FormatDate(date))
	lock.Lock()
	defer lock.Unlock()

	rowIdx, err := s.EnsureRow(ctx, t, date)
	if err != nil {
		return err
	}

	minCol, maxCol := cols[0], cols[0]
	for _, c := range cols[1:] {
		if c < minCol {
			minCol = c
		}
		if c > maxCol {
			maxCol = c
		}
	}

	// One ranged read covering all four macro cells.
	existing, err := s.backend.ReadRowRange(ctx, t.SheetID, t.Worksheet, rowIdx+1, minCol+1, maxCol+1)
	if err != nil {
		return fmt.Errorf("read macro cells: %w", err)
	}

	batch := make([]sheets.CellUpdate, 0, 4)
	for i, col := range cols {
		cur := 0.0
		raw := ""
		if off := col - minCol; off >= 0 && off < len(existing) {
			raw = existing[off]
		}
		if v, ok := parseCellFloat(raw); ok {
			cur = v
		} else if strings.TrimSpace(raw) != "" {
			s.log.Warn().Str("cell_value", raw).Int("col", col).
				Str("date", FormatDate(date)).
				Msg("non-numeric macro cell treated as 0")
		}
		batch = append(batch, sheets.CellUpdate{Row: rowIdx + 1, Col: col + 1, Value: cur + deltas[i]})
	}

	if err := s.backend.UpdateCells(ctx, t.SheetID, t.Worksheet, batch); err != nil {
		return fmt.Errorf("write macro totals: %w", err)
	}
	s.log.Info().Str("date", FormatDate(date)).
		Float64("protein_g", proteinG).Float64("carbs_g", carbsG).
		Float64("fat_g", fatG).Float64("fiber_g", fiberG).
		Msg("nutrition accumulated")
	return nil
}

// ReadMetrics returns the raw cell values for the given logical columns
// on the date's row, as a single ranged read. model.ErrNotFound when the
// date has no row.
func (s *Store) ReadMetrics(ctx context.Context, t *schema.Tenant, date time.Time, keys []schema.ColumnKey) (map[schema.ColumnKey]string, error) {
	if len(keys) == 0 {
		return map[schema.ColumnKey]string{}, nil
	}
	cols := make(map[schema.ColumnKey]int, len(keys))
	minCol, maxCol := -1, -1
	for _, key := range keys {
		idx, err := t.Column(key)
		if err != nil {
			return nil, err
		}
		cols[key] = idx
		if minCol == -1 || idx < minCol {
			minCol = idx
		}
		if idx > maxCol {
			maxCol = idx
		}
	}

	rowIdx, err := s.FindRow(ctx, t, date)
	if err != nil {
		return nil, err
	}
	values, err := s.backend.ReadRowRange(ctx, t.SheetID, t.Worksheet, rowIdx+1, minCol+1, maxCol+1)
	if err != nil {
		return nil, fmt.Errorf("read metric cells: %w", err)
	}
	out := make(map[schema.ColumnKey]string, len(keys))
	for key, idx := range cols {
		if off := idx - minCol; off >= 0 && off < len(values) {
			out[key] = values[off]
		}
	}
	return out, nil
}

func (s *Store) rowLock(token, date string) *sync.Mutex {
	key := token + "|" + date
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.locks[key] = m
	return m
}

// parseCellFloat parses a numeric cell, tolerating thousands separators.
func parseCellFloat(s string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
