// Package sheets wraps the Google Sheets v4 API behind the small
// row-oriented surface the row store needs: ranged reads, batched cell
// writes, and row insertion.
package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"
)

// CellUpdate addresses one cell write by 1-based row and column.
type CellUpdate struct {
	Row   int
	Col   int
	Value interface{}
}

// Client is a process-wide Sheets API client shared by all tenants.
// Construct once via New and inject; it is safe for concurrent use.
type Client struct {
	svc *sheetsapi.Service
	log zerolog.Logger

	mu   sync.Mutex
	gids map[string]int64 // "<sheetID>/<worksheet>" -> sheet gid
}

// New builds a Client authenticated with the given service account key.
func New(ctx context.Context, serviceAccountJSON string, log zerolog.Logger) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:  svc,
		log:  log.With().Str("component", "sheets").Logger(),
		gids: make(map[string]int64),
	}, nil
}

// ReadColumn returns the values of one column from fromRow (1-based) down
// to the last populated row. Blank cells inside the range come back as "".
func (c *Client) ReadColumn(ctx context.Context, sheetID, worksheet string, col, fromRow int) ([]string, error) {
	rng := openColumnRef(worksheet, fromRow, col)
	resp, err := c.svc.Spreadsheets.Values.Get(sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read column %s: %w", rng, err)
	}
	out := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			out[i] = fmt.Sprint(row[0])
		}
	}
	return out, nil
}

// ReadRowRange returns the cells of one row between startCol and endCol
// (1-based, inclusive), unformatted. The result always has exactly
// endCol-startCol+1 entries; trailing blanks are padded as "".
func (c *Client) ReadRowRange(ctx context.Context, sheetID, worksheet string, row, startCol, endCol int) ([]string, error) {
	if startCol > endCol {
		return nil, fmt.Errorf("invalid column range %d..%d", startCol, endCol)
	}
	rng := rangeRef(worksheet, row, startCol, row, endCol)
	resp, err := c.svc.Spreadsheets.Values.Get(sheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", rng, err)
	}
	out := make([]string, endCol-startCol+1)
	if len(resp.Values) > 0 {
		for i, v := range resp.Values[0] {
			if i < len(out) {
				out[i] = fmt.Sprint(v)
			}
		}
	}
	return out, nil
}

// UpdateCells writes all given cells in a single batched request.
func (c *Client) UpdateCells(ctx context.Context, sheetID, worksheet string, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	data := make([]*sheetsapi.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheetsapi.ValueRange{
			Range:  fmt.Sprintf("%s!%s", quoteWorksheet(worksheet), CellRef(u.Row, u.Col)),
			Values: [][]interface{}{{u.Value}},
		})
	}
	req := &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(sheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("batch update %d cells: %w", len(updates), err)
	}
	return nil
}

// InsertRow inserts one empty row before the given 1-based row index.
func (c *Client) InsertRow(ctx context.Context, sheetID, worksheet string, row int) error {
	gid, err := c.sheetGID(ctx, sheetID, worksheet)
	if err != nil {
		return err
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			InsertDimension: &sheetsapi.InsertDimensionRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    gid,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
				InheritFromBefore: false,
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(sheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("insert row at %d: %w", row, err)
	}
	return nil
}

// Ping verifies the spreadsheet is reachable with the current credentials.
func (c *Client) Ping(ctx context.Context, sheetID string) error {
	_, err := c.svc.Spreadsheets.Get(sheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets ping: %w", err)
	}
	return nil
}

// sheetGID resolves a worksheet title to its numeric sheet ID, cached for
// the process lifetime since worksheets are not renamed while running.
func (c *Client) sheetGID(ctx context.Context, sheetID, worksheet string) (int64, error) {
	key := sheetID + "/" + worksheet
	c.mu.Lock()
	gid, ok := c.gids[key]
	c.mu.Unlock()
	if ok {
		return gid, nil
	}

	meta, err := c.svc.Spreadsheets.Get(sheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("resolve worksheet %q: %w", worksheet, err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == worksheet {
			c.mu.Lock()
			c.gids[key] = s.Properties.SheetId
			c.mu.Unlock()
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("worksheet %q not found in spreadsheet %s", worksheet, sheetID)
}
