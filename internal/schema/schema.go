// Package schema holds the per-tenant spreadsheet layout: which logical
// metric lives in which column, and where dated rows begin. Schemas are
// resolved once at config load and are immutable afterwards.
package schema

import (
	"fmt"

	"github.com/sheetfit/trackerbot/internal/model"
)

// ColumnKey is a logical column name used by bot logic. The physical
// index it maps to depends on the tenant's schema variant.
type ColumnKey string

const (
	ColDate         ColumnKey = "DATE_COL_IDX"
	ColWeight       ColumnKey = "WEIGHT_COL_IDX"
	ColWeightTime   ColumnKey = "WEIGHT_TIME_COL_IDX"
	ColSleepHours   ColumnKey = "SLEEP_HOURS_COL_IDX"
	ColSleepQuality ColumnKey = "SLEEP_QUALITY_COL_IDX"
	ColSteps        ColumnKey = "STEPS_COL_IDX"
	ColCardio       ColumnKey = "CARDIO_COL_IDX"
	ColTraining     ColumnKey = "TRAINING_COL_IDX"
	ColEnergy       ColumnKey = "ENERGY_COL_IDX"
	ColMood         ColumnKey = "MOOD_COL_IDX"
	ColSatiety      ColumnKey = "SATIETY_COL_IDX"
	ColDigestion    ColumnKey = "DIGESTION_COL_IDX"
	ColCalories     ColumnKey = "CALORIES_COL_IDX"
	ColProtein      ColumnKey = "PROTEIN_COL_IDX"
	ColCarbs        ColumnKey = "CARBS_COL_IDX"
	ColFat          ColumnKey = "FAT_COL_IDX"
	ColFiber        ColumnKey = "FIBER_COL_IDX"
	ColWater        ColumnKey = "WATER_COL_IDX"
)

// DateLayout is the Go layout for the short date string stored in the
// date column (e.g. "Jul 16"). It is the sole join key between logical
// dates and physical rows.
const DateLayout = "Jan 2"

// Variant names a column-layout template a tenant's sheet follows.
type Variant string

const (
	VariantTemplate Variant = "template"
	VariantLegacy   Variant = "legacy"
)

// templateColumns: the sheet the bot's template spreadsheet uses,
// date in column A.
var templateColumns = map[ColumnKey]int{
	ColDate: 0, ColWeight: 1, ColWeightTime: 2,
	ColSleepHours: 3, ColSleepQuality: 4,
	ColSteps: 5, ColCardio: 6, ColTraining: 7,
	ColEnergy: 8, ColMood: 9, ColSatiety: 10, ColDigestion: 11,
	ColCalories: 12, ColProtein: 13, ColCarbs: 14, ColFat: 15,
	ColFiber: 16, ColWater: 17,
}

// legacyColumns: pre-template sheets, shifted one column right and with
// eight header rows before the data.
var legacyColumns = map[ColumnKey]int{
	ColDate: 1, ColWeight: 2, ColWeightTime: 3,
	ColSleepHours: 4, ColSleepQuality: 5,
	ColSteps: 6, ColCardio: 7, ColTraining: 8,
	ColEnergy: 9, ColMood: 10, ColSatiety: 11, ColDigestion: 12,
	ColCalories: 13, ColProtein: 14, ColCarbs: 15, ColFat: 16,
	ColFiber: 17, ColWater: 18,
}

// firstDataRow is the zero-based row where dated entries begin, per variant.
var firstDataRow = map[Variant]int{
	VariantTemplate: 1,
	VariantLegacy:   9,
}

// Tenant is one configured bot instance bound to its own spreadsheet.
// Immutable once constructed.
type Tenant struct {
	Token        string
	SheetID      string
	Worksheet    string
	Variant      Variant
	FirstDataRow int
	allowedUsers map[int64]struct{}
	columns      map[ColumnKey]int
}

// NewTenant builds a validated tenant schema. Unknown variants are
// rejected here rather than discovered as nil lookups at call sites.
func NewTenant(token, sheetID, worksheet string, variant Variant, allowedUsers []int64) (*Tenant, error) {
	if token == "" {
		return nil, model.NewValidationError("bot_token", "bot token is required")
	}
	if sheetID == "" {
		return nil, model.NewValidationError("google_sheet_id", "sheet ID is required")
	}
	if worksheet == "" {
		worksheet = "Sheet1"
	}

	var cols map[ColumnKey]int
	switch variant {
	case VariantTemplate:
		cols = templateColumns
	case VariantLegacy:
		cols = legacyColumns
	default:
		return nil, model.NewValidationError("schema_type", fmt.Sprintf("unknown schema variant %q", variant))
	}

	t := &Tenant{
		Token:        token,
		SheetID:      sheetID,
		Worksheet:    worksheet,
		Variant:      variant,
		FirstDataRow: firstDataRow[variant],
		columns:      cols,
	}
	if len(allowedUsers) > 0 {
		t.allowedUsers = make(map[int64]struct{}, len(allowedUsers))
		for _, id := range allowedUsers {
			t.allowedUsers[id] = struct{}{}
		}
	}
	return t, nil
}

// Column resolves a logical key to the tenant's zero-based column index.
// A missing key is a configuration error, never a user error.
func (t *Tenant) Column(key ColumnKey) (int, error) {
	idx, ok := t.columns[key]
	if !ok {
		return 0, model.NewSchemaError(string(key), fmt.Sprintf("column not mapped for schema variant %q", t.Variant))
	}
	return idx, nil
}

// KnownColumn reports whether idx is one of the tenant's mapped columns.
// RowStore uses it to reject writes to unmapped cells before any I/O.
func (t *Tenant) KnownColumn(idx int) bool {
	for _, v := range t.columns {
		if v == idx {
			return true
		}
	}
	return false
}

// UserAllowed reports whether userID may talk to this tenant.
// An empty allow-list means unrestricted.
func (t *Tenant) UserAllowed(userID int64) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	_, ok := t.allowedUsers[userID]
	return ok
}

// Registry resolves tenants by bot token.
type Registry struct {
	byToken map[string]*Tenant
}

// NewRegistry indexes tenants by token. Duplicate tokens are rejected.
func NewRegistry(tenants []*Tenant) (*Registry, error) {
	r := &Registry{byToken: make(map[string]*Tenant, len(tenants))}
	for _, t := range tenants {
		if _, dup := r.byToken[t.Token]; dup {
			return nil, model.NewValidationError("bot_token", "duplicate bot token in tenant config")
		}
		r.byToken[t.Token] = t
	}
	return r, nil
}

// ByToken returns the tenant for token, or model.ErrNotFound.
func (r *Registry) ByToken(token string) (*Tenant, error) {
	t, ok := r.byToken[token]
	if !ok {
		return nil, fmt.Errorf("tenant for token: %w", model.ErrNotFound)
	}
	return t, nil
}

// All returns every registered tenant.
func (r *Registry) All() []*Tenant {
	out := make([]*Tenant, 0, len(r.byToken))
	for _, t := range r.byToken {
		out = append(out, t)
	}
	return out
}
