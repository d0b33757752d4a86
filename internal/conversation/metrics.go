package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/schema"
)

// ValueKind describes the shape of input a metric expects.
type ValueKind int

const (
	// NumericFields expects one number per column, space separated.
	NumericFields ValueKind = iota
	// FreeText stores the raw message in a single column.
	FreeText
	// ValueWithTime expects a number plus an optional time-of-day token.
	ValueWithTime
)

// Metric is one loggable quantity offered on the metric keyboard.
type Metric struct {
	Key    string
	Label  string
	Prompt string
	Kind   ValueKind
	// Columns lists the logical columns the parsed fields land in,
	// in input order.
	Columns []schema.ColumnKey
}

// catalog is the fixed set of non-meal metrics, in keyboard order.
var catalog = []Metric{
	{
		Key:    "wellness",
		Label:  "Wellness",
		Prompt: "Send four ratings 1-10 separated by spaces: energy, mood, satiety, digestion.\nExample: 7 8 6 9",
		Kind:   NumericFields,
		Columns: []schema.ColumnKey{
			schema.ColEnergy, schema.ColMood, schema.ColSatiety, schema.ColDigestion,
		},
	},
	{
		Key:     "sleep",
		Label:   "Sleep",
		Prompt:  "Send sleep hours and quality 1-10 separated by a space.\nExample: 7.5 8",
		Kind:    NumericFields,
		Columns: []schema.ColumnKey{schema.ColSleepHours, schema.ColSleepQuality},
	},
	{
		Key:     "weight",
		Label:   "Weight",
		Prompt:  "Send your weight, optionally followed by the time of the weigh-in.\nExample: 82.4 or 82.4 08:30",
		Kind:    ValueWithTime,
		Columns: []schema.ColumnKey{schema.ColWeight, schema.ColWeightTime},
	},
	{
		Key:     "steps",
		Label:   "Steps",
		Prompt:  "Send your step count.\nExample: 11200",
		Kind:    NumericFields,
		Columns: []schema.ColumnKey{schema.ColSteps},
	},
	{
		Key:     "water",
		Label:   "Water",
		Prompt:  "Send how much water you drank, in liters.\nExample: 2.5",
		Kind:    NumericFields,
		Columns: []schema.ColumnKey{schema.ColWater},
	},
	{
		Key:     "cardio",
		Label:   "Cardio",
		Prompt:  "Describe your cardio session in one message.",
		Kind:    FreeText,
		Columns: []schema.ColumnKey{schema.ColCardio},
	},
	{
		Key:     "training",
		Label:   "Training",
		Prompt:  "Describe your training session in one message.",
		Kind:    FreeText,
		Columns: []schema.ColumnKey{schema.ColTraining},
	},
}

// metricByKey returns the catalog entry for key, or nil.
func metricByKey(key string) *Metric {
	for i := range catalog {
		if catalog[i].Key == key {
			return &catalog[i]
		}
	}
	return nil
}

// parseValue turns the raw user message into per-column cell values for
// the metric, in Columns order. Shape and range problems come back as
// validation errors with the offending field named.
func (m *Metric) parseValue(text string) ([]interface{}, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewValidationError(m.Key, "value must not be empty")
	}

	switch m.Kind {
	case FreeText:
		return []interface{}{text}, nil

	case ValueWithTime:
		fields := strings.Fields(text)
		if len(fields) > 2 {
			return nil, model.NewValidationError(m.Key, "expected a value and an optional time")
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
		if err != nil || v <= 0 {
			return nil, model.NewValidationError(m.Key, fmt.Sprintf("%q is not a valid weight", fields[0]))
		}
		out := []interface{}{v}
		if len(fields) == 2 {
			out = append(out, fields[1])
		} else {
			out = append(out, "")
		}
		return out, nil

	default: // NumericFields
		fields := strings.Fields(text)
		if len(fields) != len(m.Columns) {
			return nil, model.NewValidationError(m.Key,
				fmt.Sprintf("expected %d number(s), got %d", len(m.Columns), len(fields)))
		}
		out := make([]interface{}, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.ReplaceAll(f, ",", "."), 64)
			if err != nil || v < 0 {
				return nil, model.NewValidationError(m.Key, fmt.Sprintf("%q is not a valid number", f))
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// cellUpdates resolves the metric's columns against the tenant schema
// and pairs them with parsed values. Column resolution failures are
// schema errors and must stop the write before any I/O.
func (m *Metric) cellUpdates(t *schema.Tenant, values []interface{}) (map[int]interface{}, error) {
	updates := make(map[int]interface{}, len(values))
	for i, key := range m.Columns {
		if i >= len(values) {
			break
		}
		// Skip blank optional trailing fields (e.g. weigh-in time).
		if s, ok := values[i].(string); ok && s == "" && m.Kind == ValueWithTime {
			continue
		}
		col, err := t.Column(key)
		if err != nil {
			return nil, err
		}
		updates[col] = values[i]
	}
	return updates, nil
}
