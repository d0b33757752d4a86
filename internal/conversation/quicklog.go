package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/schema"
)

const quickLogUsage = `Usage:
/log [date] <metric> <values>
/log [date] meal <description>

Metrics: wellness, sleep, weight, steps, water, cardio, training.
Examples:
/log weight 82.4
/log yesterday steps 11200
/log meal 150g chicken breast and rice`

// QuickLog handles the one-shot /log command: an optional date token,
// then a metric name and its values, or "meal" and a free-form
// description. It writes directly without opening a session.
func (e *Engine) QuickLog(ctx context.Context, t *schema.Tenant, args string) []Reply {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return []Reply{{Text: quickLogUsage}}
	}

	target := e.now()
	// The first token is a date only when a metric word follows it;
	// "/log weight 85.5" must not read "weight" as a date.
	if len(fields) > 1 && isMetricWord(fields[1]) {
		if d, err := parseTargetDate(e.now(), fields[0]); err == nil {
			target = d
			fields = fields[1:]
		}
	}

	word := strings.ToLower(fields[0])
	values := fields[1:]

	if word == "meal" {
		desc := strings.Join(values, " ")
		if desc == "" {
			return []Reply{{Text: "Describe the meal after \"meal\". Example:\n/log meal 150g chicken breast and rice"}}
		}
		items, err := e.extractor.FromText(ctx, desc)
		if err != nil || len(items) == 0 {
			if err != nil {
				e.log.Warn().Err(err).Msg("quick meal extraction failed")
			}
			return []Reply{{Text: "I couldn't find any food items in that. Try again, or /newlog for a guided session."}}
		}
		return e.quickLogMeal(ctx, t, target, items)
	}

	m := metricByKey(word)
	if m == nil {
		return []Reply{{Text: fmt.Sprintf("Unknown metric %q.\n\n%s", word, quickLogUsage)}}
	}
	if len(values) == 0 {
		return []Reply{{Text: fmt.Sprintf("Missing value for %q.\n\n%s", m.Key, m.Prompt)}}
	}

	parsed, err := m.parseValue(strings.Join(values, " "))
	if err != nil {
		var verr model.ValidationError
		if errors.As(err, &verr) {
			return []Reply{{Text: fmt.Sprintf("That doesn't look right: %s\n\n%s", verr.Message, m.Prompt)}}
		}
		return []Reply{{Text: m.Prompt}}
	}

	updates, err := m.cellUpdates(t, parsed)
	if err != nil {
		e.log.Error().Err(err).Str("metric", m.Key).Msg("schema lookup failed")
		return []Reply{{Text: "This metric isn't configured for your sheet."}}
	}

	if err := e.rows.WriteMetrics(ctx, t, target, updates); err != nil {
		e.log.Error().Err(err).Str("metric", m.Key).Msg("metric write failed")
		return []Reply{{Text: "❌ Failed to update the sheet. Send the command again to retry."}}
	}

	return []Reply{{Text: fmt.Sprintf("✅ %s logged for %s.", m.Label, target.Format(schema.DateLayout))}}
}

// QuickLogPhoto logs a meal from a photo captioned "/log meal". Photos
// always log to today.
func (e *Engine) QuickLogPhoto(ctx context.Context, t *schema.Tenant, media []byte, mimeType string) []Reply {
	items, err := e.extractor.FromImage(ctx, media, mimeType)
	if err != nil || len(items) == 0 {
		if err != nil {
			e.log.Warn().Err(err).Msg("quick photo extraction failed")
		}
		return []Reply{{Text: "I couldn't identify food items in that photo. Try /newlog for a guided session."}}
	}
	return e.quickLogMeal(ctx, t, e.now(), items)
}

func (e *Engine) quickLogMeal(ctx context.Context, t *schema.Tenant, date time.Time, items []model.ParsedItem) []Reply {
	res, err := e.resolver.ResolveAll(ctx, items)
	if err != nil {
		e.log.Warn().Err(err).Msg("quick nutrition resolution failed")
		return []Reply{{Text: "❌ Couldn't work out nutrition for those items. Try again, or /newlog for a guided session."}}
	}

	est := res.Total
	if err := e.rows.AccumulateNutrition(ctx, t, date, est.ProteinG, est.CarbsG, est.FatG, est.FiberG); err != nil {
		e.log.Error().Err(err).Msg("quick nutrition write failed")
		return []Reply{{Text: "❌ Failed to log the meal. Send the command again to retry."}}
	}

	r := est.Rounded()
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Meal logged for %s.\n", date.Format(schema.DateLayout))
	for _, it := range items {
		fmt.Fprintf(&b, "- %s (%.0f g)\n", it.Name, it.QuantityGrams)
	}
	fmt.Fprintf(&b, "Added: %.0f kcal, %.0f g protein, %.0f g carbs, %.0f g fat, %.0f g fiber",
		r.Calories, r.ProteinG, r.CarbsG, r.FatG, r.FiberG)
	return []Reply{{Text: b.String()}}
}

// isMetricWord reports whether w names a loggable target for /log.
func isMetricWord(w string) bool {
	w = strings.ToLower(w)
	return w == "meal" || metricByKey(w) != nil
}
