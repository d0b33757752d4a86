package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/nutrition"
	"github.com/sheetfit/trackerbot/internal/schema"
)

func TestQuickLog_MetricWritesDirectly(t *testing.T) {
	f := newFixture(t)

	replies := f.engine.QuickLog(context.Background(), f.tenant, "steps 11200")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "✅ Steps logged for Jul 16")

	require.Len(t, f.rows.metricWrites, 1)
	w := f.rows.metricWrites[0]
	assert.Equal(t, "Jul 16", w.date.Format(schema.DateLayout))
	stepsCol, err := f.tenant.Column(schema.ColSteps)
	require.NoError(t, err)
	assert.Equal(t, 11200.0, w.updates[stepsCol])

	assert.Equal(t, 0, f.engine.sessions.Count(), "direct log must not open a session")
}

func TestQuickLog_LeadingDateToken(t *testing.T) {
	f := newFixture(t)

	replies := f.engine.QuickLog(context.Background(), f.tenant, "yesterday weight 82.4")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Jul 15")

	require.Len(t, f.rows.metricWrites, 1)
	w := f.rows.metricWrites[0]
	assert.Equal(t, "Jul 15", w.date.Format(schema.DateLayout))
	weightCol, err := f.tenant.Column(schema.ColWeight)
	require.NoError(t, err)
	assert.Equal(t, 82.4, w.updates[weightCol])
}

func TestQuickLog_FirstTokenStaysMetricWhenNoDateFollows(t *testing.T) {
	f := newFixture(t)

	// "weight" must never be consumed as a date.
	f.engine.QuickLog(context.Background(), f.tenant, "weight 85.5")
	require.Len(t, f.rows.metricWrites, 1)
	assert.Equal(t, "Jul 16", f.rows.metricWrites[0].date.Format(schema.DateLayout))
}

func TestQuickLog_BadInputReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	replies := f.engine.QuickLog(ctx, f.tenant, "")
	assert.Contains(t, replies[0].Text, "Usage:")

	replies = f.engine.QuickLog(ctx, f.tenant, "pushups 50")
	assert.Contains(t, replies[0].Text, `Unknown metric "pushups"`)

	replies = f.engine.QuickLog(ctx, f.tenant, "weight")
	assert.Contains(t, replies[0].Text, `Missing value for "weight"`)

	replies = f.engine.QuickLog(ctx, f.tenant, "steps lots")
	assert.Contains(t, replies[0].Text, "That doesn't look right")

	assert.Empty(t, f.rows.metricWrites)
}

func TestQuickLog_MealTextAccumulatesUnrounded(t *testing.T) {
	f := newFixture(t)
	f.ext.items = []model.ParsedItem{{Name: "chicken breast", QuantityGrams: 150}}
	f.res.result = &nutrition.AggregateResult{
		Total:     model.NutritionEstimate{Calories: 247.5, ProteinG: 46.5, CarbsG: 0, FatG: 5.4, FiberG: 0},
		Processed: []string{"chicken breast (usda)"},
	}

	replies := f.engine.QuickLog(context.Background(), f.tenant, "meal 150g chicken breast")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "✅ Meal logged for Jul 16")
	assert.Contains(t, replies[0].Text, "chicken breast (150 g)")
	assert.Contains(t, replies[0].Text, "47 g protein", "display is rounded")

	require.Len(t, f.rows.macroWrites, 1)
	assert.InDelta(t, 46.5, f.rows.macroWrites[0].protein, 1e-9, "storage stays unrounded")
}

func TestQuickLog_MealNeedsDescription(t *testing.T) {
	f := newFixture(t)

	replies := f.engine.QuickLog(context.Background(), f.tenant, "meal")
	assert.Contains(t, replies[0].Text, "Describe the meal")
	assert.Empty(t, f.rows.macroWrites)
}

func TestQuickLog_MealFailuresReportWithoutWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ext.err = errors.New("model down")
	replies := f.engine.QuickLog(ctx, f.tenant, "meal some stew")
	assert.Contains(t, replies[0].Text, "couldn't find any food items")

	f.ext.err = nil
	f.ext.items = []model.ParsedItem{{Name: "stew", QuantityGrams: 400}}
	f.res.err = errors.New("usda down")
	replies = f.engine.QuickLog(ctx, f.tenant, "meal some stew")
	assert.Contains(t, replies[0].Text, "Couldn't work out nutrition")

	f.res.err = nil
	f.res.result = &nutrition.AggregateResult{Total: model.NutritionEstimate{ProteinG: 20}}
	f.rows.accumErr = errors.New("sheet down")
	replies = f.engine.QuickLog(ctx, f.tenant, "meal some stew")
	assert.Contains(t, replies[0].Text, "Failed to log the meal")

	assert.Empty(t, f.rows.macroWrites)
}

func TestQuickLog_WriteFailureReplies(t *testing.T) {
	f := newFixture(t)
	f.rows.writeErr = errors.New("sheet down")

	replies := f.engine.QuickLog(context.Background(), f.tenant, "steps 11200")
	assert.Contains(t, replies[0].Text, "Failed to update the sheet")
}

func TestQuickLogPhoto_LogsToToday(t *testing.T) {
	f := newFixture(t)
	f.ext.items = []model.ParsedItem{{Name: "omelette", QuantityGrams: 200}}
	f.res.result = &nutrition.AggregateResult{
		Total:     model.NutritionEstimate{Calories: 300, ProteinG: 20, FatG: 22},
		Processed: []string{"omelette (llm-estimate)"},
	}

	replies := f.engine.QuickLogPhoto(context.Background(), f.tenant, []byte("jpeg"), "image/jpeg")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "✅ Meal logged for Jul 16")

	require.Len(t, f.rows.macroWrites, 1)
	assert.Equal(t, "Jul 16", f.rows.macroWrites[0].date.Format(schema.DateLayout))
}

func TestQuickLogPhoto_NoItemsFound(t *testing.T) {
	f := newFixture(t)

	replies := f.engine.QuickLogPhoto(context.Background(), f.tenant, []byte("jpeg"), "image/jpeg")
	assert.Contains(t, replies[0].Text, "couldn't identify food items")
	assert.Empty(t, f.rows.macroWrites)
}
