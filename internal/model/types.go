package model

import "math"

// Source identifies which resolution strategy produced a nutrition value.
type Source string

const (
	SourceDatabase    Source = "usda"
	SourceLLMEstimate Source = "llm-estimate"
)

// ParsedItem is one food item extracted from a meal description.
// QuantityGrams is mutable: the user may adjust it before nutrition lookup.
type ParsedItem struct {
	Name          string  `json:"item"`
	QuantityGrams float64 `json:"quantity_g"`
}

// NutritionEstimate holds the five tracked nutrient values for one item
// (or an aggregate of items), tagged with provenance.
type NutritionEstimate struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein"`
	CarbsG   float64 `json:"carbs"`
	FatG     float64 `json:"fat"`
	FiberG   float64 `json:"fiber"`
	Source   Source  `json:"source"`
}

// Add accumulates another estimate into e. Provenance is kept from e;
// aggregates are mixed-source by nature.
func (e *NutritionEstimate) Add(o NutritionEstimate) {
	e.Calories += o.Calories
	e.ProteinG += o.ProteinG
	e.CarbsG += o.CarbsG
	e.FatG += o.FatG
	e.FiberG += o.FiberG
}

// Rounded returns a copy with every nutrient rounded to the nearest
// integer. Rounding happens once, on the final aggregate, never per item.
func (e NutritionEstimate) Rounded() NutritionEstimate {
	return NutritionEstimate{
		Calories: math.Round(e.Calories),
		ProteinG: math.Round(e.ProteinG),
		CarbsG:   math.Round(e.CarbsG),
		FatG:     math.Round(e.FatG),
		FiberG:   math.Round(e.FiberG),
		Source:   e.Source,
	}
}

// Candidate is one food-database search hit.
type Candidate struct {
	ID          int64  `json:"fdcId"`
	Description string `json:"description"`
}

// Nutrients carries raw per-100g nutrient values from the food database.
// A nil field means the source record omitted that nutrient.
type Nutrients struct {
	Calories *float64
	ProteinG *float64
	CarbsG   *float64
	FatG     *float64
	FiberG   *float64
}
