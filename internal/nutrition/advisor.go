package nutrition

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/gemini"
	"github.com/sheetfit/trackerbot/internal/model"
)

// Generator is the LLM surface the advisor needs.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiAdvisor implements Advisor over a Gemini text client.
type GeminiAdvisor struct {
	gen Generator
	log zerolog.Logger
}

func NewGeminiAdvisor(gen Generator, log zerolog.Logger) *GeminiAdvisor {
	return &GeminiAdvisor{gen: gen, log: log.With().Str("component", "nutrition-advisor").Logger()}
}

var idPattern = regexp.MustCompile(`\b(\d+)\b`)

// ChooseBest asks the model to pick the most likely database match for
// the user's query. The returned ID is not validated against the
// candidate set here; the resolver owns the default-to-first fallback.
func (a *GeminiAdvisor) ChooseBest(ctx context.Context, query string, candidates []model.Candidate) (int64, error) {
	var list strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&list, "(ID: %d) %s\n", c.ID, c.Description)
	}
	prompt := fmt.Sprintf(`Original User Query: %q

Which of the following USDA food descriptions is the most common or likely match for the user query? Consider common preparations and types unless specified otherwise.
Please return ONLY the corresponding FDC ID number from the list below. Do not include any other text or explanation.

Candidates:
%s
Chosen FDC ID:`, query, list.String())

	resp, err := a.gen.GenerateText(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("candidate selection: %w", err)
	}
	m := idPattern.FindString(resp)
	if m == "" {
		return 0, fmt.Errorf("no ID in selection response %q", truncate(resp, 80))
	}
	id, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse selection ID %q: %w", m, err)
	}
	return id, nil
}

// Estimate asks the model for nutrient values for the given item and
// quantity (for the quantity itself, not per 100 g).
func (a *GeminiAdvisor) Estimate(ctx context.Context, itemName string, quantityGrams float64) (*model.NutritionEstimate, error) {
	prompt := fmt.Sprintf(`Estimate the nutritional information (calories, protein, carbohydrates, fat, and fiber) for the following food item and quantity. Provide values per the specified quantity, not per 100g.

Food Item: %q
Quantity: %.1f grams

Output ONLY a valid JSON object with the following numeric keys:
- "calories"
- "protein"
- "carbs"
- "fat"
- "fiber"

Example Output: {"calories": 250.0, "protein": 10.5, "carbs": 30.0, "fat": 8.2, "fiber": 3.1}

Output:`, itemName, quantityGrams)

	resp, err := a.gen.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm estimate: %w", err)
	}
	cleaned := gemini.StripCodeFence(resp)

	var decoded struct {
		Calories *float64 `json:"calories"`
		Protein  *float64 `json:"protein"`
		Carbs    *float64 `json:"carbs"`
		Fat      *float64 `json:"fat"`
		Fiber    *float64 `json:"fiber"`
	}
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("llm estimate was not a JSON object: %w", err)
	}
	if decoded.Calories == nil || decoded.Protein == nil || decoded.Carbs == nil || decoded.Fat == nil || decoded.Fiber == nil {
		return nil, fmt.Errorf("llm estimate missing nutrient keys: %q", truncate(cleaned, 80))
	}

	est := &model.NutritionEstimate{
		Calories: *decoded.Calories,
		ProteinG: *decoded.Protein,
		CarbsG:   *decoded.Carbs,
		FatG:     *decoded.Fat,
		FiberG:   *decoded.Fiber,
		Source:   model.SourceLLMEstimate,
	}
	if est.Calories < 0 || est.ProteinG < 0 || est.CarbsG < 0 || est.FatG < 0 || est.FiberG < 0 {
		return nil, fmt.Errorf("llm estimate contained negative values")
	}
	a.log.Info().Str("item", itemName).Float64("quantity_g", quantityGrams).Msg("llm nutrition estimate")
	return est, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
