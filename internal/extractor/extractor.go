// Package extractor turns free-form meal descriptions (text, photo, or
// voice) into structured food items with gram quantities, via the LLM.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/gemini"
	"github.com/sheetfit/trackerbot/internal/model"
)

const textPrompt = `Analyze the following meal description. Extract each distinct food item mentioned.
For each item, determine its quantity and convert it to grams (g).
- If a unit is provided (e.g., g, oz, kg, ml, cup, piece, slice), convert it to grams.
- Use standard conversions (e.g., 1 oz = 28.35g, 1 cup of rice ~ 180g, 1 cup of milk ~ 240g).
- If no quantity is mentioned for an item, estimate a standard single serving size in grams.

Output ONLY a valid JSON list where each element is an object with two keys:
1. "item": The name of the food item (string).
2. "quantity_g": The estimated quantity in grams (numeric).

Example Input: "150g chicken breast, 1 cup broccoli, and a slice of bread"
Example Output: [{"item": "chicken breast", "quantity_g": 150.0}, {"item": "broccoli", "quantity_g": 150.0}, {"item": "bread slice", "quantity_g": 30.0}]

Input Description:
%q

Output:`

const imagePrompt = `Analyze this image of food. Identify each distinct food item visible.
For each item, estimate its quantity in grams (g).
- Use standard serving sizes as a reference.
- Consider the portion size relative to the plate or container.
- If multiple servings are visible, estimate the total quantity.

Output ONLY a valid JSON list where each element is an object with two keys:
1. "item": The name of the food item (string).
2. "quantity_g": The estimated quantity in grams (numeric).

Example Output: [{"item": "chicken breast", "quantity_g": 150.0}, {"item": "broccoli", "quantity_g": 100.0}]`

const transcribePrompt = `Your sole task is high-fidelity audio transcription.
Accurately transcribe the spoken words in the provided audio file.
Capture all details precisely as spoken, including specific food items, quantities, units, brand names, and descriptive terms.
Output ONLY the transcribed text, with no additional commentary or summarization.`

// Generator is the LLM surface the extractor needs. Implemented by
// gemini.Client.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateWithMedia(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
}

// Extractor parses meal input into items. Ambiguous or food-free input
// yields an empty result, never an error; errors mean the LLM call
// itself failed.
type Extractor struct {
	gen Generator
	log zerolog.Logger
}

func New(gen Generator, log zerolog.Logger) *Extractor {
	return &Extractor{gen: gen, log: log.With().Str("component", "extractor").Logger()}
}

// FromText extracts items from a typed or transcribed meal description.
func (e *Extractor) FromText(ctx context.Context, text string) ([]model.ParsedItem, error) {
	raw, err := e.gen.GenerateText(ctx, fmt.Sprintf(textPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("meal text extraction: %w", err)
	}
	return e.parseItems(raw), nil
}

// FromImage extracts items from a meal photo.
func (e *Extractor) FromImage(ctx context.Context, data []byte, mimeType string) ([]model.ParsedItem, error) {
	raw, err := e.gen.GenerateWithMedia(ctx, imagePrompt, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("meal image extraction: %w", err)
	}
	return e.parseItems(raw), nil
}

// Transcribe converts a voice message to text. Empty transcript means
// nothing intelligible was spoken.
func (e *Extractor) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	transcript, err := e.gen.GenerateWithMedia(ctx, transcribePrompt, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("audio transcription: %w", err)
	}
	return strings.TrimSpace(transcript), nil
}

// parseItems decodes and validates the model's JSON list. Malformed
// entries are skipped; a fully malformed response yields nil.
func (e *Extractor) parseItems(raw string) []model.ParsedItem {
	cleaned := gemini.StripCodeFence(raw)
	var decoded []struct {
		Item      string   `json:"item"`
		QuantityG *float64 `json:"quantity_g"`
	}
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		e.log.Warn().Err(err).Str("response", truncate(cleaned, 120)).
			Msg("extraction response was not a JSON list")
		return nil
	}

	items := make([]model.ParsedItem, 0, len(decoded))
	for _, d := range decoded {
		if d.Item == "" || d.QuantityG == nil || *d.QuantityG < 0 {
			e.log.Warn().Str("item", d.Item).Msg("skipping malformed extracted item")
			continue
		}
		items = append(items, model.ParsedItem{Name: d.Item, QuantityGrams: *d.QuantityG})
	}
	if len(items) == 0 {
		return nil
	}
	e.log.Info().Int("items", len(items)).Msg("meal items extracted")
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
