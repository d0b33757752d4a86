// Package nutrition resolves food items to macro estimates via a
// two-stage strategy: structured database lookup with LLM-assisted
// disambiguation, falling back to a direct LLM estimate.
package nutrition

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/model"
)

// FoodDatabase is the structured lookup side of the pipeline.
// Implemented by usda.Client.
type FoodDatabase interface {
	Search(ctx context.Context, query string) ([]model.Candidate, error)
	Details(ctx context.Context, id int64) (*model.Nutrients, error)
}

// Advisor is the LLM side: candidate disambiguation and fallback
// estimation. Implemented by GeminiAdvisor.
type Advisor interface {
	ChooseBest(ctx context.Context, query string, candidates []model.Candidate) (int64, error)
	Estimate(ctx context.Context, itemName string, quantityGrams float64) (*model.NutritionEstimate, error)
}

type estimateKey struct {
	name  string
	grams float64
}

// Resolver orchestrates the lookup/fallback strategy. Results are cached
// for the process lifetime; database and LLM answers are treated as
// deterministic enough for the tracker's precision needs.
type Resolver struct {
	db      FoodDatabase
	advisor Advisor
	log     zerolog.Logger

	searchCache   *lru.Cache[string, []model.Candidate]
	estimateCache *lru.Cache[estimateKey, model.NutritionEstimate]
}

// NewResolver creates a Resolver with bounded caches.
func NewResolver(db FoodDatabase, advisor Advisor, log zerolog.Logger) *Resolver {
	searchCache, _ := lru.New[string, []model.Candidate](32)
	estimateCache, _ := lru.New[estimateKey, model.NutritionEstimate](256)
	return &Resolver{
		db:            db,
		advisor:       advisor,
		log:           log.With().Str("component", "nutrition").Logger(),
		searchCache:   searchCache,
		estimateCache: estimateCache,
	}
}

// Resolve produces a macro estimate for one item, or an error when both
// the database path and the LLM fallback fail.
func (r *Resolver) Resolve(ctx context.Context, itemName string, quantityGrams float64) (*model.NutritionEstimate, error) {
	if itemName == "" || quantityGrams <= 0 {
		return nil, model.NewValidationError("item", "item name and positive quantity required")
	}

	key := estimateKey{name: strings.ToLower(strings.TrimSpace(itemName)), grams: quantityGrams}
	if cached, ok := r.estimateCache.Get(key); ok {
		out := cached
		return &out, nil
	}

	est := r.resolveDatabase(ctx, itemName, quantityGrams)
	if est == nil {
		var err error
		est, err = r.advisor.Estimate(ctx, itemName, quantityGrams)
		if err != nil {
			r.log.Warn().Err(err).Str("item", itemName).Msg("all resolution strategies failed")
			return nil, fmt.Errorf("resolve %q: %w", itemName, err)
		}
	}

	r.estimateCache.Add(key, *est)
	out := *est
	return &out, nil
}

// resolveDatabase runs the database path end to end, returning nil on
// any failure so the caller falls through to the LLM estimate.
func (r *Resolver) resolveDatabase(ctx context.Context, itemName string, quantityGrams float64) *model.NutritionEstimate {
	candidates, err := r.search(ctx, itemName)
	if err != nil {
		r.log.Warn().Err(err).Str("item", itemName).Msg("database search failed")
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	id := r.chooseCandidate(ctx, itemName, candidates)
	raw, err := r.db.Details(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Int64("fdc_id", id).Str("item", itemName).
			Msg("database detail fetch failed, falling back to llm estimate")
		return nil
	}

	// Raw values are per 100 g; scale linearly. Absent nutrients count as 0.
	factor := quantityGrams / 100.0
	est := &model.NutritionEstimate{
		Calories: scale(raw.Calories, factor),
		ProteinG: scale(raw.ProteinG, factor),
		CarbsG:   scale(raw.CarbsG, factor),
		FatG:     scale(raw.FatG, factor),
		FiberG:   scale(raw.FiberG, factor),
		Source:   model.SourceDatabase,
	}
	r.log.Info().Str("item", itemName).Int64("fdc_id", id).
		Float64("quantity_g", quantityGrams).Msg("database nutrition resolved")
	return est
}

// chooseCandidate picks the database entry to use. A single candidate is
// taken directly; multiple candidates go through the LLM, defaulting to
// the first (most relevance-ranked) on any disambiguation failure.
func (r *Resolver) chooseCandidate(ctx context.Context, query string, candidates []model.Candidate) int64 {
	if len(candidates) == 1 {
		return candidates[0].ID
	}

	id, err := r.advisor.ChooseBest(ctx, query, candidates)
	if err != nil {
		r.log.Warn().Err(err).Str("item", query).Str("path", "default-first").
			Int64("fdc_id", candidates[0].ID).Msg("disambiguation failed, defaulting to first candidate")
		return candidates[0].ID
	}
	for _, c := range candidates {
		if c.ID == id {
			r.log.Info().Str("item", query).Str("path", "llm-choice").Int64("fdc_id", id).
				Msg("disambiguation selected candidate")
			return id
		}
	}
	r.log.Warn().Str("item", query).Str("path", "default-first").Int64("returned_id", id).
		Int64("fdc_id", candidates[0].ID).Msg("disambiguation returned unknown ID, defaulting to first candidate")
	return candidates[0].ID
}

func (r *Resolver) search(ctx context.Context, itemName string) ([]model.Candidate, error) {
	key := strings.ToLower(strings.TrimSpace(itemName))
	if cached, ok := r.searchCache.Get(key); ok {
		return cached, nil
	}
	candidates, err := r.db.Search(ctx, itemName)
	if err != nil {
		return nil, err
	}
	r.searchCache.Add(key, candidates)
	return candidates, nil
}

func scale(v *float64, factor float64) float64 {
	if v == nil {
		return 0
	}
	return *v * factor
}

// AggregateResult is the outcome of resolving a whole item list.
// Total is the unrounded sum; round once for display or storage via
// Total.Rounded().
type AggregateResult struct {
	Total     model.NutritionEstimate
	Processed []string // "name (source)" for each resolved item
	Failed    []string // names of items no strategy could resolve
}

// ResolveAll resolves each item independently; items that fail entirely
// are recorded but do not abort the rest. It errors only when every
// item failed.
func (r *Resolver) ResolveAll(ctx context.Context, items []model.ParsedItem) (*AggregateResult, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError("items", "no items to resolve")
	}

	res := &AggregateResult{}
	for _, item := range items {
		est, err := r.Resolve(ctx, item.Name, item.QuantityGrams)
		if err != nil {
			res.Failed = append(res.Failed, item.Name)
			continue
		}
		res.Total.Add(*est)
		res.Processed = append(res.Processed, fmt.Sprintf("%s (%s)", item.Name, est.Source))
	}

	if len(res.Processed) == 0 {
		return nil, fmt.Errorf("no items could be resolved")
	}
	if len(res.Failed) > 0 {
		r.log.Warn().Strs("failed_items", res.Failed).Msg("some items could not be resolved")
	}
	return res, nil
}
