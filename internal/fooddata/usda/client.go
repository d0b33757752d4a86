// Package usda is a client for the USDA FoodData Central REST API.
// Nutrient values it returns are per 100 g; callers do the scaling.
package usda

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/model"
)

const defaultBaseURL = "https://api.nal.usda.gov/fdc/v1"

// Nutrient IDs in FoodData Central's foodNutrients records.
var nutrientIDs = map[string]int64{
	"calories": 1008, // Energy (kcal)
	"protein":  1003,
	"carbs":    1005, // Carbohydrate, by difference
	"fat":      1004, // Total lipid
	"fiber":    1079, // Fiber, total dietary
}

// Client queries FoodData Central.
type Client struct {
	http   *resty.Client
	apiKey string
	log    zerolog.Logger
}

// New builds a Client. baseURL may be empty to use the public endpoint.
func New(apiKey, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &Client{
		http:   c,
		apiKey: apiKey,
		log:    log.With().Str("component", "usda").Logger(),
	}
}

type searchResponse struct {
	Foods []struct {
		FdcID       int64  `json:"fdcId"`
		Description string `json:"description"`
	} `json:"foods"`
}

// Search returns up to 5 candidate matches for query, most relevant
// first. A query with no hits returns (nil, nil).
func (c *Client) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":  c.apiKey,
			"query":    query,
			"pageSize": "5",
			"dataType": "Foundation,SR Legacy,Survey (FNDDS)",
		}).
		SetResult(&out).
		Get("/foods/search")
	if err != nil {
		return nil, fmt.Errorf("usda search %q: %w", query, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("usda search %q: status %d", query, resp.StatusCode())
	}

	candidates := make([]model.Candidate, 0, len(out.Foods))
	for _, f := range out.Foods {
		if f.FdcID != 0 && f.Description != "" {
			candidates = append(candidates, model.Candidate{ID: f.FdcID, Description: f.Description})
		}
	}
	if len(candidates) == 0 {
		c.log.Info().Str("query", query).Msg("no usda results")
		return nil, nil
	}
	c.log.Info().Str("query", query).Int("candidates", len(candidates)).Msg("usda search hit")
	return candidates, nil
}

type detailResponse struct {
	LabelNutrients *struct {
		Calories      *struct{ Value *float64 } `json:"calories"`
		Protein       *struct{ Value *float64 } `json:"protein"`
		Carbohydrates *struct{ Value *float64 } `json:"carbohydrates"`
		Fat           *struct{ Value *float64 } `json:"fat"`
		Fiber         *struct{ Value *float64 } `json:"fiber"`
	} `json:"labelNutrients"`
	FoodNutrients []struct {
		Nutrient struct {
			ID int64 `json:"id"`
		} `json:"nutrient"`
		Amount *float64 `json:"amount"`
	} `json:"foodNutrients"`
}

// Details fetches per-100g nutrient values for one FDC entry. Nutrients
// absent from the record come back nil; the caller treats them as 0.
func (c *Client) Details(ctx context.Context, fdcID int64) (*model.Nutrients, error) {
	var out detailResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("api_key", c.apiKey).
		SetResult(&out).
		Get(fmt.Sprintf("/food/%d", fdcID))
	if err != nil {
		return nil, fmt.Errorf("usda details %d: %w", fdcID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("usda details %d: status %d", fdcID, resp.StatusCode())
	}

	n := &model.Nutrients{}
	if ln := out.LabelNutrients; ln != nil {
		if ln.Calories != nil {
			n.Calories = ln.Calories.Value
		}
		if ln.Protein != nil {
			n.ProteinG = ln.Protein.Value
		}
		if ln.Carbohydrates != nil {
			n.CarbsG = ln.Carbohydrates.Value
		}
		if ln.Fat != nil {
			n.FatG = ln.Fat.Value
		}
		if ln.Fiber != nil {
			n.FiberG = ln.Fiber.Value
		}
	}
	// Fall back to the raw nutrient list for anything the label block
	// didn't carry (fiber is commonly list-only).
	for _, fn := range out.FoodNutrients {
		amt := fn.Amount
		if amt == nil {
			continue
		}
		switch fn.Nutrient.ID {
		case nutrientIDs["calories"]:
			if n.Calories == nil {
				n.Calories = amt
			}
		case nutrientIDs["protein"]:
			if n.ProteinG == nil {
				n.ProteinG = amt
			}
		case nutrientIDs["carbs"]:
			if n.CarbsG == nil {
				n.CarbsG = amt
			}
		case nutrientIDs["fat"]:
			if n.FatG == nil {
				n.FatG = amt
			}
		case nutrientIDs["fiber"]:
			if n.FiberG == nil {
				n.FiberG = amt
			}
		}
	}

	if n.Calories == nil && n.ProteinG == nil && n.CarbsG == nil && n.FatG == nil && n.FiberG == nil {
		c.log.Warn().Int64("fdc_id", fdcID).Msg("no relevant nutrients in usda record")
		return nil, fmt.Errorf("usda details %d: %w", fdcID, model.ErrNotFound)
	}
	return n, nil
}

// Ping checks API reachability and key validity with a minimal search.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"api_key": c.apiKey, "query": "apple", "pageSize": "1"}).
		Get("/foods/search")
	if err != nil {
		return fmt.Errorf("usda ping: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("usda ping: status %d", resp.StatusCode())
	}
	return nil
}
