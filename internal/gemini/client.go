// Package gemini is a thin client for the Generative Language API,
// covering the text, vision, and audio prompts the bot needs.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client calls one configured Gemini model.
type Client struct {
	http  *resty.Client
	key   string
	model string
	log   zerolog.Logger
}

// New builds a Client. baseURL may be empty to use the public endpoint.
func New(apiKey, model, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &Client{
		http:  c,
		key:   apiKey,
		model: model,
		log:   log.With().Str("component", "gemini").Str("model", model).Logger(),
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateText sends a text-only prompt and returns the model's reply.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []part{{Text: prompt}})
}

// GenerateWithMedia sends a prompt alongside inline media (image or
// audio). The media part goes first; multimodal prompts behave better
// with the media leading.
func (c *Client) GenerateWithMedia(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	parts := []part{
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
		{Text: prompt},
	}
	return c.generate(ctx, parts)
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	req := generateRequest{GenerationConfig: &generationConfig{Temperature: 0.2}}
	req.Contents = append(req.Contents, struct {
		Parts []part `json:"parts"`
	}{Parts: parts})

	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.key).
		SetBody(&req).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/models/%s:generateContent", c.model))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("gemini status %d", resp.StatusCode())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

// Ping verifies the model is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.key).
		Get(fmt.Sprintf("/models/%s", c.model))
	if err != nil {
		return fmt.Errorf("gemini ping: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("gemini ping: status %d", resp.StatusCode())
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence from model
// output, which Gemini adds around JSON despite instructions not to.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
